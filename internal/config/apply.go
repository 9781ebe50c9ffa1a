package config

import (
	"fmt"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/project"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Materialize creates/updates the store rows f describes for project (target
// hosts, plans) and every cluster, and returns the project.Config
// Setup/Start/Stop consume. Clusters are created once; re-running
// Materialize against the same project only upserts target hosts and plans,
// since spec §4.2 gives clusters no update operation (§9: "closed
// enumeration").
func Materialize(st *store.Store, proj *store.Project, f *File) (project.Config, error) {
	if len(st.ListClusters(proj.ID)) == 0 {
		for _, c := range f.Clusters {
			if err := createCluster(st, proj.ID, c); err != nil {
				return project.Config{}, err
			}
		}
	}

	for _, th := range f.TargetHosts {
		_, err := st.UpsertTargetHost(store.TargetHost{
			ProjectID:        proj.ID,
			HostName:         th.HostName,
			RoleName:         th.RoleName,
			Type:             th.Type,
			SSHIdentity:      th.SSHIdentity,
			UserName:         th.UserName,
			SamplingInterval: th.SamplingInterval,
			Active:           true,
		})
		if err != nil {
			return project.Config{}, fmt.Errorf("target host %s: %w", th.HostName, err)
		}
	}

	planPaths := make(map[int64]string, len(f.Plans))
	for _, p := range f.Plans {
		plan, err := st.UpsertPlan(store.JmeterPlan{
			ProjectID:    proj.ID,
			TestPlanName: p.TestPlanName,
			Active:       true,
			Properties:   p.Properties,
		})
		if err != nil {
			return project.Config{}, fmt.Errorf("plan %s: %w", p.TestPlanName, err)
		}
		if p.FilePath != "" {
			planPaths[plan.ID] = p.FilePath
		}
	}

	jmeterVersion, err := ResolveJMeterVersion(f.JMeter)
	if err != nil {
		return project.Config{}, err
	}

	return project.Config{
		JMeterVersion:      jmeterVersion,
		CustomInstallerURL: f.JMeter.CustomInstallerURL,
		MasterSlaveMode:    f.MasterSlaveMode,
		PlanFilePaths:      planPaths,
		DataFiles:          f.DataFiles,
		WorkDir:            f.WorkDir,
	}, nil
}

func createCluster(st *store.Store, projectID int64, c ClusterConfig) error {
	switch c.Type {
	case "amazon_cloud":
		_, _, err := st.CreateAmazonCloudCluster(projectID, store.AmazonCloud{
			AccessKey:            c.AccessKey,
			SecretKey:            c.SecretKey,
			SSHIdentity:          c.SSHIdentity,
			Region:               c.Region,
			Zone:                 c.Zone,
			AgentAMI:             c.AgentAMI,
			Active:               true,
			UserName:             c.UserName,
			SecurityGroup:        c.SecurityGroup,
			SSHPort:              c.SSHPort,
			InstanceType:         c.InstanceType,
			MaxThreadsByInstance: c.MaxThreadsByInstance,
		})
		return err
	case "data_center":
		_, _, err := st.CreateDataCenterCluster(projectID, store.DataCenter{
			UserName:    c.UserName,
			SSHIdentity: c.SSHIdentity,
			Machines:    c.Machines,
			Title:       c.Title,
		})
		return err
	default:
		return herrors.Configuration(fmt.Sprintf("unknown cluster type %q", c.Type), nil)
	}
}
