// Package config loads the YAML project configuration consumed by
// internal/project.Coordinator.Setup (spec §6 "Configuration inputs"),
// replacing the teacher's Lisp `ClusterConfig` format with a plain
// gopkg.in/yaml.v3 document shaped around Hailstorm's own domain: JMeter
// version/installer, clusters, target hosts, and test plans.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
)

// File is the root of a project's YAML configuration document.
type File struct {
	ProjectCode     string           `yaml:"project_code"`
	WorkDir         string           `yaml:"work_dir"`
	JMeter          JMeterConfig     `yaml:"jmeter"`
	MasterSlaveMode bool             `yaml:"master_slave_mode"`
	Clusters        []ClusterConfig  `yaml:"clusters"`
	TargetHosts     []TargetHostSpec `yaml:"target_hosts"`
	Plans           []PlanSpec       `yaml:"plans"`
	DataFiles       []string         `yaml:"data_files"`
	BreakupInterval string           `yaml:"samples_breakup_interval"`
}

// JMeterConfig is the `jmeter.version` / `jmeter.custom_installer_url`
// pair from spec §6; exactly one must resolve.
type JMeterConfig struct {
	Version            string `yaml:"version"`
	CustomInstallerURL string `yaml:"custom_installer_url"`
}

// ClusterConfig is a tagged union over AmazonCloud/DataCenter, selected
// by Type (spec §9 "tagged variant ... not open inheritance").
type ClusterConfig struct {
	Type string `yaml:"type"` // "amazon_cloud" | "data_center"

	// amazon_cloud fields
	AccessKey            string `yaml:"access_key"`
	SecretKey             string `yaml:"secret_key"`
	Region                string `yaml:"region"`
	Zone                  string `yaml:"zone"`
	InstanceType          string `yaml:"instance_type"`
	MaxThreadsByInstance  int    `yaml:"max_threads_by_instance"`
	SSHIdentity           string `yaml:"ssh_identity"`
	SecurityGroup         string `yaml:"security_group"`
	SSHPort               int    `yaml:"ssh_port"`
	AgentAMI              string `yaml:"agent_ami"`
	UserName              string `yaml:"user_name"`

	// data_center fields
	Title    string   `yaml:"title"`
	Machines []string `yaml:"machines"`
}

// TargetHostSpec configures one monitored target host.
type TargetHostSpec struct {
	HostName         string        `yaml:"host_name"`
	RoleName         string        `yaml:"role_name"`
	Type             string        `yaml:"type"`
	SSHIdentity      string        `yaml:"ssh_identity"`
	UserName         string        `yaml:"user_name"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
}

// PlanSpec is one JMeter test plan entry.
type PlanSpec struct {
	TestPlanName string            `yaml:"test_plan_name"`
	FilePath     string            `yaml:"file_path"`
	Properties   map[string]string `yaml:"properties"`
}

// Load reads and validates a project configuration document from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, herrors.Configuration(fmt.Sprintf("read config %s", path), err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML configuration document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, herrors.Configuration("parse yaml config", err)
	}
	applyDefaults(&f)
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func applyDefaults(f *File) {
	if f.BreakupInterval == "" {
		f.BreakupInterval = "1,3,5"
	}
	for i := range f.Clusters {
		c := &f.Clusters[i]
		if c.Type == "amazon_cloud" {
			if c.AccessKey == "" {
				c.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
			}
			if c.SecretKey == "" {
				c.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
			}
		}
		if c.SSHPort == 0 {
			c.SSHPort = 22
		}
		if c.UserName == "" {
			c.UserName = "ubuntu"
		}
	}
	for i := range f.TargetHosts {
		if f.TargetHosts[i].SamplingInterval == 0 {
			f.TargetHosts[i].SamplingInterval = 10 * time.Second
		}
	}
}
