package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hailstorm-run/hailstorm/internal/config"
	"github.com/hailstorm-run/hailstorm/internal/hailctx"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup <config.yaml>",
	Short: "Reconcile clusters and target hosts against a project configuration",
	Long: `Loads a project's YAML configuration, creates the project workspace on
first use, and reconciles every cluster's cloud/static prerequisites and
every target host's monitor installation (spec §4.5 setup(force)).

Calling setup again with an unchanged configuration performs no remote
mutations unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Re-run setup even if the configuration is unchanged")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfgFile, err := config.Load(args[0])
	if err != nil {
		return err
	}

	ws := projectWorkspace(cfgFile.ProjectCode)
	st, err := hailctx.LoadStore(ws)
	if err != nil {
		return err
	}
	auditLog, err := hailctx.LoadAuditLog(ws)
	if err != nil {
		return err
	}

	proj, err := st.GetProjectByCode(cfgFile.ProjectCode)
	if err != nil {
		proj, err = st.CreateProject(store.Project{
			Code:                   cfgFile.ProjectCode,
			MasterSlaveMode:        cfgFile.MasterSlaveMode,
			SamplesBreakupInterval: cfgFile.BreakupInterval,
		})
		if err != nil {
			return fmt.Errorf("create project %s: %w", cfgFile.ProjectCode, err)
		}
	} else {
		proj.MasterSlaveMode = cfgFile.MasterSlaveMode
		proj.SamplesBreakupInterval = cfgFile.BreakupInterval
		if err := st.UpdateProject(proj); err != nil {
			return err
		}
	}

	projCfg, err := config.Materialize(st, proj, cfgFile)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	hctx := hailctx.New(st, ws, nil, auditLog, nil, logger.Sugar())

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Reconciling project %s...", proj.Code)
	s.Start()
	err = hctx.Coordinator().Setup(context.Background(), proj, projCfg, setupForce)
	s.Stop()
	if err != nil {
		return err
	}

	if err := hailctx.SaveStore(ws, st); err != nil {
		return err
	}
	if err := hailctx.SaveAuditLog(ws, auditLog); err != nil {
		return err
	}

	color.Green("Project %s is set up (serial_version %s)", proj.Code, proj.SerialVersion)
	return nil
}
