package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hailstorm-run/hailstorm/internal/config"
)

var (
	startConfigPath string
	startRedeploy   bool
)

var startCmd = &cobra.Command{
	Use:   "start <project-code>",
	Short: "Begin an execution cycle: reconcile, start monitors, generate load",
	Long: `Refuses if a cycle is already started. Implicitly runs setup, starts
target monitors, then reconciles the agent fleet and runs every active plan
(spec §4.5 start(redeploy)). --redeploy re-uploads each plan's .jmx and data
files before running; otherwise the agents' existing deployment is reused.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startConfigPath, "config", "", "Project YAML configuration (required: re-resolves jmeter version, work dir and plan files)")
	startCmd.Flags().BoolVar(&startRedeploy, "redeploy", false, "Re-upload plan and data files to every agent before running")
	_ = startCmd.MarkFlagRequired("config")
}

func runStart(cmd *cobra.Command, args []string) error {
	projectCode := args[0]

	sess, err := openSession(projectCode)
	if err != nil {
		return err
	}

	cfgFile, err := config.Load(startConfigPath)
	if err != nil {
		return err
	}
	projCfg, err := config.Materialize(sess.st, sess.proj, cfgFile)
	if err != nil {
		return err
	}

	cyc, err := sess.ctx.Coordinator().Start(context.Background(), sess.proj, projCfg, startRedeploy)
	if err != nil {
		return err
	}

	if err := sess.save(); err != nil {
		return err
	}

	color.Green("Started cycle %d for project %s (%d thread(s))", cyc.ID, sess.proj.Code, cyc.ThreadsCount)
	return nil
}
