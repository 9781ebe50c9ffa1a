package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	stopWait    bool
	stopSuspend bool
)

var stopCmd = &cobra.Command{
	Use:   "stop <project-code>",
	Short: "Stop the current execution cycle gracefully",
	Long: `Stops load generation and target monitoring for the project's current
cycle (spec §4.5 stop(wait, suspend)). --wait waits for each signalled
jmeter process to exit; --suspend stops each load agent's host afterwards
and clears its public IP.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().BoolVar(&stopWait, "wait", false, "Wait for jmeter to exit after signalling it")
	stopCmd.Flags().BoolVar(&stopSuspend, "suspend", false, "Stop load agent hosts after jmeter is stopped")
}

func runStop(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	if err := sess.ctx.Coordinator().Stop(context.Background(), sess.proj, stopWait, stopSuspend); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}

	color.Green("Stopped project %s", sess.proj.Code)
	return nil
}
