package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var abortSuspend bool

var abortCmd = &cobra.Command{
	Use:   "abort <project-code>",
	Short: "Force-stop the current execution cycle",
	Long: `Kills load generation immediately (no drain) and discards target
monitor stats; the cycle always ends aborted (spec §4.5 abort(suspend)).`,
	Args: cobra.ExactArgs(1),
	RunE: runAbort,
}

func init() {
	rootCmd.AddCommand(abortCmd)
	abortCmd.Flags().BoolVar(&abortSuspend, "suspend", false, "Stop load agent hosts after jmeter is killed")
}

func runAbort(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	if err := sess.ctx.Coordinator().Abort(context.Background(), sess.proj, abortSuspend); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}

	color.Yellow("Aborted project %s", sess.proj.Code)
	return nil
}
