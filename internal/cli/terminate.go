package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var terminateYes bool

var terminateCmd = &cobra.Command{
	Use:   "terminate <project-code>",
	Short: "Release every cluster's backend resources",
	Long: `Terminates every load agent host, releases cluster-owned resources
(EC2 instances for AmazonCloud; claims for DataCenter), clears the project's
serial_version so the next setup is treated as a first run, and moves any
current cycle to terminated (spec §4.5 terminate()).`,
	Args: cobra.ExactArgs(1),
	RunE: runTerminate,
}

func init() {
	rootCmd.AddCommand(terminateCmd)
	terminateCmd.Flags().BoolVarP(&terminateYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runTerminate(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	if !terminateYes {
		if err := confirmDestructive(fmt.Sprintf("release every backend resource for project %s", sess.proj.Code), sess.proj.Code); err != nil {
			return err
		}
	}

	if err := sess.ctx.Coordinator().Terminate(context.Background(), sess.proj); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}

	color.Green("Terminated project %s", sess.proj.Code)
	return nil
}
