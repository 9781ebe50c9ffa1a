package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hailstorm-run/hailstorm/internal/project"
)

var purgeScope string
var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge <project-code>",
	Short: "Destroy execution cycles and stats, or the whole project",
	Long: `--scope tests (default) deletes every execution cycle, client/page/target
stat row, cascading per cycle. --scope all additionally deletes the
project row itself and its workspace directory (spec §4.5 purge(scope)).`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().StringVar(&purgeScope, "scope", "tests", "Purge scope: tests|all")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Skip the confirmation prompt for --scope all")
}

func runPurge(cmd *cobra.Command, args []string) error {
	var scope project.PurgeScope
	switch purgeScope {
	case "tests":
		scope = project.PurgeTests
	case "all":
		scope = project.PurgeAll
	default:
		return fmt.Errorf("invalid --scope %q (must be tests or all)", purgeScope)
	}

	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	if scope == project.PurgeAll && !purgeYes {
		if err := confirmDestructive(fmt.Sprintf("delete project %s and its entire history", sess.proj.Code), sess.proj.Code); err != nil {
			return err
		}
	}

	if err := sess.ctx.Coordinator().Purge(sess.proj, scope); err != nil {
		return err
	}

	if scope == project.PurgeAll {
		if err := sess.ws.Remove(); err != nil {
			return err
		}
		color.Green("Purged and removed workspace for project %s", sess.proj.Code)
		return nil
	}

	if err := sess.save(); err != nil {
		return err
	}
	color.Green("Purged test history for project %s", sess.proj.Code)
	return nil
}
