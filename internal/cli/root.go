// Package cli is the hailstorm command tree: one cobra command per C7
// project-coordinator operation (setup/start/stop/abort/terminate/status/
// results/purge), plus history. Grounded on the teacher's cmd/root.go
// shape — persistent flags, cobra.OnInitialize for saved credentials, a
// version template set from main.go's ldflags — generalized from a single
// Pulumi stack argument to a project-workspace-root flag plus a project
// code positional argument, since Hailstorm has no stack concept.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hailstorm-run/hailstorm/internal/common"
)

var (
	workspaceRoot string
	verbose       bool

	// Version information, set by cmd/hailstorm/main.go's ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

// SetVersionInfo sets the version information from main.go.
func SetVersionInfo(version, commit, date, builtBy string) {
	Version = version
	Commit = commit
	Date = date
	BuiltBy = builtBy
}

var rootCmd = &cobra.Command{
	Use:   "hailstorm",
	Short: "Distributed JMeter load-test orchestration engine",
	Long: `Hailstorm drives JMeter load tests across a fleet of agent hosts —
elastic EC2 instances or a fixed data center — against a set of monitored
target hosts, aggregating client- and target-side metrics into reports.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&workspaceRoot, "workspace-root", "w", ".hailstorm", "Base directory holding one subdirectory per project workspace")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose (debug-level) logging")

	rootCmd.SetVersionTemplate(fmt.Sprintf(`Hailstorm %s
  Commit:    %s
  Built:     %s
  Built by:  %s
`, Version, Commit, Date, BuiltBy))
	rootCmd.Version = Version
}

// initConfig loads saved cloud credentials from ~/.hailstorm/config before
// any command runs, the way the teacher's root.go loads saved Pulumi
// credentials.
func initConfig() {
	_ = common.LoadSavedConfig()
}
