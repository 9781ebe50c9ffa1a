// Command hailstorm is the CLI entry point: one subcommand per C7
// project-coordinator operation, wired through internal/cli. Grounded on
// the teacher's main.go (cmd.SetVersionInfo + cmd.Execute(), ldflags-set
// version vars).
package main

import "github.com/hailstorm-run/hailstorm/internal/cli"

// Version information, set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date, builtBy)
	cli.Execute()
}
