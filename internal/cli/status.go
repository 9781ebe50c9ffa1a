package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hailstorm-run/hailstorm/internal/project"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status <project-code>",
	Short: "List load agents with a running jmeter process",
	Long: `Lists agents with a running jmeter_pid, probing each Master agent's
reachability in parallel (spec §4.5 status()). Returns nothing if there's
no current execution cycle.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "Output format: table|json|yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFormat != "table" && statusFormat != "json" && statusFormat != "yaml" {
		return fmt.Errorf("invalid --format %q (must be table, json or yaml)", statusFormat)
	}

	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if statusFormat == "table" {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Probing agents for %s...", sess.proj.Code)
		s.Start()
	}

	resolver := sess.ctx.ReachabilityResolver(sess.proj)
	statuses, err := sess.ctx.Coordinator().Status(context.Background(), sess.proj, resolver)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}

	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(statuses)
	default:
		return printStatusTable(sess.proj.Code, statuses)
	}
}

func printStatusTable(projectCode string, statuses []project.AgentStatus) error {
	if len(statuses) == 0 {
		color.Yellow("No running agents for project %s", projectCode)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"AGENT ID", "PLAN ID", "JMETER PID", "REACHABLE"})
	for _, s := range statuses {
		reachable := color.GreenString("yes")
		if !s.Reachable {
			reachable = color.RedString("no")
		}
		t.AppendRow(table.Row{s.AgentID, s.PlanID, s.JmeterPID, reachable})
	}
	t.Render()
	return nil
}
