package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// historyLimit caps how many of the most recent audit events are printed,
// newest last (spec §9 design note on save_history/command_history; the
// threshold itself is the maxSize passed to audit.NewInMemoryLogger, not
// this flag).
var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <project-code>",
	Short: "Show the command/configuration/cycle-transition audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of events to show, most recent last")
}

func runHistory(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	events := sess.ctx.Audit.List() // newest first
	if len(events) == 0 {
		color.Yellow("No audit history for project %s", sess.proj.Code)
		return nil
	}
	if historyLimit > 0 && len(events) > historyLimit {
		events = events[:historyLimit]
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TIME", "ACTION", "DESCRIPTION", "SUCCESS"})
	for _, e := range events {
		success := color.GreenString("yes")
		if !e.Success {
			success = color.RedString("no")
		}
		t.AppendRow(table.Row{e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Description, success})
	}
	t.Render()
	return nil
}
