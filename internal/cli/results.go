package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hailstorm-run/hailstorm/internal/project"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// resultsCmd groups the results(op, cycle_ids, opts) operations (spec §4.5)
// as one subcommand per op, the way the teacher groups related Pulumi
// stack operations under cmd/stacks.go.
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect, include/exclude, export, import and report on execution cycles",
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsExcludeCmd)
	resultsCmd.AddCommand(resultsIncludeCmd)
	resultsCmd.AddCommand(resultsExportCmd)
	resultsCmd.AddCommand(resultsImportCmd)
	resultsCmd.AddCommand(resultsReportCmd)

	resultsExportCmd.Flags().StringVar(&exportOut, "out", "", "Output zip path (required)")
	_ = resultsExportCmd.MarkFlagRequired("out")

	resultsImportCmd.Flags().StringVar(&importJTL, "jtl", "", "Path to the external result file (required)")
	resultsImportCmd.Flags().Int64Var(&importPlanID, "plan-id", 0, "JmeterPlan.ID the samples belong to (required)")
	resultsImportCmd.Flags().Int64Var(&importClusterableID, "clusterable-id", 0, "AmazonCloud/DataCenter.ID the samples were generated from (required)")
	resultsImportCmd.Flags().StringVar(&importClusterableType, "clusterable-type", "", "amazon_cloud|data_center (required)")
	resultsImportCmd.Flags().IntVar(&importThreadsCount, "threads-count", 0, "Thread count to record for the imported client stat")
	resultsImportCmd.Flags().Int64Var(&importCycleID, "cycle-id", 0, "Existing cycle to attach samples to (0: create a new stopped cycle)")
	_ = resultsImportCmd.MarkFlagRequired("jtl")
	_ = resultsImportCmd.MarkFlagRequired("plan-id")
	_ = resultsImportCmd.MarkFlagRequired("clusterable-id")
	_ = resultsImportCmd.MarkFlagRequired("clusterable-type")
}

func parseCycleIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cycle id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var cycleIDsFlag string

func addCycleIDsFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cycleIDsFlag, "cycles", "", "Comma-separated cycle ids (default: all)")
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <project-code>",
	Short: "List execution cycles",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsShow,
}

var resultsExcludeCmd = &cobra.Command{
	Use:   "exclude <project-code>",
	Short: "Move stopped cycles to excluded (dropped from reports)",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsExclude,
}

var resultsIncludeCmd = &cobra.Command{
	Use:   "include <project-code>",
	Short: "Move excluded cycles back to stopped",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsInclude,
}

var resultsExportCmd = &cobra.Command{
	Use:   "export <project-code>",
	Short: "Zip the collected JTLs for a set of cycles",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsExport,
}

var resultsReportCmd = &cobra.Command{
	Use:   "report <project-code>",
	Short: "Compose a report over stopped/reported cycles",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsReport,
}

var resultsImportCmd = &cobra.Command{
	Use:   "import <project-code>",
	Short: "Ingest an external result file into a cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsImport,
}

var (
	exportOut             string
	importJTL             string
	importPlanID          int64
	importClusterableID   int64
	importClusterableType string
	importThreadsCount    int
	importCycleID         int64
)

func init() {
	addCycleIDsFlag(resultsShowCmd)
	addCycleIDsFlag(resultsExcludeCmd)
	addCycleIDsFlag(resultsIncludeCmd)
	addCycleIDsFlag(resultsExportCmd)
	addCycleIDsFlag(resultsReportCmd)
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}
	ids, err := parseCycleIDs(cycleIDsFlag)
	if err != nil {
		return err
	}

	cycles := sess.ctx.Coordinator().Show(sess.proj, ids)
	if len(cycles) == 0 {
		color.Yellow("No execution cycles for project %s", sess.proj.Code)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "STATUS", "STARTED AT", "STOPPED AT", "THREADS"})
	for _, c := range cycles {
		stopped := ""
		if c.StoppedAt != nil {
			stopped = c.StoppedAt.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{c.ID, c.Status, c.StartedAt.Format("2006-01-02 15:04:05"), stopped, c.ThreadsCount})
	}
	t.Render()
	return nil
}

func runResultsExclude(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}
	ids, err := parseCycleIDs(cycleIDsFlag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("--cycles is required for exclude")
	}
	if err := sess.ctx.Coordinator().Exclude(sess.proj, ids); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}
	color.Green("Excluded %d cycle(s) for project %s", len(ids), sess.proj.Code)
	return nil
}

func runResultsInclude(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}
	ids, err := parseCycleIDs(cycleIDsFlag)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("--cycles is required for include")
	}
	if err := sess.ctx.Coordinator().Include(sess.proj, ids); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}
	color.Green("Included %d cycle(s) for project %s", len(ids), sess.proj.Code)
	return nil
}

func runResultsExport(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}
	ids, err := parseCycleIDs(cycleIDsFlag)
	if err != nil {
		return err
	}

	f, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOut, err)
	}
	defer f.Close()

	if err := sess.ctx.Coordinator().Export(sess.proj, sess.ws.Root(), ids, f); err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}
	color.Green("Exported %d cycle(s) to %s", len(ids), exportOut)
	return nil
}

func runResultsImport(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}

	var clusterableType store.ClusterType
	switch importClusterableType {
	case string(store.ClusterAmazonCloud):
		clusterableType = store.ClusterAmazonCloud
	case string(store.ClusterDataCenter):
		clusterableType = store.ClusterDataCenter
	default:
		return fmt.Errorf("invalid --clusterable-type %q (must be %s or %s)", importClusterableType, store.ClusterAmazonCloud, store.ClusterDataCenter)
	}

	var cycleID *int64
	if importCycleID != 0 {
		cycleID = &importCycleID
	}

	cyc, cs, err := sess.ctx.Coordinator().Import(sess.proj, project.ImportOpts{
		JTLPath:         importJTL,
		PlanID:          importPlanID,
		ClusterableID:   importClusterableID,
		ClusterableType: clusterableType,
		ThreadsCount:    importThreadsCount,
		CycleID:         cycleID,
	})
	if err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}
	color.Green("Imported %s into cycle %d (client stat %d)", importJTL, cyc.ID, cs.ID)
	return nil
}

func runResultsReport(cmd *cobra.Command, args []string) error {
	sess, err := openSession(args[0])
	if err != nil {
		return err
	}
	ids, err := parseCycleIDs(cycleIDsFlag)
	if err != nil {
		return err
	}

	rep, err := sess.ctx.Coordinator().Report(sess.proj, ids)
	if err != nil {
		return err
	}
	if err := sess.save(); err != nil {
		return err
	}

	path := sess.ws.ReportPath(fmt.Sprintf("%s.json", sess.proj.Code))
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	color.Green("Reported on %d cycle(s); wrote %s", len(rep.CycleIDs), path)
	return nil
}
