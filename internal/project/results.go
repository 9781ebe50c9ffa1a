package project

import (
	"io"

	"github.com/hailstorm-run/hailstorm/internal/audit"
	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/report"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Reporter is the subset of report.Aggregator the Coordinator's results()
// operations need (spec §4.5 results(op, cycle_ids, opts), C8). Kept as an
// interface, not a concrete *report.Aggregator field, so tests can stub it
// the same way BackendResolver is stubbed.
type Reporter interface {
	CreateReport(projectID int64, cycleIDs []int64) (*report.Report, error)
	Export(workDir string, cycleIDs []int64, w io.Writer) error
	Import(project *store.Project, jtlPath string, planID, clusterableID int64, clusterableType store.ClusterType, threadsCount int, cycleID *int64) (*store.ExecutionCycle, *store.ClientStat, error)
}

// WithReporter attaches rep so Results(export|import|report) can delegate
// to it. Called once by the wiring layer (internal/hailctx.Context.Coordinator)
// after New, since report.Aggregator itself depends on the same
// cycle.Controller the Coordinator already owns.
func (c *Coordinator) WithReporter(rep Reporter) *Coordinator {
	c.reporter = rep
	return c
}

// Show lists the cycles in cycleIDs (or every cycle, if cycleIDs is empty)
// belonging to project (spec §4.5 results(show)).
func (c *Coordinator) Show(project *store.Project, cycleIDs []int64) []*store.ExecutionCycle {
	return c.st.ListCycles(project.ID, cycleIDs)
}

// Exclude moves every stopped cycle in cycleIDs to excluded (spec §4.5
// results(exclude)).
func (c *Coordinator) Exclude(project *store.Project, cycleIDs []int64) error {
	return c.withProjectLock(project.ID, func() error {
		for _, id := range cycleIDs {
			if _, err := c.cycleCtl.Exclude(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Include moves every excluded cycle in cycleIDs back to stopped (spec
// §4.5 results(include)).
func (c *Coordinator) Include(project *store.Project, cycleIDs []int64) error {
	return c.withProjectLock(project.ID, func() error {
		for _, id := range cycleIDs {
			if _, err := c.cycleCtl.Include(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Export zips the collected JTLs for cycleIDs into w (spec §4.5
// results(export)).
func (c *Coordinator) Export(project *store.Project, workDir string, cycleIDs []int64, w io.Writer) error {
	if c.reporter == nil {
		return herrors.Configuration("no reporter wired into this coordinator", nil)
	}
	err := c.reporter.Export(workDir, cycleIDs, w)
	c.record(audit.ActionExport, project, "results export", err == nil)
	return err
}

// ImportOpts selects where an imported JTL's samples attach (spec §4.5
// results(import) selectors "(jmeter_plan, cluster, exec_cycle_id?)").
type ImportOpts struct {
	JTLPath         string
	PlanID          int64
	ClusterableID   int64
	ClusterableType store.ClusterType
	ThreadsCount    int
	CycleID         *int64 // nil: create a new stopped cycle
}

// Import ingests an external result file into opts.CycleID, or a freshly
// created cycle if nil, and recomputes its stats (spec §4.5
// results(import)).
func (c *Coordinator) Import(project *store.Project, opts ImportOpts) (*store.ExecutionCycle, *store.ClientStat, error) {
	if c.reporter == nil {
		return nil, nil, herrors.Configuration("no reporter wired into this coordinator", nil)
	}
	var cyc *store.ExecutionCycle
	var cs *store.ClientStat
	err := c.withProjectLock(project.ID, func() error {
		var innerErr error
		cyc, cs, innerErr = c.reporter.Import(project, opts.JTLPath, opts.PlanID, opts.ClusterableID, opts.ClusterableType, opts.ThreadsCount, opts.CycleID)
		return innerErr
	})
	c.record(audit.ActionImport, project, "results import", err == nil)
	if err != nil {
		return nil, nil, err
	}
	return cyc, cs, nil
}

// Report produces a cross-cycle report over cycleIDs, flipping each
// selected stopped cycle to reported (spec §4.5 results(report), C8 step
// 4).
func (c *Coordinator) Report(project *store.Project, cycleIDs []int64) (*report.Report, error) {
	if c.reporter == nil {
		return nil, herrors.Configuration("no reporter wired into this coordinator", nil)
	}
	var rep *report.Report
	err := c.withProjectLock(project.ID, func() error {
		var innerErr error
		rep, innerErr = c.reporter.CreateReport(project.ID, cycleIDs)
		return innerErr
	})
	c.record(audit.ActionReport, project, "results report", err == nil)
	return rep, err
}
