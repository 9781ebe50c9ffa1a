// Package report is the Result Aggregator & Reporter (spec §4.6, C8): it
// turns collected `.jtl` files into PageStat/ClientStat rows, aggregates
// target monitor trends into TargetStat, and composes cross-cycle reports
// (export/import/report), grounded on the teacher's "collect artifacts then
// summarize" shape (pkg/health's aggregation of per-node probe results) but
// built around JMeter's own result format rather than cluster health checks.
package report

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/cycle"
	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Aggregator is the C8 façade over internal/store.
type Aggregator struct {
	st    *store.Store
	cycle *cycle.Controller
	log   *zap.SugaredLogger
}

// New constructs an Aggregator.
func New(st *store.Store, cycleCtl *cycle.Controller, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{st: st, cycle: cycleCtl, log: log}
}

// Score parses jtlPaths (one or more files collected from the agents that
// ran jmeterPlan against clusterableID), writes their PageStat rows, and
// aggregates them into a single ClientStat for (cycleID, plan, clusterable)
// per spec §4.6 steps 1-2.
func (a *Aggregator) Score(cycleID, planID, clusterableID int64, clusterableType store.ClusterType, threadsCount int, jtlPaths []string, breakupInterval string) (*store.ClientStat, error) {
	var samples []Sample
	for _, path := range jtlPaths {
		s, err := ParseJTL(path)
		if err != nil {
			return nil, fmt.Errorf("score cycle %d: %w", cycleID, err)
		}
		samples = append(samples, s...)
	}

	thresholds := ParseBreakupInterval(breakupInterval)

	byLabel := make(map[string][]Sample)
	for _, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	cs, err := a.st.CreateClientStat(store.ClientStat{
		ExecutionCycleID: cycleID,
		JmeterPlanID:     planID,
		ClusterableID:    clusterableID,
		ClusterableType:  clusterableType,
		ThreadsCount:     threadsCount,
	})
	if err != nil {
		return nil, err
	}

	var (
		weightedP90Sum     float64
		totalSamples       int64
		totalThroughput    float64
		lastSample         time.Time
		haveLastSample     bool
	)

	for _, label := range ByLabel(samples) {
		acc := newPageAccumulator(label)
		for _, s := range byLabel[label] {
			acc.add(s)
			if !haveLastSample || s.Timestamp.After(lastSample) {
				lastSample = s.Timestamp
				haveLastSample = true
			}
		}
		computed := acc.compute(thresholds)

		if _, err := a.st.CreatePageStat(store.PageStat{
			ClientStatID:                 cs.ID,
			PageLabel:                    computed.Label,
			SamplesCount:                 computed.SamplesCount,
			AverageResponseTime:          computed.Average,
			MedianResponseTime:           computed.Median,
			NinetyPercentileResponseTime: computed.NinetyPercentile,
			MinimumResponseTime:          computed.Minimum,
			MaximumResponseTime:          computed.Maximum,
			PercentageErrors:             computed.PercentageErrors,
			ResponseThroughput:           computed.ResponseThroughput,
			SizeThroughput:               computed.SizeThroughput,
			StandardDeviation:            computed.StandardDeviation,
			SamplesBreakupJSON:           computed.SamplesBreakupJSON,
		}); err != nil {
			return nil, err
		}

		weightedP90Sum += computed.NinetyPercentile * float64(computed.SamplesCount)
		totalSamples += computed.SamplesCount
		totalThroughput += computed.ResponseThroughput
	}

	if totalSamples > 0 {
		cs.AggregateNinetyPercentile = weightedP90Sum / float64(totalSamples)
	}
	cs.AggregateResponseThroughput = totalThroughput
	if haveLastSample {
		cs.LastSampleAt = &lastSample
	}
	if err := a.st.UpdateClientStat(cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// Report is the document create_report(cycle_ids) produces (spec §4.6
// step 4). The concrete rendering (HTML/PDF) is left to an external
// renderer per spec's "(external) report renderer" note; this struct is
// the data it would render from.
type Report struct {
	CycleIDs    []int64
	ClientStats []*store.ClientStat
	TargetStats []*store.TargetStat
}

// CreateReport selects the stopped/reported cycles among cycleIDs, builds a
// Report over their stats, and flips each selected cycle stopped -> reported.
func (a *Aggregator) CreateReport(projectID int64, cycleIDs []int64) (*Report, error) {
	cycles := a.st.ListCycles(projectID, cycleIDs)

	rep := &Report{}
	for _, c := range cycles {
		if c.Status != store.CycleStopped && c.Status != store.CycleReported {
			continue
		}
		rep.CycleIDs = append(rep.CycleIDs, c.ID)
		rep.ClientStats = append(rep.ClientStats, a.st.ListClientStats(c.ID)...)
		rep.TargetStats = append(rep.TargetStats, a.st.ListTargetStats(c.ID)...)

		if c.Status == store.CycleStopped {
			if _, err := a.cycle.MarkReported(c.ID); err != nil {
				return nil, fmt.Errorf("mark cycle %d reported: %w", c.ID, err)
			}
		}
	}
	if len(rep.CycleIDs) == 0 {
		return nil, herrors.Configuration("no stopped or reported cycles found in selection", nil)
	}
	return rep, nil
}

// Export zips the collected JTLs under workDir/tmp/SEQUENCE-<id>/ for each
// requested cycle into w, preserving the SEQUENCE-<id>/ prefix so Import can
// reconstruct the same layout on the other end.
func (a *Aggregator) Export(workDir string, cycleIDs []int64, w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, id := range cycleIDs {
		seqDir := filepath.Join(workDir, "tmp", fmt.Sprintf("SEQUENCE-%d", id))
		entries, err := os.ReadDir(seqDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("export cycle %d: %w", id, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := addFileToZip(zw, filepath.Join(seqDir, e.Name()), fmt.Sprintf("SEQUENCE-%d/%s", id, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, path, zipName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w, err := zw.Create(zipName)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", zipName, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s into zip: %w", path, err)
	}
	return nil
}

// Import reverses Collect: given an external JTL and the plan/clusterable it
// belongs to, attaches its samples to cycleID (or a freshly-created stopped
// cycle if cycleID is nil) and recomputes stats for it.
func (a *Aggregator) Import(project *store.Project, jtlPath string, planID, clusterableID int64, clusterableType store.ClusterType, threadsCount int, cycleID *int64) (*store.ExecutionCycle, *store.ClientStat, error) {
	var cyc *store.ExecutionCycle
	var err error

	if cycleID != nil {
		cyc, err = a.st.GetCycle(*cycleID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cyc, err = a.st.StartCycle(store.ExecutionCycle{ProjectID: project.ID})
		if err != nil {
			return nil, nil, err
		}
		cyc, err = a.st.TransitionCycle(cyc.ID, store.CycleStopped)
		if err != nil {
			return nil, nil, err
		}
	}

	cs, err := a.Score(cyc.ID, planID, clusterableID, clusterableType, threadsCount, []string{jtlPath}, project.SamplesBreakupInterval)
	if err != nil {
		return nil, nil, err
	}
	return cyc, cs, nil
}
