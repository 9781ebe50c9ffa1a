package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailstorm-run/hailstorm/internal/cycle"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

func writeJTL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestAggregator() (*Aggregator, *store.Store, *cycle.Controller) {
	st := store.New()
	cycleCtl := cycle.New(st)
	return New(st, cycleCtl, nil), st, cycleCtl
}

func TestScoreProducesPageAndClientStats(t *testing.T) {
	a, st, cycleCtl := newTestAggregator()
	p, _ := st.CreateProject(store.Project{Code: "p1"})
	cyc, err := cycleCtl.Begin(p)
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeJTL(t, dir, "agent-1.jtl", sampleCSV)

	cs, err := a.Score(cyc.ID, 1, 1, store.ClusterDataCenter, 5, []string{path}, "1,3")
	require.NoError(t, err)
	assert.Equal(t, 5, cs.ThreadsCount)
	assert.Greater(t, cs.AggregateResponseThroughput, 0.0)
	assert.NotNil(t, cs.LastSampleAt)

	pages := st.ListPageStats(cs.ID)
	assert.Len(t, pages, 2) // "home" and "login" labels
}

func TestCreateReportFlipsStoppedCyclesToReported(t *testing.T) {
	a, st, cycleCtl := newTestAggregator()
	p, _ := st.CreateProject(store.Project{Code: "p2"})
	cyc, _ := cycleCtl.Begin(p)
	_, err := cycleCtl.Stop(cyc.ID)
	require.NoError(t, err)

	rep, err := a.CreateReport(p.ID, []int64{cyc.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{cyc.ID}, rep.CycleIDs)

	got, _ := st.GetCycle(cyc.ID)
	assert.Equal(t, store.CycleReported, got.Status)
}

func TestCreateReportRejectsEmptySelection(t *testing.T) {
	a, st, cycleCtl := newTestAggregator()
	p, _ := st.CreateProject(store.Project{Code: "p3"})
	cyc, _ := cycleCtl.Begin(p) // still "started", not eligible

	_, err := a.CreateReport(p.ID, []int64{cyc.ID})
	assert.Error(t, err)
}

func TestExportThenImportReproducesPageStats(t *testing.T) {
	a, st, cycleCtl := newTestAggregator()
	p, _ := st.CreateProject(store.Project{Code: "p4"})
	cyc, _ := cycleCtl.Begin(p)
	_, err := cycleCtl.Stop(cyc.ID)
	require.NoError(t, err)

	workDir := t.TempDir()
	seqDir := filepath.Join(workDir, "tmp", fmt.Sprintf("SEQUENCE-%d", cyc.ID))
	require.NoError(t, os.MkdirAll(seqDir, 0o755))
	writeJTL(t, seqDir, "a.jtl", sampleCSV)

	cs1, err := a.Score(cyc.ID, 1, 1, store.ClusterDataCenter, 1, []string{filepath.Join(seqDir, "a.jtl")}, "1,3")
	require.NoError(t, err)
	wantPages := st.ListPageStats(cs1.ID)

	var buf bytes.Buffer
	require.NoError(t, a.Export(workDir, []int64{cyc.ID}, &buf))
	assert.Greater(t, buf.Len(), 0)

	extracted := unzipSingle(t, buf.Bytes(), t.TempDir())

	_, cs2, err := a.Import(p, extracted, 1, 1, store.ClusterDataCenter, 1, nil)
	require.NoError(t, err)

	gotPages := st.ListPageStats(cs2.ID)
	require.Equal(t, len(wantPages), len(gotPages))
	for i := range wantPages {
		assert.InDelta(t, wantPages[i].AverageResponseTime, gotPages[i].AverageResponseTime, 1e-6)
		assert.InDelta(t, wantPages[i].NinetyPercentileResponseTime, gotPages[i].NinetyPercentileResponseTime, 1e-6)
		assert.Equal(t, wantPages[i].PageLabel, gotPages[i].PageLabel)
	}
}

// unzipSingle extracts the lone entry of a single-cycle export into dir and
// returns its path, for round-tripping through Import in tests.
func unzipSingle(t *testing.T, data []byte, dir string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)

	entry := zr.File[0]
	rc, err := entry.Open()
	require.NoError(t, err)
	defer rc.Close()

	out := filepath.Join(dir, filepath.Base(entry.Name))
	f, err := os.Create(out)
	require.NoError(t, err)
	defer f.Close()

	_, err = io.Copy(f, rc)
	require.NoError(t, err)
	return out
}
