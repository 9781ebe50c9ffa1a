package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBreakupIntervalOrdersThresholds(t *testing.T) {
	got := ParseBreakupInterval("5, 1,3")
	assert.Equal(t, []float64{1000, 3000, 5000}, got)
}

func TestPageAccumulatorComputeBasicStats(t *testing.T) {
	acc := newPageAccumulator("home")
	base := time.Unix(1700000000, 0)
	acc.add(Sample{Timestamp: base, Elapsed: 100, Success: true, Bytes: 100})
	acc.add(Sample{Timestamp: base.Add(time.Second), Elapsed: 200, Success: true, Bytes: 200})
	acc.add(Sample{Timestamp: base.Add(2 * time.Second), Elapsed: 300, Success: false, Bytes: 300})

	got := acc.compute(ParseBreakupInterval("1,3"))
	assert.Equal(t, int64(3), got.SamplesCount)
	assert.InDelta(t, 200, got.Average, 1e-9)
	assert.Equal(t, 100.0, got.Minimum)
	assert.Equal(t, 300.0, got.Maximum)
	assert.InDelta(t, 100.0/3, got.PercentageErrors, 1e-9)
	assert.Greater(t, got.ResponseThroughput, 0.0)

	var breakup map[string]int64
	require.NoError(t, json.Unmarshal([]byte(got.SamplesBreakupJSON), &breakup))
	assert.Equal(t, int64(3), breakup["1"])
	assert.Equal(t, int64(0), breakup["3"])
}

func TestPageAccumulatorComputeEmptyIsZeroValue(t *testing.T) {
	acc := newPageAccumulator("empty")
	got := acc.compute(nil)
	assert.Equal(t, int64(0), got.SamplesCount)
	assert.Equal(t, "{}", got.SamplesBreakupJSON)
}

func TestPercentileMatchesKnownValues(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 5.5, percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 1, percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 10, percentile(sorted, 100), 1e-9)
}

func TestByLabelPreservesFirstSeenOrder(t *testing.T) {
	samples := []Sample{{Label: "b"}, {Label: "a"}, {Label: "b"}, {Label: "c"}}
	assert.Equal(t, []string{"b", "a", "c"}, ByLabel(samples))
}
