package glci_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/featurematrix"
	"github.com/wuchris/glci/internal/glci"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/store"
)

type fakeFetcher struct {
	tables map[string]model.RawTable
}

func (f *fakeFetcher) Fetch(ctx context.Context, source, seriesID string, start, end time.Time) (model.RawTable, error) {
	t, ok := f.tables[source+"/"+seriesID]
	if !ok {
		return model.RawTable{}, os.ErrNotExist
	}
	return t, nil
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func writeRegistry(t *testing.T, body string) *config.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	reg, err := config.LoadRegistry(path)
	require.NoError(t, err)
	return reg
}

func monthlySeries(start time.Time, n int, start0, step float64) []model.RawRow {
	rows := make([]model.RawRow, n)
	for i := 0; i < n; i++ {
		rows[i] = model.RawRow{Date: start.AddDate(0, i, 0), Value: start0 + step*float64(i)}
	}
	return rows
}

const pillarYAML = `
series:
  walcl:
    source: fred
    source_id: WALCL
    country: US
    frequency: monthly
    expected_sign: 1
  rrp:
    source: fred
    source_id: RRPONTSYD
    country: US
    frequency: monthly
    expected_sign: -1
indices:
  glci:
    frequency: monthly
    normalize:
      mean: 100
      stdev: 10
    pillars:
      liquidity:
        weight: 0.5
        sign: 1
        transforms: ["zscore"]
        components:
          - series: walcl
            sign: 1
      credit:
        weight: 0.5
        sign: 1
        transforms: ["zscore"]
        components:
          - series: rrp
            sign: 1
`

func newComputer(t *testing.T, reg *config.Registry, f *fakeFetcher) *glci.Computer {
	t.Helper()
	builder := featurematrix.NewBuilder(reg, f, nil)
	st, err := store.NewStore(filepath.Join(t.TempDir(), "raw"), filepath.Join(t.TempDir(), "curated"))
	require.NoError(t, err)
	return glci.NewComputer(reg, builder, f, st)
}

func syntheticTables() map[string]model.RawTable {
	walcl := monthlySeries(day(2010, 1, 1), 80, 4000, 5)
	rrp := monthlySeries(day(2010, 1, 1), 80, 2000, -3)
	return map[string]model.RawTable{
		"fred/WALCL":     {Source: "fred", SeriesID: "WALCL", Rows: walcl},
		"fred/RRPONTSYD": {Source: "fred", SeriesID: "RRPONTSYD", Rows: rrp},
	}
}

func TestComputeProducesRecordsAndMetadata(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: syntheticTables()}
	c := newComputer(t, reg, f)

	result, err := c.Compute(context.Background(), "glci", day(2010, 1, 1), day(2016, 12, 1), glci.Options{
		TargetFreq: model.FreqMonthly,
		Save:       true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Records)
	assert.Len(t, result.MissingPillars, 0)
	assert.Contains(t, result.Weights, "liquidity")
	assert.Contains(t, result.Weights, "credit")

	var sum float64
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for _, r := range result.Records {
		assert.Contains(t, []int{-1, 0, 1}, r.Regime)
	}

	assert.NotEmpty(t, result.Metadata.PillarStats)
	assert.Contains(t, result.Metadata.PillarStats, "liquidity")
}

func TestComputeUnknownIndexErrors(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: syntheticTables()}
	c := newComputer(t, reg, f)

	_, err := c.Compute(context.Background(), "nonexistent", day(2010, 1, 1), day(2016, 1, 1), glci.Options{})
	assert.Error(t, err)
}

func TestComputeSkipsPillarAndRedistributesWeight(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	// Only WALCL is fetchable; RRP (the credit pillar's only series) fails
	// every fetch, so credit should be skipped and liquidity should end up
	// with the full weight.
	f := &fakeFetcher{tables: map[string]model.RawTable{
		"fred/WALCL": {Source: "fred", SeriesID: "WALCL", Rows: monthlySeries(day(2010, 1, 1), 80, 4000, 5)},
	}}
	c := newComputer(t, reg, f)

	result, err := c.Compute(context.Background(), "glci", day(2010, 1, 1), day(2016, 12, 1), glci.Options{TargetFreq: model.FreqMonthly})
	require.NoError(t, err)
	assert.Contains(t, result.MissingPillars, "credit")
	assert.InDelta(t, 1.0, result.Weights["liquidity"], 1e-9)
	assert.NotContains(t, result.Weights, "credit")
}

func TestComputeErrorsWhenNoPillarsSucceed(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	c := newComputer(t, reg, &fakeFetcher{})

	_, err := c.Compute(context.Background(), "glci", day(2010, 1, 1), day(2016, 1, 1), glci.Options{TargetFreq: model.FreqMonthly})
	assert.Error(t, err)
}

func TestGetLatestAfterSave(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: syntheticTables()}
	c := newComputer(t, reg, f)

	_, err := c.Compute(context.Background(), "glci", day(2010, 1, 1), day(2016, 12, 1), glci.Options{
		TargetFreq: model.FreqMonthly,
		Save:       true,
	})
	require.NoError(t, err)

	latest, ok, err := c.GetLatest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, []string{"tight", "neutral", "loose"}, latest.RegimeLabel)
}

func TestPillarBreakdownUsesCurrentWeights(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: syntheticTables()}
	c := newComputer(t, reg, f)

	_, err := c.Compute(context.Background(), "glci", day(2010, 1, 1), day(2016, 12, 1), glci.Options{
		TargetFreq: model.FreqMonthly,
		Save:       true,
	})
	require.NoError(t, err)

	_, breakdown, err := c.PillarBreakdown("glci")
	require.NoError(t, err)
	require.Contains(t, breakdown, "liquidity")
	require.Contains(t, breakdown, "credit")
	assert.InDelta(t, 0.5, breakdown["liquidity"].Weight, 1e-9)
}

func TestPillarBreakdownErrorsWithoutSavedData(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	c := newComputer(t, reg, &fakeFetcher{tables: syntheticTables()})
	_, _, err := c.PillarBreakdown("glci")
	assert.Error(t, err)
}

func TestFreshnessReportsStaleForUnfetchableSeries(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	c := newComputer(t, reg, &fakeFetcher{})

	entries, err := c.Freshness(context.Background(), "glci")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, -1, e.DaysOld)
		assert.True(t, e.IsStale)
		assert.Equal(t, "unknown", e.LastDate)
	}
}

func TestFreshnessReportsFreshForRecentSeries(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	recentRows := monthlySeries(time.Now().UTC().AddDate(0, -2, 0), 3, 100, 1)
	f := &fakeFetcher{tables: map[string]model.RawTable{
		"fred/WALCL":     {Source: "fred", SeriesID: "WALCL", Rows: recentRows},
		"fred/RRPONTSYD": {Source: "fred", SeriesID: "RRPONTSYD", Rows: recentRows},
	}}
	c := newComputer(t, reg, f)

	entries, err := c.Freshness(context.Background(), "glci")
	require.NoError(t, err)
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.DaysOld, 0)
	}
}
