package riskmetrics_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/riskmetrics"
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

func dailySeries(start time.Time, n int, start0, drift, amplitude float64) []model.RawRow {
	rows := make([]model.RawRow, n)
	v := start0
	for i := 0; i < n; i++ {
		v += drift + amplitude*math.Sin(float64(i)/7)
		rows[i] = model.RawRow{Date: start.AddDate(0, 0, i), Value: v}
	}
	return rows
}

func writeRegistry(t *testing.T, body string) *config.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	reg, err := config.LoadRegistry(path)
	require.NoError(t, err)
	return reg
}

const assetYAML = `
series:
  sp500_price:
    source: stooq
    source_id: SPX
    frequency: daily
  treasury_3m:
    source: fred
    source_id: DTB3
    frequency: daily
`

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "raw"), filepath.Join(t.TempDir(), "curated"))
	require.NoError(t, err)
	return st
}

func seedGLCI(t *testing.T, st *store.Store, n int) {
	t.Helper()
	records := make([]model.GLCIRecord, n)
	for i := 0; i < n; i++ {
		regime := 0
		if i%3 == 0 {
			regime = -1
		} else if i%5 == 0 {
			regime = 1
		}
		records[i] = model.GLCIRecord{
			Date:   day(2018, 1, 1).AddDate(0, 0, i).Unix(),
			Value:  100 + float64(i)*0.1,
			Regime: regime,
		}
	}
	require.NoError(t, st.SaveGLCI(records, nil, model.GLCIWeights{}, model.GLCIMetadata{ComputedAt: "2018-01-01T00:00:00Z"}))
}

func TestComputeProducesDashboard(t *testing.T) {
	reg := writeRegistry(t, assetYAML)
	st := newStore(t)
	seedGLCI(t, st, 400)

	f := &fakeFetcher{tables: map[string]model.RawTable{
		"stooq/SPX": {Source: "stooq", SeriesID: "SPX", Rows: dailySeries(day(2018, 1, 1), 400, 2500, 0.5, 10)},
		"fred/DTB3": {Source: "fred", SeriesID: "DTB3", Rows: dailySeries(day(2018, 1, 1), 400, 2.0, 0.0, 0.1)},
	}}
	c := riskmetrics.NewComputer(reg, f, st)
	c.Assets = []model.AssetConfig{{AssetID: "sp500_price", Name: "S&P 500", Category: "Large Cap Equities"}}

	dashboard, err := c.Compute(context.Background(), day(2018, 1, 1), day(2019, 2, 4), riskmetrics.Options{Save: true})
	require.NoError(t, err)
	require.Len(t, dashboard.Assets, 1)
	asset := dashboard.Assets[0]
	assert.Equal(t, "sp500_price", asset.AssetID)
	assert.NotEmpty(t, asset.RollingSharpe)
	assert.Contains(t, []string{"tight", "neutral", "loose"}, dashboard.CurrentRegime)
	assert.Len(t, dashboard.RegimeMatrix.SharpeData, 1)
	assert.Len(t, dashboard.RegimeMatrix.SharpeData[0], 3)
}

func TestComputeSkipsUnfetchableAsset(t *testing.T) {
	reg := writeRegistry(t, assetYAML)
	st := newStore(t)
	seedGLCI(t, st, 60)

	f := &fakeFetcher{tables: map[string]model.RawTable{}}
	c := riskmetrics.NewComputer(reg, f, st)
	c.Assets = []model.AssetConfig{{AssetID: "sp500_price", Name: "S&P 500", Category: "Large Cap Equities"}}

	dashboard, err := c.Compute(context.Background(), day(2018, 1, 1), day(2018, 3, 1), riskmetrics.Options{})
	require.NoError(t, err)
	assert.Empty(t, dashboard.Assets)
}

func TestComputeErrorsWithoutGLCIData(t *testing.T) {
	reg := writeRegistry(t, assetYAML)
	st := newStore(t)
	c := riskmetrics.NewComputer(reg, &fakeFetcher{}, st)

	_, err := c.Compute(context.Background(), day(2018, 1, 1), day(2018, 3, 1), riskmetrics.Options{})
	assert.Error(t, err)
}

func TestRegimeStatsNullBelowMinimumObservations(t *testing.T) {
	reg := writeRegistry(t, assetYAML)
	st := newStore(t)
	seedGLCI(t, st, 10) // too few rows to accumulate 20 observations in any one regime

	f := &fakeFetcher{tables: map[string]model.RawTable{
		"stooq/SPX": {Source: "stooq", SeriesID: "SPX", Rows: dailySeries(day(2018, 1, 1), 10, 2500, 0.5, 10)},
	}}
	c := riskmetrics.NewComputer(reg, f, st)
	c.Assets = []model.AssetConfig{{AssetID: "sp500_price", Name: "S&P 500", Category: "Large Cap Equities"}}

	dashboard, err := c.Compute(context.Background(), day(2018, 1, 1), day(2018, 1, 11), riskmetrics.Options{})
	require.NoError(t, err)
	require.Len(t, dashboard.Assets, 1)
	for _, label := range []string{"tight", "neutral", "loose"} {
		assert.Nil(t, dashboard.Assets[0].SharpeByRegime[label])
	}
}
