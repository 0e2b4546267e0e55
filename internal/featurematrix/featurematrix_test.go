package featurematrix_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/featurematrix"
	"github.com/wuchris/glci/internal/model"
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
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	reg, err := config.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return reg
}

const pillarYAML = `
series:
  walcl:
    source: fred
    source_id: WALCL
    country: US
    frequency: weekly
    expected_sign: 1
  rrp:
    source: fred
    source_id: RRPONTSYD
    country: US
    frequency: weekly
    expected_sign: -1
indices:
  glci:
    frequency: monthly
    normalize:
      mean: 0
      stdev: 1
    pillars:
      liquidity:
        weight: 0.5
        sign: 1
        transforms: ["zscore"]
        components:
          - series: walcl
            sign: 1
          - series: rrp
            sign: 1
      credit:
        weight: 0.5
        sign: 1
        transforms: ["zscore"]
        components:
          - series: walcl
            sign: -1
`

func monthlySeries(start time.Time, n int, start0 float64, step float64) []model.RawRow {
	rows := make([]model.RawRow, n)
	for i := 0; i < n; i++ {
		rows[i] = model.RawRow{Date: start.AddDate(0, i, 0), Value: start0 + step*float64(i)}
	}
	return rows
}

func TestBuildFeatureMatrixPreFlipsNegativeSign(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: map[string]model.RawTable{
		"fred/WALCL":     {Source: "fred", SeriesID: "WALCL", Rows: monthlySeries(day(2015, 1, 1), 30, 100, 1)},
		"fred/RRPONTSYD": {Source: "fred", SeriesID: "RRPONTSYD", Rows: monthlySeries(day(2015, 1, 1), 30, 50, 2)},
	}}
	b := featurematrix.NewBuilder(reg, f, nil)

	matrix, metadata, err := b.BuildFeatureMatrix(context.Background(), "glci", day(2015, 1, 1), day(2017, 6, 1), model.FreqMonthly)
	if err != nil {
		t.Fatalf("BuildFeatureMatrix: %v", err)
	}
	if matrix.NumRows() == 0 {
		t.Fatal("expected non-empty matrix")
	}

	var rrpMeta *model.FeatureMetadata
	for i := range metadata {
		if metadata[i].SeriesID == "rrp" {
			rrpMeta = &metadata[i]
		}
	}
	if rrpMeta == nil {
		t.Fatal("expected rrp feature metadata")
	}
	if rrpMeta.Sign != 1 {
		t.Errorf("Sign = %d, want 1 (pre-flip always normalizes to +1)", rrpMeta.Sign)
	}
}

func TestBuildPillarMatrixFiltersToOnePillar(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	f := &fakeFetcher{tables: map[string]model.RawTable{
		"fred/WALCL":     {Source: "fred", SeriesID: "WALCL", Rows: monthlySeries(day(2015, 1, 1), 30, 100, 1)},
		"fred/RRPONTSYD": {Source: "fred", SeriesID: "RRPONTSYD", Rows: monthlySeries(day(2015, 1, 1), 30, 50, 2)},
	}}
	b := featurematrix.NewBuilder(reg, f, nil)

	matrix, metadata, err := b.BuildPillarMatrix(context.Background(), "glci", "credit", day(2015, 1, 1), day(2017, 6, 1), model.FreqMonthly)
	if err != nil {
		t.Fatalf("BuildPillarMatrix: %v", err)
	}
	for _, m := range metadata {
		if m.Pillar != "credit" {
			t.Errorf("got pillar %q in credit-filtered result", m.Pillar)
		}
	}
	if len(matrix.Order) == 0 {
		t.Fatal("expected at least one credit column")
	}
}

func TestValidatePillarDataFlagsMissingSeries(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	b := featurematrix.NewBuilder(reg, &fakeFetcher{}, nil)
	metadata := []model.FeatureMetadata{
		{SeriesID: "walcl", Pillar: "liquidity", DataQuality: 1.0, LastUpdated: time.Now().UTC().Format("2006-01-02")},
	}
	report, err := b.ValidatePillarData("glci", "liquidity", metadata)
	if err != nil {
		t.Fatalf("ValidatePillarData: %v", err)
	}
	if report.TotalSeries != 2 {
		t.Errorf("TotalSeries = %d, want 2", report.TotalSeries)
	}
	if len(report.MissingSeries) != 1 || report.MissingSeries[0] != "rrp" {
		t.Errorf("MissingSeries = %v, want [rrp]", report.MissingSeries)
	}
}

func TestBuildFeatureMatrixUnknownIndexErrors(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	b := featurematrix.NewBuilder(reg, &fakeFetcher{}, nil)
	_, _, err := b.BuildFeatureMatrix(context.Background(), "nonexistent", day(2015, 1, 1), day(2017, 1, 1), model.FreqMonthly)
	if err == nil {
		t.Fatal("expected error for unknown index")
	}
}

func TestBuildFeatureMatrixRejectsArithmeticIndex(t *testing.T) {
	reg := writeRegistry(t, `
series:
  a:
    source: fred
    source_id: A
    frequency: monthly
indices:
  arith:
    method: arithmetic
    frequency: monthly
    components:
      - series: a
        operation: add
        weight: 1.0
`)
	b := featurematrix.NewBuilder(reg, &fakeFetcher{}, nil)
	_, _, err := b.BuildFeatureMatrix(context.Background(), "arith", day(2015, 1, 1), day(2017, 1, 1), model.FreqMonthly)
	if err == nil {
		t.Fatal("expected error building a feature matrix from a non-pillarized index")
	}
}

func TestBuildFeatureMatrixAlignsWithBoundedFill(t *testing.T) {
	reg := writeRegistry(t, pillarYAML)
	// WALCL has a gap in the middle; RRP has full coverage.
	walclRows := monthlySeries(day(2015, 1, 1), 40, 100, 1)
	walclRows = append(walclRows[:20], walclRows[25:]...) // drop 5 months
	f := &fakeFetcher{tables: map[string]model.RawTable{
		"fred/WALCL":     {Source: "fred", SeriesID: "WALCL", Rows: walclRows},
		"fred/RRPONTSYD": {Source: "fred", SeriesID: "RRPONTSYD", Rows: monthlySeries(day(2015, 1, 1), 40, 50, 2)},
	}}
	b := featurematrix.NewBuilder(reg, f, nil)
	matrix, _, err := b.BuildFeatureMatrix(context.Background(), "glci", day(2015, 1, 1), day(2018, 6, 1), model.FreqMonthly)
	if err != nil {
		t.Fatalf("BuildFeatureMatrix: %v", err)
	}
	// every column should be aligned to the same date grid
	for _, col := range matrix.Order {
		if len(matrix.Column(col)) != matrix.NumRows() {
			t.Errorf("column %q has %d rows, want %d", col, len(matrix.Column(col)), matrix.NumRows())
		}
	}
}

func nanCount(vals []float64) int {
	n := 0
	for _, v := range vals {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
