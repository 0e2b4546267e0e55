package fetcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/model"
)

type fakeLoader struct {
	tables map[string]model.RawTable
}

func (f *fakeLoader) LoadRaw(source, seriesID string) (model.RawTable, bool, error) {
	t, ok := f.tables[source+"/"+seriesID]
	return t, ok, nil
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestStubFetchFiltersWindow(t *testing.T) {
	loader := &fakeLoader{tables: map[string]model.RawTable{
		"fred/WALCL": {
			Source:   "fred",
			SeriesID: "WALCL",
			Rows: []model.RawRow{
				{Date: day(2020, 1, 1), Value: 1},
				{Date: day(2020, 6, 1), Value: 2},
				{Date: day(2021, 1, 1), Value: 3},
			},
		},
	}}
	f := fetcher.NewStub(loader)

	got, err := f.Fetch(context.Background(), "fred", "WALCL", day(2020, 2, 1), day(2020, 12, 31))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].Value != 2 {
		t.Errorf("unexpected filtered rows: %+v", got.Rows)
	}
}

func TestStubFetchUnboundedWindow(t *testing.T) {
	loader := &fakeLoader{tables: map[string]model.RawTable{
		"fred/WALCL": {
			Source:   "fred",
			SeriesID: "WALCL",
			Rows: []model.RawRow{
				{Date: day(2020, 1, 1), Value: 1},
				{Date: day(2021, 1, 1), Value: 2},
			},
		},
	}}
	f := fetcher.NewStub(loader)
	got, err := f.Fetch(context.Background(), "fred", "WALCL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Errorf("expected unbounded window to return all rows, got %d", len(got.Rows))
	}
}

func TestStubFetchMissingSeriesErrors(t *testing.T) {
	f := fetcher.NewStub(&fakeLoader{tables: map[string]model.RawTable{}})
	_, err := f.Fetch(context.Background(), "fred", "NOPE", time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected error for unavailable series")
	}
}

func TestStubFetchRespectsCancelledContext(t *testing.T) {
	f := fetcher.NewStub(&fakeLoader{tables: map[string]model.RawTable{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, "fred", "WALCL", time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
