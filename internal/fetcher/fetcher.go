// Package fetcher defines the boundary the analytics core depends on for
// new observations: a Fetcher hands back a standardized table (date, value,
// source, series_id, fetched_at) for any configured series, per §6's
// "Fetcher collaborator (external)" contract. The core never talks to a
// data-source client directly — it only ever calls Fetcher.Fetch.
//
// Implementations in this package: Stub, which serves whatever rows are
// already sitting in the raw store (useful for `compute` runs against
// previously fetched data); HTTP (http.go), a rate-limited, retrying
// fetcher for one network provider; and Multi (multi.go), which dispatches
// by source to one HTTP client per provider.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/wuchris/glci/internal/model"
)

// Fetcher hands back a RawTable for a configured series over [start,end].
// A zero time.Time for start or end means "unbounded on that side".
type Fetcher interface {
	Fetch(ctx context.Context, source, seriesID string, start, end time.Time) (model.RawTable, error)
}

// RawLoader is the subset of internal/store.Store the Stub fetcher needs —
// declared here rather than imported directly so this package stays free of
// a hard dependency on the store's on-disk layout.
type RawLoader interface {
	LoadRaw(source, seriesID string) (model.RawTable, bool, error)
}

// Stub fetches by reading whatever has already been persisted to the raw
// store, trimmed to [start,end]. It never makes a network call; this is
// what "series unavailable for window" degrades to when no real fetcher is
// configured.
type Stub struct {
	Loader RawLoader
}

// NewStub constructs a Stub backed by loader.
func NewStub(loader RawLoader) *Stub {
	return &Stub{Loader: loader}
}

// Fetch implements Fetcher by reading from the raw store and filtering to
// the requested window. Returns a FetchError-shaped error (§7) if the
// series has never been stored.
func (s *Stub) Fetch(ctx context.Context, source, seriesID string, start, end time.Time) (model.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return model.RawTable{}, err
	}
	table, found, err := s.Loader.LoadRaw(source, seriesID)
	if err != nil {
		return model.RawTable{}, fmt.Errorf("fetch %s/%s: %w", source, seriesID, err)
	}
	if !found {
		return model.RawTable{}, fmt.Errorf("fetch %s/%s: series unavailable for window", source, seriesID)
	}
	rows := make([]model.RawRow, 0, len(table.Rows))
	for _, r := range table.Rows {
		if !start.IsZero() && r.Date.Before(start) {
			continue
		}
		if !end.IsZero() && r.Date.After(end) {
			continue
		}
		rows = append(rows, r)
	}
	return model.RawTable{Source: source, SeriesID: seriesID, Rows: rows}, nil
}
