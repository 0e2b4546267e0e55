// Package model defines the canonical data types shared across the GLCI
// pipeline: series points, raw/curated records, feature matrices, factor and
// index outputs, and the result envelope returned by CLI commands.
package model

import (
	"math"
	"time"
)

// Point is a single (date, value) observation. Date is a calendar day at UTC
// midnight. Value is NaN when the observation is missing.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IsMissing reports whether the point's value is missing (NaN).
func (p Point) IsMissing() bool {
	return math.IsNaN(p.Value)
}

// Series is an ordered sequence of points, strictly increasing by date with
// no duplicate dates. Most of the transform package operates on a Series.
type Series []Point

// Dates returns the date column.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Values returns the value column.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// RawRecord is a series plus provenance columns, as returned by the fetcher
// collaborator and persisted under raw/<source>/<series_id>.<columnar>.
// Immutable once written; appends deduplicate on Date keeping the later
// FetchedAt.
type RawRecord struct {
	Source    string    `json:"source" parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	SeriesID  string    `json:"series_id" parquet:"name=series_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date      int64     `json:"date" parquet:"name=date, type=INT64"`
	Value     float64   `json:"value" parquet:"name=value, type=DOUBLE"`
	HasValue  bool      `json:"has_value" parquet:"name=has_value, type=BOOLEAN"`
	FetchedAt int64     `json:"fetched_at" parquet:"name=fetched_at, type=INT64"`
}

// RawTable is the standardized table the fetcher collaborator hands back for
// a configured series: at least date, value, source, series_id, fetched_at.
// Extra metadata columns (country, frequency, type, unit, config_id) are
// tolerated by the core and ignored.
type RawTable struct {
	Source   string
	SeriesID string
	Rows     []RawRow
}

// RawRow is one fetched observation before it is packed into a RawRecord.
type RawRow struct {
	Date      time.Time
	Value     float64 // NaN if missing
	FetchedAt time.Time
}

// ToSeries projects a RawTable down to a plain Series, dropping provenance.
func (t RawTable) ToSeries() Series {
	out := make(Series, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = Point{Date: r.Date, Value: r.Value}
	}
	return out
}

// ValueRecord is the flat on-disk row shape for any curated single-column
// series (a pillar factor, an arithmetic composite index, a resampled or
// transformed intermediate): one date, one value, nothing else.
type ValueRecord struct {
	Date  int64   `json:"date" parquet:"name=date, type=INT64"`
	Value float64 `json:"value" parquet:"name=value, type=DOUBLE"`
}

// SeriesToValueRecords converts a Series to its flat curated row form,
// using Unix-day timestamps (seconds since epoch at UTC midnight).
func SeriesToValueRecords(s Series) []ValueRecord {
	out := make([]ValueRecord, len(s))
	for i, p := range s {
		out[i] = ValueRecord{Date: p.Date.Unix(), Value: p.Value}
	}
	return out
}

// ValueRecordsToSeries converts flat curated rows back to a Series.
func ValueRecordsToSeries(rows []ValueRecord) Series {
	out := make(Series, len(rows))
	for i, r := range rows {
		out[i] = Point{Date: time.Unix(r.Date, 0).UTC(), Value: r.Value}
	}
	return out
}

// Frequency enumerates the supported sampling frequencies for a configured
// series or a resample target.
type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqAnnual    Frequency = "annual"
)

// ShortCode returns the single-letter frequency code used by the transform
// lookup tables (D/W/M/Q/A), matching the original Python pipeline.
func (f Frequency) ShortCode() string {
	switch f {
	case FreqDaily:
		return "D"
	case FreqWeekly:
		return "W"
	case FreqMonthly:
		return "M"
	case FreqQuarterly:
		return "Q"
	case FreqAnnual:
		return "A"
	default:
		return "M"
	}
}
