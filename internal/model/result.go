package model

import "time"

// Kind tags the shape of Result.Data so render and export can type-switch on
// it without reflection.
type Kind string

const (
	KindSeriesData     Kind = "series_data"
	KindSeriesMeta     Kind = "series_meta"
	KindSeriesList     Kind = "series_list"
	KindIndexData      Kind = "index_data"
	KindIndexList      Kind = "index_list"
	KindGLCI           Kind = "glci"
	KindPillarBreakdown Kind = "pillar_breakdown"
	KindRegimeHistory  Kind = "regime_history"
	KindFreshness      Kind = "freshness"
	KindRiskDashboard  Kind = "risk_dashboard"
	KindRiskMetrics    Kind = "risk_metrics"
	KindStoredList     Kind = "stored_list"
	KindExportSummary  Kind = "export_summary"
)

// Result is the envelope every CLI command and export path hangs its payload
// off of: what kind of thing this is, when it was produced, which command
// produced it, the payload itself, and anything the pipeline wants to flag
// without failing the command outright.
type Result struct {
	Kind        Kind        `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       Stats       `json:"stats,omitempty"`
}

// Stats carries lightweight counters about how a result was produced, shown
// in table footers and kept in JSON for scripted consumers.
type Stats struct {
	NObservations int           `json:"n_observations,omitempty"`
	NSeries       int           `json:"n_series,omitempty"`
	DurationMS    int64         `json:"duration_ms,omitempty"`
	Elapsed       time.Duration `json:"-"`
}

// SeriesData is the rendered form of a single series: its id plus every
// observation, used by the "show" and "series" commands.
type SeriesData struct {
	SeriesID string       `json:"series_id"`
	Source   string       `json:"source"`
	Obs      []Observation `json:"observations"`
}

// Observation is a single rendered (date, value) pair with the original raw
// string preserved for JSONL passthrough.
type Observation struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	ValueRaw string    `json:"value_raw,omitempty"`
}

// SeriesMeta is the configuration-registry view of a series (§3 "series
// configuration" entity), returned by "list series" and "show <id> --meta".
type SeriesMeta struct {
	SeriesID  string   `json:"series_id"`
	Source    string   `json:"source"`
	Country   string   `json:"country,omitempty"`
	Frequency string   `json:"frequency"`
	Unit      string   `json:"unit,omitempty"`
	Pillars   []string `json:"pillars,omitempty"`
	Sign      int      `json:"sign,omitempty"`
}

// IndexMeta is the configuration-registry view of a composite index
// definition (§3 "index configuration" entity).
type IndexMeta struct {
	IndexID     string             `json:"index_id"`
	Name        string             `json:"name"`
	Method      string             `json:"method"`
	Components  []IndexComponent   `json:"components"`
}

// IndexComponent is one weighted series inside an index definition.
type IndexComponent struct {
	SeriesID string  `json:"series_id"`
	Weight   float64 `json:"weight"`
}
