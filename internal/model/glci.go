package model

// Regime is the tri-valued label derived from the rolling z-score of the
// composite index: -1 tight, 0 neutral, +1 loose.
type Regime int

const (
	RegimeTight   Regime = -1
	RegimeNeutral Regime = 0
	RegimeLoose   Regime = 1
)

// Label returns the human-readable regime name.
func (r Regime) Label() string {
	switch r {
	case RegimeTight:
		return "tight"
	case RegimeLoose:
		return "loose"
	default:
		return "neutral"
	}
}

// ClassifyRegime maps a z-score to a Regime using the strict thresholds from
// §8 invariant 4: regime = -1 iff zscore < lo, +1 iff zscore > hi, else 0.
func ClassifyRegime(zscore, lo, hi float64) Regime {
	switch {
	case zscore < lo:
		return RegimeTight
	case zscore > hi:
		return RegimeLoose
	default:
		return RegimeNeutral
	}
}

// GLCIRecord is one date's worth of composite-index output.
type GLCIRecord struct {
	Date             int64   `json:"date" parquet:"name=date, type=INT64"`
	Value            float64 `json:"value" parquet:"name=value, type=DOUBLE"`
	ZScore           float64 `json:"zscore" parquet:"name=zscore, type=DOUBLE"`
	Regime           int     `json:"regime" parquet:"name=regime, type=INT32"`
	Momentum         float64 `json:"momentum" parquet:"name=momentum, type=DOUBLE"`
	ProbRegimeChange float64 `json:"prob_regime_change" parquet:"name=prob_regime_change, type=DOUBLE"`
}

// RegimeInterval is a contiguous run of one regime label, compressed from a
// regime timeline. Invariant: a full timeline's intervals are pairwise
// disjoint, sorted, and cover every observed date exactly once; adjacent
// intervals have distinct labels.
type RegimeInterval struct {
	Regime Regime `json:"regime"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Count  int    `json:"count"`
}

// CompressRegimeTimeline folds a per-date regime sequence into contiguous
// intervals.
func CompressRegimeTimeline(dates []int64, regimes []Regime) []RegimeInterval {
	if len(dates) == 0 {
		return nil
	}
	var out []RegimeInterval
	cur := RegimeInterval{Regime: regimes[0], Start: dates[0], End: dates[0], Count: 1}
	for i := 1; i < len(dates); i++ {
		if regimes[i] == cur.Regime {
			cur.End = dates[i]
			cur.Count++
			continue
		}
		out = append(out, cur)
		cur = RegimeInterval{Regime: regimes[i], Start: dates[i], End: dates[i], Count: 1}
	}
	out = append(out, cur)
	return out
}

// PillarStats is a per-pillar summary stored in curated metadata.
type PillarStats struct {
	Weight            float64 `json:"weight"`
	Sign              int     `json:"sign"`
	Method            string  `json:"method"`
	ExplainedVariance float64 `json:"explained_variance"`
	NComponents       int     `json:"n_components"`
}

// GLCIMetadata is the sidecar JSON persisted alongside the glci curated
// artifact (glci_meta.json).
type GLCIMetadata struct {
	ComputedAt          string                 `json:"computed_at"`
	Parameters          map[string]interface{} `json:"parameters"`
	PillarStats         map[string]PillarStats `json:"pillar_stats"`
	CurrentRegime       string                 `json:"current_regime"`
	MissingPillars      []string               `json:"missing_pillars,omitempty"`
	LatestPillarValues  map[string]float64     `json:"latest_pillar_values,omitempty"`
}

// PillarWeightDetail is one pillar's weighting contribution to the
// composite: its normalized weight, its sign (stress is inverted), and the
// component loadings its factor was fit with.
type PillarWeightDetail struct {
	Weight   float64            `json:"weight"`
	Sign     int                `json:"sign"`
	Loadings map[string]float64 `json:"loadings,omitempty"`
}

// OptimizedWeightPoint is one rolling-window snapshot of dynamically
// optimized pillar weights (populated only when an index's
// optimize_weights parameter is both set and wired to a combiner that
// produces a weight history; nil otherwise).
type OptimizedWeightPoint struct {
	Date    int64              `json:"date"`
	Weights map[string]float64 `json:"weights"`
}

// GLCIWeights is the sidecar JSON persisted as glci_weights.json: the
// final per-pillar weight/sign/loadings used for the composite, plus any
// optimized weight history.
type GLCIWeights struct {
	ComputedAt string                        `json:"computed_at"`
	Pillars    map[string]PillarWeightDetail `json:"pillars"`
	Optimized  []OptimizedWeightPoint        `json:"optimized,omitempty"`
}

// FreshnessEntry reports staleness for one pillar component, per §4.7's
// api/glci/freshness path and §7's StalenessWarning kind. DaysOld is -1 when
// the component could not be fetched at all (distinct from "0 days old").
type FreshnessEntry struct {
	SeriesID string `json:"series_id"`
	Pillar   string `json:"pillar"`
	DaysOld  int    `json:"days_old"`
	IsStale  bool   `json:"is_stale"`
	LastDate string `json:"last_date"`
}
