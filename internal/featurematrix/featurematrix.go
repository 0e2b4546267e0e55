// Package featurematrix builds per-pillar feature matrices for the factor
// model (§4.3): fetch each pillar component, pre-flip series with a
// negative expected sign, resample to the pillar's target frequency, apply
// the configured transform(s), standardize, and align every resulting
// feature column on a common date grid with bounded forward/backward fill.
package featurematrix

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wuchris/glci/internal/cache"
	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/transform"
)

// Builder builds feature matrices against a registry, a Fetcher
// collaborator, and an optional per-run memoization cache.
type Builder struct {
	Registry *config.Registry
	Fetcher  fetcher.Fetcher
	Cache    *cache.Cache // nil disables memoization
}

// NewBuilder constructs a Builder. cache may be nil.
func NewBuilder(reg *config.Registry, f fetcher.Fetcher, c *cache.Cache) *Builder {
	return &Builder{Registry: reg, Fetcher: f, Cache: c}
}

// defaultTransforms is used when neither the pillar nor a component
// specifies a transform list, matching the Python original's
// `transforms = ["zscore"]` default.
var defaultTransforms = []string{"zscore"}

// BuildFeatureMatrix builds the full feature matrix for every pillar of a
// pillarized index, returning the aligned matrix and per-column metadata.
func (b *Builder) BuildFeatureMatrix(ctx context.Context, indexID string, start, end time.Time, targetFreq model.Frequency) (model.FeatureMatrix, []model.FeatureMetadata, error) {
	entry, ok := b.Registry.Index(indexID)
	if !ok {
		return model.FeatureMatrix{}, nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	if !entry.IsPillarized() {
		return model.FeatureMatrix{}, nil, fmt.Errorf("index %q is not pillarized; feature matrices only apply to pillarized indices", indexID)
	}

	pillarNames := make([]string, 0, len(entry.Pillars))
	for name := range entry.Pillars {
		pillarNames = append(pillarNames, name)
	}
	sort.Strings(pillarNames)

	features := make(map[string]model.Series)
	var order []string
	var metadata []model.FeatureMetadata

	for _, pillarName := range pillarNames {
		pillar := entry.Pillars[pillarName]
		pillarSign := pillar.Sign
		if pillarSign == 0 {
			pillarSign = 1
		}
		pillarTransforms := pillar.Transforms
		if len(pillarTransforms) == 0 {
			pillarTransforms = defaultTransforms
		}

		for _, comp := range pillar.Components {
			compSign := comp.Sign
			if compSign == 0 {
				compSign = 1
			}
			seriesSign := compSign * pillarSign

			compTransforms := pillarTransforms
			if comp.Transform != "" {
				compTransforms = []string{comp.Transform}
			}

			seriesEntry, ok := b.Registry.Series(comp.Series)
			if !ok {
				continue // ConfigError at the component level: skip, don't fail the whole matrix
			}

			raw, err := b.fetchCached(ctx, comp.Series, seriesEntry, start, end)
			if err != nil {
				continue // FetchError: skip this component, matching the Python original's try/except
			}
			series := raw.ToSeries()
			if len(series) == 0 {
				continue
			}

			country := comp.Country
			if country == "" {
				country = seriesEntry.Country
			}

			lastDate := series[len(series)-1].Date
			daysOld := int(time.Now().UTC().Sub(lastDate).Hours() / 24)

			resampled, err := transform.Resample(series, targetFreq, transform.AggLast)
			if err != nil {
				continue
			}

			var effectiveSign int
			if seriesSign < 0 {
				resampled = transform.ApplySignFlip(resampled, seriesSign)
				effectiveSign = 1
			} else {
				effectiveSign = seriesSign
			}

			for _, t := range compTransforms {
				featureValues, ok := applyTransform(resampled, t, targetFreq)
				if !ok {
					continue
				}
				name := comp.Series + "_" + t
				features[name] = featureValues
				order = append(order, name)
				metadata = append(metadata, model.FeatureMetadata{
					SeriesID:        comp.Series,
					Pillar:          pillarName,
					Country:         country,
					Transform:       t,
					Unit:            seriesEntry.Unit,
					Sign:            effectiveSign,
					SourceFrequency: string(seriesEntry.Frequency),
					DataQuality:     coverage(featureValues),
					LastUpdated:     lastUpdatedLabel(lastDate, daysOld),
				})
			}
		}
	}

	if len(features) == 0 {
		return model.FeatureMatrix{}, nil, fmt.Errorf("no features could be built from configuration for index %q", indexID)
	}

	matrix := alignFeatures(features, order)
	return matrix, metadata, nil
}

// BuildPillarMatrix builds the full index's feature matrix, then filters
// down to the named pillar's columns and metadata.
func (b *Builder) BuildPillarMatrix(ctx context.Context, indexID, pillarName string, start, end time.Time, targetFreq model.Frequency) (model.FeatureMatrix, []model.FeatureMetadata, error) {
	full, fullMeta, err := b.BuildFeatureMatrix(ctx, indexID, start, end, targetFreq)
	if err != nil {
		return model.FeatureMatrix{}, nil, err
	}

	var cols []string
	var meta []model.FeatureMetadata
	for _, m := range fullMeta {
		if m.Pillar != pillarName {
			continue
		}
		name := m.ColumnName()
		if _, ok := full.Columns[name]; !ok {
			continue
		}
		cols = append(cols, name)
		meta = append(meta, m)
	}
	if len(cols) == 0 {
		return model.FeatureMatrix{}, nil, fmt.Errorf("pillar %q has no loaded components for index %q", pillarName, indexID)
	}

	filtered := model.FeatureMatrix{
		Dates:   full.Dates,
		Columns: make(map[string][]float64, len(cols)),
		Order:   cols,
	}
	for _, c := range cols {
		filtered.Columns[c] = full.Columns[c]
	}
	return filtered, meta, nil
}

// ValidatePillarData checks a built pillar's metadata against the
// registry's expected component list and flags coverage/staleness issues
// (§7 "InsufficientDataError"/"StalenessWarning").
func (b *Builder) ValidatePillarData(indexID, pillarName string, metadata []model.FeatureMetadata) (model.DataQualityReport, error) {
	entry, ok := b.Registry.Index(indexID)
	if !ok {
		return model.DataQualityReport{}, fmt.Errorf("index %q not found in configuration", indexID)
	}
	pillar, ok := entry.Pillars[pillarName]
	if !ok {
		return model.DataQualityReport{}, fmt.Errorf("pillar %q not found in index %q", pillarName, indexID)
	}

	expected := make([]string, 0, len(pillar.Components))
	for _, c := range pillar.Components {
		expected = append(expected, c.Series)
	}

	loadedSet := make(map[string]bool)
	for _, m := range metadata {
		loadedSet[m.SeriesID] = true
	}
	loaded := make([]string, 0, len(loadedSet))
	for id := range loadedSet {
		loaded = append(loaded, id)
	}
	sort.Strings(loaded)

	var missing []string
	for _, id := range expected {
		if !loadedSet[id] {
			missing = append(missing, id)
		}
	}

	var lowCoverage []model.SeriesCoverage
	var stale []model.SeriesStaleness
	for _, m := range metadata {
		if m.DataQuality < 0.5 {
			lowCoverage = append(lowCoverage, model.SeriesCoverage{SeriesID: m.SeriesID, Coverage: m.DataQuality})
		}
		if daysOld, ok := parseDaysOld(m.LastUpdated); ok && daysOld > 30 {
			stale = append(stale, model.SeriesStaleness{SeriesID: m.SeriesID, DaysSinceUpdate: daysOld})
		}
	}

	return model.DataQualityReport{
		Pillar:         pillarName,
		TotalSeries:    len(expected),
		LoadedSeries:   len(loaded),
		MissingSeries:  missing,
		LowCoverage:    lowCoverage,
		StaleSeries:    stale,
		SignViolations: nil, // filled in by the factor model after extraction
	}, nil
}

// ─── Transform dispatch ───────────────────────────────────────────────────────

// applyTransform produces one feature column from a resampled component
// series, matching the Python original's per-transform branch in
// build_feature_matrix. ok is false when the transform is unknown or
// doesn't clear its minimum-observations bar (impulse/hp_gap require > 10
// non-missing values, matching the original's explicit guard).
func applyTransform(s model.Series, name string, freq model.Frequency) (model.Series, bool) {
	code := freq.ShortCode()
	switch name {
	case "level":
		out, err := transform.Standardize(s, transform.StandardizeZScore, 0)
		return out, err == nil
	case "zscore":
		window := lookupInt(code, map[string]int{"D": 252, "W": 104, "M": 24, "Q": 8}, 104)
		out, err := transform.ZScore(s, window, 20)
		return out, err == nil
	case "growth":
		periods := lookupInt(code, map[string]int{"D": 252, "W": 52, "M": 12, "Q": 4}, 52)
		growth, err := transform.GrowthRate(s, periods, transform.GrowthPct)
		if err != nil {
			return nil, false
		}
		out, err := transform.Standardize(growth, transform.StandardizeZScore, 0)
		return out, err == nil
	case "gap":
		window := lookupInt(code, map[string]int{"D": 504, "W": 104, "M": 24, "Q": 8}, 104)
		out, err := transform.RollingGap(s, window)
		if err != nil {
			return nil, false
		}
		standardized, err := transform.Standardize(out["gap_pct"], transform.StandardizeZScore, 0)
		return standardized, err == nil
	case "impulse":
		periods := lookupInt(code, map[string]int{"D": 252, "W": 52, "M": 12, "Q": 4}, 4)
		out, err := transform.CreditImpulse(s, periods)
		if err != nil || countNonNaN(out["credit_impulse"]) <= 10 {
			return nil, false
		}
		standardized, err := transform.Standardize(out["credit_impulse"], transform.StandardizeZScore, 0)
		return standardized, err == nil
	case "hp_gap":
		lambda := lookupFloat(code, map[string]float64{"Q": 1600, "M": 129600, "A": 6.25}, 1600)
		out, err := transform.HPFilterGap(s, lambda)
		if err != nil || countNonNaN(out["hp_gap"]) <= 10 {
			return nil, false
		}
		standardized, err := transform.Standardize(out["hp_gap"], transform.StandardizeZScore, 0)
		return standardized, err == nil
	default:
		return nil, false
	}
}

func lookupInt(code string, table map[string]int, def int) int {
	if v, ok := table[code]; ok {
		return v
	}
	return def
}

func lookupFloat(code string, table map[string]float64, def float64) float64 {
	if v, ok := table[code]; ok {
		return v
	}
	return def
}

// ─── Support ──────────────────────────────────────────────────────────────────

func (b *Builder) fetchCached(ctx context.Context, seriesKey string, entry config.SeriesEntry, start, end time.Time) (model.RawTable, error) {
	key := cache.Key(seriesKey, dateKey(start), dateKey(end))
	if b.Cache != nil {
		var cached model.RawTable
		if ok, err := b.Cache.Get(key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	table, err := b.Fetcher.Fetch(ctx, entry.Source, entry.SourceID, start, end)
	if err != nil {
		return model.RawTable{}, err
	}
	if b.Cache != nil {
		_ = b.Cache.Put(key, table)
	}
	return table, nil
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func coverage(s model.Series) float64 {
	if len(s) == 0 {
		return 0
	}
	return float64(countNonNaN(s)) / float64(len(s))
}

func countNonNaN(s model.Series) int {
	n := 0
	for _, p := range s {
		if !p.IsMissing() {
			n++
		}
	}
	return n
}

func lastUpdatedLabel(t time.Time, daysOld int) string {
	if daysOld < 0 {
		return "unknown"
	}
	return t.Format("2006-01-02")
}

func parseDaysOld(label string) (int, bool) {
	if label == "unknown" || label == "" {
		return 0, false
	}
	t, err := time.Parse("2006-01-02", label)
	if err != nil {
		return 0, false
	}
	return int(time.Now().UTC().Sub(t).Hours() / 24), true
}

// ─── Alignment ────────────────────────────────────────────────────────────────

// alignFeatures outer-joins every feature column on the union of observed
// dates, forward-fills up to 13 periods and back-fills up to 4, matching
// the Python original's `ffill(limit=13)` / `bfill(limit=4)` (one quarter
// of weekly ticks, four weeks of initial backfill).
func alignFeatures(features map[string]model.Series, order []string) model.FeatureMatrix {
	union := make(map[int64]time.Time)
	for _, s := range features {
		for _, p := range s {
			union[p.Date.Unix()] = p.Date
		}
	}
	dates := make([]time.Time, 0, len(union))
	for _, d := range union {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	seen := make(map[string]bool)
	var cols []string
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		cols = append(cols, name)
	}

	matrix := model.FeatureMatrix{
		Dates:   make([]int64, len(dates)),
		Columns: make(map[string][]float64, len(cols)),
		Order:   cols,
	}
	for i, d := range dates {
		matrix.Dates[i] = d.Unix()
	}

	for _, name := range cols {
		byDate := make(map[int64]float64, len(features[name]))
		for _, p := range features[name] {
			byDate[p.Date.Unix()] = p.Value
		}
		out := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := byDate[d.Unix()]; ok {
				out[i] = v
			} else {
				out[i] = math.NaN()
			}
		}
		forwardFillLimit(out, 13)
		backwardFillLimit(out, 4)
		matrix.Columns[name] = out
	}
	return matrix
}

func forwardFillLimit(vals []float64, limit int) {
	run := 0
	var last float64
	haveLast := false
	for i, v := range vals {
		if !math.IsNaN(v) {
			last, haveLast = v, true
			run = 0
			continue
		}
		if haveLast && run < limit {
			vals[i] = last
			run++
		}
	}
}

func backwardFillLimit(vals []float64, limit int) {
	run := 0
	var next float64
	haveNext := false
	for i := len(vals) - 1; i >= 0; i-- {
		v := vals[i]
		if !math.IsNaN(v) {
			next, haveNext = v, true
			run = 0
			continue
		}
		if haveNext && run < limit {
			vals[i] = next
			run++
		}
	}
}
