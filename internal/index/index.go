// Package index computes arithmetic composite indices (§3 "Index config",
// arithmetic form): weighted combinations of configured series under one
// of four methods. The pillarized form (§3, pillarized) is handled by
// internal/glci, which builds on internal/featurematrix and
// internal/factormodel instead of this package's flat weighted-combination
// methods.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/wuchris/glci/internal/cache"
	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/transform"
)

// Computer computes arithmetic indices against a registry, a Fetcher
// collaborator, and an optional per-run memoization cache.
type Computer struct {
	Registry *config.Registry
	Fetcher  fetcher.Fetcher
	Cache    *cache.Cache // nil disables memoization
}

// NewComputer constructs a Computer. cache may be nil.
func NewComputer(reg *config.Registry, f fetcher.Fetcher, c *cache.Cache) *Computer {
	return &Computer{Registry: reg, Fetcher: f, Cache: c}
}

// Compute computes the named index over [start,end] using whichever
// aggregation method its registry entry declares (default "arithmetic").
func (c *Computer) Compute(ctx context.Context, indexID string, start, end time.Time) (model.Series, error) {
	entry, ok := c.Registry.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	if entry.IsPillarized() {
		return nil, fmt.Errorf("index %q is pillarized; compute it via internal/glci", indexID)
	}
	method := entry.Method
	if method == "" {
		method = "arithmetic"
	}

	component, err := c.fetchComponents(ctx, entry.Components, start, end)
	if err != nil {
		return nil, err
	}

	freq := entry.Frequency
	if freq == "" {
		freq = model.FreqMonthly
	}

	switch method {
	case "arithmetic":
		return c.computeArithmetic(entry.Components, component, freq)
	case "zscore_average":
		return c.computeZScoreAverage(entry.Components, component, freq)
	case "sum_normalized":
		return c.computeSumNormalized(entry.Components, component, freq)
	case "weighted_average":
		return c.computeWeightedAverage(entry.Components, component, freq)
	default:
		return nil, fmt.Errorf("unknown aggregation method %q for index %q", method, indexID)
	}
}

// fetchComponents resolves and fetches each component's raw series,
// memoizing on (series_id,start,end) in c.Cache when present.
func (c *Computer) fetchComponents(ctx context.Context, components []config.IndexComponentEntry, start, end time.Time) (map[string]model.Series, error) {
	out := make(map[string]model.Series, len(components))
	startKey, endKey := dateKey(start), dateKey(end)
	for _, comp := range components {
		if _, ok := out[comp.Series]; ok {
			continue
		}
		entry, ok := c.Registry.Series(comp.Series)
		if !ok {
			return nil, fmt.Errorf("series %q referenced by index not found in configuration", comp.Series)
		}

		cacheKey := cache.Key(comp.Series, startKey, endKey)
		var table model.RawTable
		found := false
		if c.Cache != nil {
			var cached model.RawTable
			if ok, err := c.Cache.Get(cacheKey, &cached); err == nil && ok {
				table, found = cached, true
			}
		}
		if !found {
			var err error
			table, err = c.Fetcher.Fetch(ctx, entry.Source, entry.SourceID, start, end)
			if err != nil {
				return nil, fmt.Errorf("fetching component %q: %w", comp.Series, err)
			}
			if c.Cache != nil {
				_ = c.Cache.Put(cacheKey, table)
			}
		}
		out[comp.Series] = table.ToSeries()
	}
	return out, nil
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// computeArithmetic implements the add/subtract/multiply combination
// (Python original's aggregator.py `_compute_arithmetic`). Resamples every
// component to the index's target frequency (last-value), inner-joins on
// date, then folds operations left to right starting from zero. The
// "multiply" operation is intentionally literal: `result *= value*weight`
// on every iteration, exactly as the original computes it (weight is
// folded into the multiplicand on each multiply step rather than applied
// once to the product) — see DESIGN.md's Open Question decision.
func (c *Computer) computeArithmetic(components []config.IndexComponentEntry, data map[string]model.Series, freq model.Frequency) (model.Series, error) {
	resampled, err := resampleAll(data, freq, transform.AggLast)
	if err != nil {
		return nil, err
	}
	dates := innerJoinDates(resampled)
	if len(dates) == 0 {
		return nil, fmt.Errorf("arithmetic index: no overlapping dates across components")
	}

	result := make([]float64, len(dates))
	for i := range result {
		result[i] = 0.0
	}
	for _, comp := range components {
		series, ok := resampled[comp.Series]
		if !ok {
			continue
		}
		byDate := seriesByDate(series)
		op := comp.Operation
		if op == "" {
			op = "add"
		}
		for i, d := range dates {
			v, ok := byDate[d.Unix()]
			if !ok {
				continue
			}
			switch op {
			case "add":
				result[i] += v * comp.Weight
			case "subtract":
				result[i] -= v * comp.Weight
			case "multiply":
				result[i] *= v * comp.Weight
			}
		}
	}
	return toSeries(dates, result), nil
}

// computeZScoreAverage implements `_compute_zscore_average`: resample each
// component to mean aggregation, compute a rolling (252-period) z-score,
// inner-join, then weighted-average the z-scores.
func (c *Computer) computeZScoreAverage(components []config.IndexComponentEntry, data map[string]model.Series, freq model.Frequency) (model.Series, error) {
	resampled, err := resampleAll(data, freq, transform.AggMean)
	if err != nil {
		return nil, err
	}
	zscored := make(map[string]model.Series, len(resampled))
	for id, s := range resampled {
		z, err := transform.ZScore(s, 252, 20)
		if err != nil {
			return nil, fmt.Errorf("zscore_average: computing zscore for %q: %w", id, err)
		}
		zscored[id] = z
	}
	dates := innerJoinDates(zscored)
	if len(dates) == 0 {
		return nil, fmt.Errorf("zscore_average index: no overlapping dates across components")
	}

	result := make([]float64, len(dates))
	var totalWeight float64
	for _, comp := range components {
		series, ok := zscored[comp.Series]
		if !ok {
			continue
		}
		byDate := seriesByDate(series)
		for i, d := range dates {
			v := byDate[d.Unix()] // 0 if missing, matching fillna(0)
			result[i] += v * comp.Weight
		}
		totalWeight += comp.Weight
	}
	if totalWeight > 0 {
		for i := range result {
			result[i] /= totalWeight
		}
	}
	return toSeries(dates, result), nil
}

// computeSumNormalized implements `_compute_sum_normalized`: outer-join
// with forward-fill, then sum weighted (FX-conversion-style) values.
func (c *Computer) computeSumNormalized(components []config.IndexComponentEntry, data map[string]model.Series, freq model.Frequency) (model.Series, error) {
	resampled, err := resampleAll(data, freq, transform.AggLast)
	if err != nil {
		return nil, err
	}
	dates, filled := outerJoinForwardFill(resampled)
	if len(dates) == 0 {
		return nil, fmt.Errorf("sum_normalized index: no data across components")
	}

	result := make([]float64, len(dates))
	for _, comp := range components {
		byDate, ok := filled[comp.Series]
		if !ok {
			continue
		}
		for i, d := range dates {
			v := byDate[d.Unix()] // 0 if missing, matching fillna(0)
			result[i] += v * comp.Weight
		}
	}
	return toSeries(dates, result), nil
}

// computeWeightedAverage implements `_compute_weighted_average`: GDP
// (country_weights) weighted average across countries, falling back to
// the component's configured weight when its country has no entry.
func (c *Computer) computeWeightedAverage(components []config.IndexComponentEntry, data map[string]model.Series, freq model.Frequency) (model.Series, error) {
	resampled, err := resampleAll(data, freq, transform.AggLast)
	if err != nil {
		return nil, err
	}
	dates, filled := outerJoinForwardFill(resampled)
	if len(dates) == 0 {
		return nil, fmt.Errorf("weighted_average index: no data across components")
	}

	result := make([]float64, len(dates))
	var totalWeight float64
	for _, comp := range components {
		byDate, ok := filled[comp.Series]
		if !ok {
			continue
		}
		weight := comp.Weight
		if comp.Country != "" {
			if cw := c.Registry.CountryWeight(comp.Country); cw != 0 {
				weight = cw
			}
		}
		for i, d := range dates {
			v := byDate[d.Unix()] // 0 if missing, matching fillna(0)
			result[i] += v * weight
		}
		totalWeight += weight
	}
	if totalWeight > 0 {
		for i := range result {
			result[i] /= totalWeight
		}
	}
	return toSeries(dates, result), nil
}

// ─── Alignment helpers ────────────────────────────────────────────────────────

func resampleAll(data map[string]model.Series, freq model.Frequency, agg transform.Agg) (map[string]model.Series, error) {
	out := make(map[string]model.Series, len(data))
	for id, s := range data {
		if len(s) == 0 {
			out[id] = s
			continue
		}
		r, err := transform.Resample(s, freq, agg)
		if err != nil {
			return nil, fmt.Errorf("resampling %q: %w", id, err)
		}
		out[id] = r
	}
	return out, nil
}

func seriesByDate(s model.Series) map[int64]float64 {
	m := make(map[int64]float64, len(s))
	for _, p := range s {
		m[p.Date.Unix()] = p.Value
	}
	return m
}

// innerJoinDates returns the sorted set of dates present in every
// non-empty series.
func innerJoinDates(data map[string]model.Series) []time.Time {
	var nonEmpty []model.Series
	for _, s := range data {
		if len(s) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	counts := make(map[int64]int)
	dateOf := make(map[int64]time.Time)
	for _, s := range nonEmpty {
		seen := make(map[int64]bool, len(s))
		for _, p := range s {
			key := p.Date.Unix()
			if seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
			dateOf[key] = p.Date
		}
	}
	var out []time.Time
	for key, n := range counts {
		if n == len(nonEmpty) {
			out = append(out, dateOf[key])
		}
	}
	sortTimes(out)
	return out
}

// outerJoinForwardFill unions every series' dates, then forward-fills each
// series across the union grid (matching pandas' `fillna(method="ffill")`
// after an outer align).
func outerJoinForwardFill(data map[string]model.Series) ([]time.Time, map[string]map[int64]float64) {
	union := make(map[int64]time.Time)
	for _, s := range data {
		for _, p := range s {
			union[p.Date.Unix()] = p.Date
		}
	}
	var dates []time.Time
	for _, d := range union {
		dates = append(dates, d)
	}
	sortTimes(dates)

	filled := make(map[string]map[int64]float64, len(data))
	for id, s := range data {
		byDate := seriesByDate(s)
		out := make(map[int64]float64, len(dates))
		var last float64
		haveLast := false
		for _, d := range dates {
			key := d.Unix()
			if v, ok := byDate[key]; ok {
				last, haveLast = v, true
				out[key] = v
				continue
			}
			if haveLast {
				out[key] = last
			}
			// else left absent — treated as 0 by fillna(0) at the caller
		}
		filled[id] = out
	}
	return dates, filled
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j-1].After(ts[j]); j-- {
			ts[j-1], ts[j] = ts[j], ts[j-1]
		}
	}
}

func toSeries(dates []time.Time, values []float64) model.Series {
	out := make(model.Series, len(dates))
	for i, d := range dates {
		out[i] = model.Point{Date: d, Value: values[i]}
	}
	return out
}
