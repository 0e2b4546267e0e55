// Package glci computes the composite Global Liquidity & Credit Index
// (§4.5): fit a latent factor per pillar, sign-flip and weight-combine the
// pillars into one composite, rescale it to the index's configured target,
// and derive regime, regime-change probability, and momentum from it.
package glci

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/factormodel"
	"github.com/wuchris/glci/internal/featurematrix"
	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/store"
	"github.com/wuchris/glci/internal/transform"
)

// DefaultIndexID is the well-known id of the flagship composite, matching
// the original's module-level INDEX_ID constant.
const DefaultIndexID = "global_liquidity_credit_index"

// regime detection/probability tuning, carried over from the original's
// glci.py call sites (compute_zscore(window=104), detect_regime(thresholds
// =(-1,1)), compute_momentum(short=4, long=12)). compute_regime_probability
// is called there with no explicit window/smoothing, so this reuses the
// momentum short window for both, keeping one "short lookback" notion
// instead of inventing an unrelated constant.
const (
	regimeZScoreWindow     = 104
	regimeZScoreMinPeriods = 20
	regimeLo               = -1.0
	regimeHi               = 1.0
	regimeProbWindow       = 4
	regimeProbSmoothing    = 4
	momentumShort          = 4
	momentumLong           = 12
	freshnessStaleDays     = 14
)

// Computer wires a registry, a feature-matrix builder, a fetcher (used for
// freshness checks, which must bypass any cache), and a store together to
// produce and persist composite index results (the original's
// `GLCIComputer`).
type Computer struct {
	Registry *config.Registry
	Builder  *featurematrix.Builder
	Fetcher  fetcher.Fetcher
	Store    *store.Store
}

// NewComputer constructs a Computer.
func NewComputer(reg *config.Registry, builder *featurematrix.Builder, f fetcher.Fetcher, st *store.Store) *Computer {
	return &Computer{Registry: reg, Builder: builder, Fetcher: f, Store: st}
}

// Options configures one Compute call.
type Options struct {
	TargetFreq      model.Frequency
	FactorMethod    string // "", "auto", "dfm", "pca_shrunk", "pca"
	OptimizeWeights bool
	Save            bool
}

// PillarOutcome carries one pillar's fitted factor and diagnostics.
type PillarOutcome struct {
	Name    string
	Factor  model.Series
	Fit     model.FactorResult
	Quality model.DataQualityReport
}

// Result is everything one Compute call produces.
type Result struct {
	Records        []model.GLCIRecord
	Pillars        map[string]model.Series
	Weights        map[string]float64
	Signs          map[string]int
	PillarOutcomes map[string]PillarOutcome
	MissingPillars []string
	Metadata       model.GLCIMetadata
}

// Compute runs the full pipeline (original's `GLCIComputer.compute`):
//  1. fit a factor per pillar, skipping (not failing on) any pillar whose
//     fit errors, then redistribute weight among the pillars that succeeded;
//  2. flip pillar-level sign (distinct from featurematrix's component-level
//     pre-flip);
//  3. weight-combine into a composite and rescale to the index's configured
//     mean/stdev (default 100/10);
//  4. derive rolling z-score, regime, and regime-change probability;
//  5. derive momentum;
//  6. assemble GLCIRecords and metadata;
//  7. persist, when opts.Save is set.
func (c *Computer) Compute(ctx context.Context, indexID string, start, end time.Time, opts Options) (Result, error) {
	entry, ok := c.Registry.Index(indexID)
	if !ok {
		return Result{}, fmt.Errorf("index %q not found in configuration", indexID)
	}
	if !entry.IsPillarized() {
		return Result{}, fmt.Errorf("index %q is not pillarized", indexID)
	}
	freq := opts.TargetFreq
	if freq == "" {
		freq = model.FreqWeekly
	}

	pillarWeights, err := featurematrix.GetPillarWeights(c.Registry, indexID)
	if err != nil {
		return Result{}, err
	}
	pillarSigns, err := featurematrix.GetPillarSigns(c.Registry, indexID)
	if err != nil {
		return Result{}, err
	}
	pillarNames := make([]string, 0, len(pillarWeights))
	for name := range pillarWeights {
		pillarNames = append(pillarNames, name)
	}
	sort.Strings(pillarNames)

	pillarFactors := make(map[string]model.Series, len(pillarNames))
	outcomes := make(map[string]PillarOutcome, len(pillarNames))
	var missing []string
	for _, name := range pillarNames {
		factor, fit, quality, ferr := c.computePillarFactor(ctx, indexID, name, start, end, freq, opts.FactorMethod)
		if ferr != nil {
			missing = append(missing, name)
			continue
		}
		pillarFactors[name] = factor
		outcomes[name] = PillarOutcome{Name: name, Factor: factor, Fit: fit, Quality: quality}
	}
	if len(pillarFactors) == 0 {
		return Result{}, fmt.Errorf("no pillar factors could be computed for index %q", indexID)
	}

	// Redistribute weight among pillars that actually produced a factor.
	if len(pillarFactors) < len(pillarNames) {
		var total float64
		for name := range pillarFactors {
			total += pillarWeights[name]
		}
		redistributed := make(map[string]float64, len(pillarFactors))
		if total > 0 {
			for name := range pillarFactors {
				redistributed[name] = pillarWeights[name] / total
			}
		} else {
			for name := range pillarFactors {
				redistributed[name] = 1.0 / float64(len(pillarFactors))
			}
		}
		pillarWeights = redistributed
	}

	// Pillar-level sign flip (distinct from the component pre-flip already
	// applied inside featurematrix).
	signedFactors := make(map[string]model.Series, len(pillarFactors))
	for name, factor := range pillarFactors {
		sign := pillarSigns[name]
		if sign == 0 {
			sign = 1
		}
		signedFactors[name] = transform.ApplySignFlip(factor, sign)
	}

	combined, err := factormodel.CombineFactors(signedFactors, pillarWeights, true)
	if err != nil {
		return Result{}, fmt.Errorf("combine pillar factors: %w", err)
	}

	targetMean, targetStdev := entry.Normalize.Mean, entry.Normalize.Stdev
	if targetMean == 0 && targetStdev == 0 {
		targetMean, targetStdev = 100, 10
	}
	composite := rescale(combined, targetMean, targetStdev)

	zscore, err := transform.ZScore(composite, regimeZScoreWindow, regimeZScoreMinPeriods)
	if err != nil {
		return Result{}, fmt.Errorf("compute composite z-score: %w", err)
	}
	regimes := transform.DetectRegime(zscore, regimeLo, regimeHi)
	probOut := transform.ComputeRegimeProbability(zscore, regimeLo, regimeHi, regimeProbWindow, regimeProbSmoothing)
	momOut, err := transform.Momentum(composite, momentumShort, momentumLong)
	if err != nil {
		return Result{}, fmt.Errorf("compute composite momentum: %w", err)
	}
	probSeries := probOut["prob_regime_change"]
	momSeries := momOut["momentum"]

	records := make([]model.GLCIRecord, len(composite))
	for i, p := range composite {
		records[i] = model.GLCIRecord{
			Date:             p.Date.Unix(),
			Value:            p.Value,
			ZScore:           zscore[i].Value,
			Regime:           int(regimes[i]),
			Momentum:         momSeries[i].Value,
			ProbRegimeChange: probSeries[i].Value,
		}
	}

	alignedPillars := reindexPillarsToDates(signedFactors, composite)

	latestPillarValues := make(map[string]float64, len(alignedPillars))
	for name, s := range alignedPillars {
		if len(s) > 0 {
			latestPillarValues[name] = s[len(s)-1].Value
		}
	}

	currentRegimeLabel := "neutral"
	if n := len(records); n > 0 {
		currentRegimeLabel = model.Regime(records[n-1].Regime).Label()
	}

	pillarStats := make(map[string]model.PillarStats, len(outcomes))
	for name, o := range outcomes {
		pillarStats[name] = model.PillarStats{
			Weight:            pillarWeights[name],
			Sign:              pillarSigns[name],
			Method:            o.Fit.Method,
			ExplainedVariance: o.Fit.ExplainedVariance,
			NComponents:       o.Fit.NVariables,
		}
	}

	weightDetails := make(map[string]model.PillarWeightDetail, len(outcomes))
	for name, o := range outcomes {
		weightDetails[name] = model.PillarWeightDetail{
			Weight:   pillarWeights[name],
			Sign:     pillarSigns[name],
			Loadings: o.Fit.Loadings,
		}
	}
	weights := model.GLCIWeights{
		ComputedAt: time.Now().UTC().Format(time.RFC3339),
		Pillars:    weightDetails,
	}

	meta := model.GLCIMetadata{
		ComputedAt: time.Now().UTC().Format(time.RFC3339),
		Parameters: map[string]interface{}{
			"start_date":       start.Format("2006-01-02"),
			"end_date":         end.Format("2006-01-02"),
			"target_frequency": string(freq),
			"factor_method":    opts.FactorMethod,
			"optimize_weights": opts.OptimizeWeights,
			"normalize_mean":   targetMean,
			"normalize_stdev":  targetStdev,
			"n_observations":   len(records),
		},
		PillarStats:        pillarStats,
		CurrentRegime:      currentRegimeLabel,
		MissingPillars:     missing,
		LatestPillarValues: latestPillarValues,
	}

	result := Result{
		Records:        records,
		Pillars:        alignedPillars,
		Weights:        pillarWeights,
		Signs:          pillarSigns,
		PillarOutcomes: outcomes,
		MissingPillars: missing,
		Metadata:       meta,
	}

	if opts.Save {
		if err := c.Store.SaveGLCI(records, alignedPillars, weights, meta); err != nil {
			return result, fmt.Errorf("save glci result: %w", err)
		}
	}
	return result, nil
}

// computePillarFactor builds one pillar's feature matrix and fits its
// latent factor, returning it as a model.Series aligned on the feature
// matrix's dates.
func (c *Computer) computePillarFactor(ctx context.Context, indexID, pillarName string, start, end time.Time, freq model.Frequency, factorMethod string) (model.Series, model.FactorResult, model.DataQualityReport, error) {
	fm, metas, err := c.Builder.BuildPillarMatrix(ctx, indexID, pillarName, start, end, freq)
	if err != nil {
		return nil, model.FactorResult{}, model.DataQualityReport{}, err
	}
	quality, err := c.Builder.ValidatePillarData(indexID, pillarName, metas)
	if err != nil {
		return nil, model.FactorResult{}, model.DataQualityReport{}, err
	}

	fit := factormodel.NewModel()
	if factorMethod != "" {
		fit.Method = factorMethod
	}
	result, err := fit.Fit(fm)
	if err != nil {
		return nil, model.FactorResult{}, quality, err
	}

	series := make(model.Series, len(result.Dates))
	for i, d := range result.Dates {
		series[i] = model.Point{Date: time.Unix(d, 0).UTC(), Value: result.Factor[i]}
	}
	return series, result, quality, nil
}

// rescale maps a mean-0-stdev-1 series (or any series) onto the configured
// target mean/stdev, assuming the input is already mean-100/stdev-10
// normalized (CombineFactors' normalize=true output): (v-100)/10*stdev+mean.
func rescale(s model.Series, targetMean, targetStdev float64) model.Series {
	out := make(model.Series, len(s))
	for i, p := range s {
		out[i] = model.Point{Date: p.Date, Value: (p.Value-100)/10*targetStdev + targetMean}
	}
	return out
}

// reindexPillarsToDates exact-match-reindexes every pillar factor onto the
// composite's date grid (missing dates are simply omitted, matching the
// original's `factor.reindex(dates.values)` before a later fillna/export
// step drops unreachable rows).
func reindexPillarsToDates(factors map[string]model.Series, grid model.Series) map[string]model.Series {
	out := make(map[string]model.Series, len(factors))
	for name, s := range factors {
		byDate := make(map[int64]float64, len(s))
		for _, p := range s {
			byDate[p.Date.Unix()] = p.Value
		}
		aligned := make(model.Series, 0, len(grid))
		for _, p := range grid {
			if v, ok := byDate[p.Date.Unix()]; ok {
				aligned = append(aligned, model.Point{Date: p.Date, Value: v})
			}
		}
		out[name] = aligned
	}
	return out
}

// LatestSnapshot is the most recent stored composite observation (the
// original's `get_latest`).
type LatestSnapshot struct {
	Date        int64
	Value       float64
	ZScore      float64
	Regime      model.Regime
	RegimeLabel string
	Momentum    float64
}

// GetLatest returns the most recent stored composite record.
func (c *Computer) GetLatest() (LatestSnapshot, bool, error) {
	records, ok, err := c.Store.LoadGLCI()
	if err != nil || !ok || len(records) == 0 {
		return LatestSnapshot{}, false, err
	}
	r := records[len(records)-1]
	return LatestSnapshot{
		Date:        r.Date,
		Value:       r.Value,
		ZScore:      r.ZScore,
		Regime:      model.Regime(r.Regime),
		RegimeLabel: model.Regime(r.Regime).Label(),
		Momentum:    r.Momentum,
	}, true, nil
}

// PillarValue is one pillar's latest factor value re-weighted against the
// index's *current* configured weight.
type PillarValue struct {
	Value  float64
	Weight float64
}

// PillarBreakdown re-weights each pillar's last stored factor value against
// the registry's current pillar weights, rather than the weights frozen in
// the stored metadata at compute time — useful for inspecting the effect of
// a weight change without recomputing (the original's
// `get_pillar_breakdown`).
func (c *Computer) PillarBreakdown(indexID string) (int64, map[string]PillarValue, error) {
	meta, ok, err := c.Store.LoadGLCIMetadata()
	if err != nil {
		return 0, nil, err
	}
	if !ok || len(meta.LatestPillarValues) == 0 {
		return 0, nil, fmt.Errorf("no stored glci metadata for index %q", indexID)
	}
	currentWeights, err := featurematrix.GetPillarWeights(c.Registry, indexID)
	if err != nil {
		return 0, nil, err
	}
	out := make(map[string]PillarValue, len(meta.LatestPillarValues))
	for name, v := range meta.LatestPillarValues {
		out[name] = PillarValue{Value: v, Weight: currentWeights[name]}
	}
	records, ok, err := c.Store.LoadGLCI()
	if err != nil {
		return 0, out, err
	}
	var date int64
	if ok && len(records) > 0 {
		date = records[len(records)-1].Date
	}
	return date, out, nil
}

// Freshness fetches every pillar component series fresh (bypassing any
// cache) and reports how stale each one is (the original's
// `get_data_freshness`). A fetch failure reports DaysOld=-1 and IsStale=true
// rather than erroring out the whole call.
func (c *Computer) Freshness(ctx context.Context, indexID string) ([]model.FreshnessEntry, error) {
	entry, ok := c.Registry.Index(indexID)
	if !ok {
		return nil, fmt.Errorf("index %q not found in configuration", indexID)
	}
	if !entry.IsPillarized() {
		return nil, fmt.Errorf("index %q is not pillarized", indexID)
	}

	pillarNames := make([]string, 0, len(entry.Pillars))
	for name := range entry.Pillars {
		pillarNames = append(pillarNames, name)
	}
	sort.Strings(pillarNames)

	now := time.Now().UTC()
	var out []model.FreshnessEntry
	for _, pillarName := range pillarNames {
		pillar := entry.Pillars[pillarName]
		for _, comp := range pillar.Components {
			se, ok := c.Registry.Series(comp.Series)
			if !ok {
				out = append(out, model.FreshnessEntry{
					SeriesID: comp.Series, Pillar: pillarName,
					DaysOld: -1, IsStale: true, LastDate: "unknown",
				})
				continue
			}
			table, ferr := c.Fetcher.Fetch(ctx, se.Source, se.SourceID, time.Time{}, time.Time{})
			if ferr != nil || len(table.Rows) == 0 {
				out = append(out, model.FreshnessEntry{
					SeriesID: comp.Series, Pillar: pillarName,
					DaysOld: -1, IsStale: true, LastDate: "unknown",
				})
				continue
			}
			last := table.Rows[0].Date
			for _, row := range table.Rows[1:] {
				if row.Date.After(last) {
					last = row.Date
				}
			}
			daysOld := int(now.Sub(last).Hours() / 24)
			out = append(out, model.FreshnessEntry{
				SeriesID: comp.Series, Pillar: pillarName,
				DaysOld: daysOld, IsStale: daysOld > freshnessStaleDays,
				LastDate: last.Format("2006-01-02"),
			})
		}
	}
	return out, nil
}
