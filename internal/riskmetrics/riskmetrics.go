// Package riskmetrics computes regime-conditioned risk statistics for a
// configured universe of tracked assets (§4.6): annualized Sharpe, return,
// volatility, and max drawdown overall and split by the composite index's
// regime label, a rolling Sharpe series, and each asset's correlation with
// the composite.
package riskmetrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wuchris/glci/internal/config"
	"github.com/wuchris/glci/internal/fetcher"
	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/store"
)

// AnnualizationFactor is the trading-days-per-year constant used to
// annualize daily return/volatility statistics.
const AnnualizationFactor = 252

// minRegimeObservations is the minimum in-regime row count below which a
// per-regime statistic is reported as missing (null) rather than computed
// on too few points to be meaningful.
const minRegimeObservations = 20

// defaultRiskFreeSeriesID is the registry series id for the 3-month
// Treasury proxy used to compute excess returns.
const defaultRiskFreeSeriesID = "treasury_3m"

// DefaultAssetUniverse is the tracked-asset universe ported from the
// original pipeline's ASSET_CONFIG.
var DefaultAssetUniverse = []model.AssetConfig{
	{AssetID: "sp500_price", Name: "S&P 500", Category: "Large Cap Equities"},
	{AssetID: "russell2000_price", Name: "Russell 2000", Category: "Small Cap Equities"},
	{AssetID: "gold_price", Name: "Gold", Category: "Commodities"},
	{AssetID: "silver_price", Name: "Silver", Category: "Commodities"},
	{AssetID: "bitcoin_price", Name: "Bitcoin", Category: "Crypto"},
	{AssetID: "ethereum_price", Name: "Ethereum", Category: "Crypto"},
	{AssetID: "long_bond_price", Name: "Long Bonds (TLT)", Category: "Fixed Income"},
}

// Computer computes the risk dashboard against a registry, fetcher, and
// store, for a configurable asset universe.
type Computer struct {
	Registry         *config.Registry
	Fetcher          fetcher.Fetcher
	Store            *store.Store
	Assets           []model.AssetConfig
	RollingWindow    int
	RiskFreeSeriesID string
}

// NewComputer constructs a Computer with the default asset universe, a
// 252-day rolling Sharpe window, and the default risk-free series id.
func NewComputer(reg *config.Registry, f fetcher.Fetcher, st *store.Store) *Computer {
	return &Computer{
		Registry:         reg,
		Fetcher:          f,
		Store:            st,
		Assets:           DefaultAssetUniverse,
		RollingWindow:    AnnualizationFactor,
		RiskFreeSeriesID: defaultRiskFreeSeriesID,
	}
}

// Options configures one Compute call.
type Options struct {
	Save bool
}

// Compute builds the risk dashboard: loads the saved composite index for
// its regime timeline, loads the risk-free proxy, computes every
// configured asset's metrics (skipping assets whose fetch or computation
// errors, matching the original's per-asset try/except), and assembles the
// assets x regimes heatmap matrix.
func (c *Computer) Compute(ctx context.Context, start, end time.Time, opts Options) (model.RiskDashboard, error) {
	glciRecords, ok, err := c.Store.LoadGLCI()
	if err != nil {
		return model.RiskDashboard{}, fmt.Errorf("load glci data: %w", err)
	}
	if !ok || len(glciRecords) == 0 {
		return model.RiskDashboard{}, fmt.Errorf("glci data not found; run glci computation first")
	}
	sort.Slice(glciRecords, func(i, j int) bool { return glciRecords[i].Date < glciRecords[j].Date })

	regimeDates := make([]time.Time, len(glciRecords))
	regimeLabels := make([]string, len(glciRecords))
	glciValues := make([]float64, len(glciRecords))
	for i, r := range glciRecords {
		regimeDates[i] = time.Unix(r.Date, 0).UTC()
		regimeLabels[i] = model.Regime(r.Regime).Label()
		glciValues[i] = r.Value
	}

	rfDates, rfDailyRates, currentRF := c.loadRiskFree(ctx, start, end)

	var assets []model.RiskMetrics
	for _, cfg := range c.Assets {
		metrics, aerr := c.computeAssetMetrics(ctx, cfg, start, end, regimeDates, regimeLabels, glciValues, rfDates, rfDailyRates)
		if aerr != nil {
			continue // skip this asset, matching the original's per-asset try/except
		}
		assets = append(assets, metrics)
	}

	dashboard := model.RiskDashboard{
		ComputedAt:    time.Now().UTC().Format(time.RFC3339),
		RiskFreeRate:  currentRF,
		CurrentRegime: regimeLabels[len(regimeLabels)-1],
		Assets:        assets,
		RegimeMatrix:  buildRegimeMatrix(assets),
	}

	if opts.Save {
		if err := c.Store.SaveCuratedJSON("risk", "risk_metrics", dashboard, nil); err != nil {
			return dashboard, fmt.Errorf("save risk dashboard: %w", err)
		}
	}
	return dashboard, nil
}

func (c *Computer) loadRiskFree(ctx context.Context, start, end time.Time) (dates []time.Time, dailyRates []float64, current float64) {
	id := c.RiskFreeSeriesID
	if id == "" {
		id = defaultRiskFreeSeriesID
	}
	se, ok := c.Registry.Series(id)
	if !ok {
		return nil, nil, 0
	}
	table, err := c.Fetcher.Fetch(ctx, se.Source, se.SourceID, start, end)
	if err != nil || len(table.Rows) == 0 {
		return nil, nil, 0
	}
	series := table.ToSeries()
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	dates = make([]time.Time, len(series))
	dailyRates = make([]float64, len(series))
	for i, p := range series {
		dates[i] = p.Date
		dailyRates[i] = p.Value / 100 / AnnualizationFactor
	}
	current = series[len(series)-1].Value
	return dates, dailyRates, current
}

func (c *Computer) computeAssetMetrics(
	ctx context.Context,
	cfg model.AssetConfig,
	start, end time.Time,
	regimeDates []time.Time, regimeLabels []string, glciValues []float64,
	rfDates []time.Time, rfDailyRates []float64,
) (model.RiskMetrics, error) {
	se, ok := c.Registry.Series(cfg.AssetID)
	if !ok {
		return model.RiskMetrics{}, fmt.Errorf("asset %q not found in configuration", cfg.AssetID)
	}
	table, err := c.Fetcher.Fetch(ctx, se.Source, se.SourceID, start, end)
	if err != nil {
		return model.RiskMetrics{}, err
	}
	price := table.ToSeries()
	sort.Slice(price, func(i, j int) bool { return price[i].Date.Before(price[j].Date) })
	if len(price) < 2 {
		return model.RiskMetrics{}, fmt.Errorf("asset %q has fewer than 2 observations", cfg.AssetID)
	}

	n := len(price)
	returns := make([]float64, n)
	returns[0] = math.NaN()
	for i := 1; i < n; i++ {
		prev := price[i-1].Value
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(price[i].Value) {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = (price[i].Value - prev) / prev
	}

	priceDates := make([]time.Time, n)
	for i, p := range price {
		priceDates[i] = p.Date
	}
	asOfLabel := asOfBackwardLabel(priceDates, regimeDates, regimeLabels)
	asOfGLCI := asOfBackwardFloat(priceDates, regimeDates, glciValues)
	asOfRF := asOfBackwardFloat(priceDates, rfDates, rfDailyRates)

	excess := make([]float64, n)
	for i := 0; i < n; i++ {
		rf := asOfRF[i]
		if math.IsNaN(rf) {
			rf = 0
		}
		excess[i] = returns[i] - rf
	}

	// Drop the first (NaN-return) observation, matching dropna(subset=["return"]).
	vReturns := returns[1:]
	vExcess := excess[1:]
	vLabels := asOfLabel[1:]

	currentSharpe := computeSharpe(vExcess)
	annReturn := meanIgnoreNaN(vReturns) * AnnualizationFactor * 100
	annVol := stddevIgnoreNaN(vReturns) * math.Sqrt(AnnualizationFactor) * 100
	maxDD := computeMaxDrawdown(price)

	sharpeByRegime := make(model.RegimeFloat, 3)
	returnByRegime := make(model.RegimeFloat, 3)
	volByRegime := make(model.RegimeFloat, 3)
	for _, label := range []string{"tight", "neutral", "loose"} {
		var rExcess, rReturn []float64
		for i, l := range vLabels {
			if l == label {
				rExcess = append(rExcess, vExcess[i])
				rReturn = append(rReturn, vReturns[i])
			}
		}
		if len(rExcess) >= minRegimeObservations {
			sharpe := computeSharpe(rExcess)
			ret := meanIgnoreNaN(rReturn) * AnnualizationFactor * 100
			vol := stddevIgnoreNaN(rReturn) * math.Sqrt(AnnualizationFactor) * 100
			sharpeByRegime[label] = &sharpe
			returnByRegime[label] = &ret
			volByRegime[label] = &vol
		} else {
			sharpeByRegime[label] = nil
			returnByRegime[label] = nil
			volByRegime[label] = nil
		}
	}

	window := c.RollingWindow
	if window <= 0 {
		window = AnnualizationFactor
	}
	rollingSharpe := computeRollingSharpe(priceDates, excess, window)

	glciReturns := make([]float64, n)
	glciReturns[0] = math.NaN()
	for i := 1; i < n; i++ {
		prev := asOfGLCI[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(asOfGLCI[i]) {
			glciReturns[i] = math.NaN()
			continue
		}
		glciReturns[i] = (asOfGLCI[i] - prev) / prev
	}
	correlation := pearsonCorr(returns, glciReturns)

	return model.RiskMetrics{
		AssetID:              cfg.AssetID,
		Name:                 cfg.Name,
		Category:             cfg.Category,
		CurrentSharpe:        currentSharpe,
		AnnualizedReturn:     annReturn,
		AnnualizedVolatility: annVol,
		MaxDrawdown:          maxDD,
		SharpeByRegime:       sharpeByRegime,
		ReturnByRegime:       returnByRegime,
		VolatilityByRegime:   volByRegime,
		CorrelationWithGLCI:  correlation,
		RollingSharpe:        rollingSharpe,
	}, nil
}

// computeSharpe is the annualized mean/stdev ratio of excess returns, 0
// when fewer than minRegimeObservations clean observations exist or the
// standard deviation is 0.
func computeSharpe(excess []float64) float64 {
	clean := make([]float64, 0, len(excess))
	for _, v := range excess {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < minRegimeObservations {
		return 0
	}
	m := meanIgnoreNaN(clean)
	sd := stddevIgnoreNaN(clean)
	if sd == 0 {
		return 0
	}
	return (m / sd) * math.Sqrt(AnnualizationFactor)
}

// computeMaxDrawdown is the minimum (price-runningMax)/runningMax over the
// series, as a percentage.
func computeMaxDrawdown(price model.Series) float64 {
	if len(price) < 2 {
		return 0
	}
	peak := price[0].Value
	minDD := 0.0
	for _, p := range price {
		if p.Value > peak {
			peak = p.Value
		}
		if peak == 0 {
			continue
		}
		dd := (p.Value - peak) / peak
		if dd < minDD {
			minDD = dd
		}
	}
	return minDD * 100
}

// computeRollingSharpe is a trailing-window Sharpe series, skipping any
// window whose standard deviation is 0 or whose data is incomplete.
func computeRollingSharpe(dates []time.Time, excess []float64, window int) []model.RollingPoint {
	var out []model.RollingPoint
	for i := range excess {
		start := i - window + 1
		if start < 0 {
			continue
		}
		win := excess[start : i+1]
		m := meanIgnoreNaN(win)
		sd := stddevIgnoreNaN(win)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		sharpe := (m / sd) * math.Sqrt(AnnualizationFactor)
		if math.IsNaN(sharpe) {
			continue
		}
		out = append(out, model.RollingPoint{Date: dates[i].Format("2006-01-02"), Value: round3(sharpe)})
	}
	return out
}

func buildRegimeMatrix(assets []model.RiskMetrics) model.RegimeMatrix {
	matrix := model.RegimeMatrix{
		Regimes: []string{"tight", "neutral", "loose"},
	}
	for _, a := range assets {
		matrix.Assets = append(matrix.Assets, a.Name)
		var sharpeRow, returnRow []*float64
		for _, label := range matrix.Regimes {
			sharpeRow = append(sharpeRow, roundPtr(a.SharpeByRegime[label], 2))
			returnRow = append(returnRow, roundPtr(a.ReturnByRegime[label], 1))
		}
		matrix.SharpeData = append(matrix.SharpeData, sharpeRow)
		matrix.ReturnData = append(matrix.ReturnData, returnRow)
	}
	return matrix
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := roundN(*v, places)
	return &r
}

func roundN(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func round3(v float64) float64 { return roundN(v, 3) }

// asOfBackwardFloat as-of merges refValues (keyed by sorted refDates) onto
// queryDates, direction=backward: each query date gets the most recent ref
// value at or before it, NaN if none exists.
func asOfBackwardFloat(queryDates, refDates []time.Time, refValues []float64) []float64 {
	out := make([]float64, len(queryDates))
	for i, q := range queryDates {
		idx := sort.Search(len(refDates), func(j int) bool { return refDates[j].After(q) }) - 1
		if idx < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = refValues[idx]
	}
	return out
}

// asOfBackwardLabel is asOfBackwardFloat's string-valued counterpart.
func asOfBackwardLabel(queryDates, refDates []time.Time, refLabels []string) []string {
	out := make([]string, len(queryDates))
	for i, q := range queryDates {
		idx := sort.Search(len(refDates), func(j int) bool { return refDates[j].After(q) }) - 1
		if idx < 0 {
			out[i] = ""
			continue
		}
		out[i] = refLabels[idx]
	}
	return out
}

func meanIgnoreNaN(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func stddevIgnoreNaN(vals []float64) float64 {
	clean := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < 2 {
		return 0
	}
	m := meanIgnoreNaN(clean)
	var sumSq float64
	for _, v := range clean {
		sumSq += (v - m) * (v - m)
	}
	return math.Sqrt(sumSq / float64(len(clean)-1))
}

// pearsonCorr is the Pearson correlation of two equal-length series,
// ignoring any index where either value is NaN; 0 when fewer than 2 paired
// observations remain or the result is NaN.
func pearsonCorr(a, b []float64) float64 {
	var xs, ys []float64
	for i := range a {
		if i >= len(b) {
			break
		}
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
	}
	if len(xs) < 2 {
		return 0
	}
	mx, my := meanIgnoreNaN(xs), meanIgnoreNaN(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	if math.IsNaN(r) {
		return 0
	}
	return r
}
