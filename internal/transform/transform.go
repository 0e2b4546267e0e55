// Package transform implements the stateless pipeline operators that turn a
// raw (date, value) series into the derived columns the feature-matrix
// builder and GLCI computer consume. Each operator is a pure function: no
// I/O, no shared state, same input always yields the same output.
package transform

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wuchris/glci/internal/model"
)

// Output is a transform's full set of derived columns, keyed by column name
// ("gap", "gap_pct", "momentum_macd", ...). Single-column transforms still
// return an Output with one entry so callers have a uniform shape.
type Output map[string]model.Series

// dates returns the shared date axis of a Series, used to build sibling
// columns that must stay aligned with the input.
func dates(s model.Series) []time.Time {
	return s.Dates()
}

// ─── Resample ─────────────────────────────────────────────────────────────────

// Agg selects how Resample aggregates the values inside one period.
type Agg string

const (
	AggLast  Agg = "last"
	AggFirst Agg = "first"
	AggMean  Agg = "mean"
	AggSum   Agg = "sum"
)

// Resample aggregates s to freq, one output row per period that has at least
// one input observation. Periods with no input are dropped, not NaN-filled.
// The output date for a period is the period's end date, per spec.
func Resample(s model.Series, freq model.Frequency, agg Agg) (model.Series, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("resample: empty input")
	}
	type bucket struct {
		end  time.Time
		vals []float64
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)
	for _, p := range s {
		key, end := periodBounds(p.Date, freq)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{end: end}
			buckets[key] = b
			order = append(order, key)
		}
		if !p.IsMissing() {
			b.vals = append(b.vals, p.Value)
		}
	}
	sort.Strings(order)
	out := make(model.Series, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		if len(b.vals) == 0 {
			continue
		}
		var v float64
		switch agg {
		case AggLast:
			v = b.vals[len(b.vals)-1]
		case AggFirst:
			v = b.vals[0]
		case AggMean:
			v = mean(b.vals)
		case AggSum:
			v = sum(b.vals)
		default:
			return nil, fmt.Errorf("resample: unknown agg %q", agg)
		}
		out = append(out, model.Point{Date: b.end, Value: v})
	}
	return out, nil
}

// periodBounds returns a sortable period key and the period's end date.
func periodBounds(t time.Time, freq model.Frequency) (string, time.Time) {
	switch freq {
	case model.FreqWeekly:
		// ISO week ending Sunday.
		offset := (7 - int(t.Weekday())) % 7
		end := t.AddDate(0, 0, offset)
		y, w := end.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w), end
	case model.FreqMonthly:
		end := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return fmt.Sprintf("%04d-%02d", t.Year(), t.Month()), end
	case model.FreqQuarterly:
		q := (t.Month()-1)/3 + 1
		endMonth := time.Month(q * 3)
		end := time.Date(t.Year(), endMonth+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return fmt.Sprintf("%04d-Q%d", t.Year(), q), end
	case model.FreqAnnual:
		end := time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
		return fmt.Sprintf("%04d", t.Year()), end
	default: // daily
		return t.Format("2006-01-02"), t
	}
}

// ─── YoY change ───────────────────────────────────────────────────────────────

// YoYChange computes a percent year-over-year change. If periods is 0 the
// lookback is auto-detected from the median inter-observation gap in days,
// matching a roughly-annual horizon regardless of source frequency.
func YoYChange(s model.Series, periods int) (model.Series, error) {
	if periods == 0 {
		periods = detectYoYPeriods(s)
	}
	return pctChangeOver(s, periods)
}

// detectYoYPeriods maps the median date gap to a "one year" lookback in
// units of observations: daily data needs 252 obs, weekly 52, monthly 12,
// quarterly 4; anything coarser is already annual.
func detectYoYPeriods(s model.Series) int {
	gap := medianGapDays(s)
	switch {
	case gap <= 7:
		return 252
	case gap <= 14:
		return 52
	case gap <= 45:
		return 12
	case gap <= 100:
		return 4
	default:
		return 1
	}
}

func medianGapDays(s model.Series) float64 {
	if len(s) < 2 {
		return 30
	}
	gaps := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		gaps = append(gaps, s[i].Date.Sub(s[i-1].Date).Hours()/24)
	}
	sort.Float64s(gaps)
	mid := len(gaps) / 2
	if len(gaps)%2 == 0 {
		return (gaps[mid-1] + gaps[mid]) / 2
	}
	return gaps[mid]
}

// ─── Growth rate ──────────────────────────────────────────────────────────────

// GrowthMethod selects the growth-rate formula.
type GrowthMethod string

const (
	GrowthPct GrowthMethod = "pct"
	GrowthLog GrowthMethod = "log"
)

// GrowthRate computes the period-over-period growth rate. pct gives percent
// change; log gives ln(x_t/x_{t-k}), undefined (NaN) when either value is
// non-positive.
func GrowthRate(s model.Series, periods int, method GrowthMethod) (model.Series, error) {
	if periods < 1 {
		return nil, fmt.Errorf("growth-rate: periods must be >= 1, got %d", periods)
	}
	switch method {
	case GrowthPct:
		return pctChangeOver(s, periods)
	case GrowthLog:
		return logChangeOver(s, periods)
	default:
		return nil, fmt.Errorf("growth-rate: unknown method %q", method)
	}
}

func pctChangeOver(s model.Series, periods int) (model.Series, error) {
	if len(s) <= periods {
		return nil, fmt.Errorf("pct-change: need more than %d observations, got %d", periods, len(s))
	}
	out := make(model.Series, 0, len(s)-periods)
	for i := periods; i < len(s); i++ {
		curr, prev := s[i].Value, s[i-periods].Value
		v := math.NaN()
		if !math.IsNaN(curr) && !math.IsNaN(prev) && prev != 0 {
			v = (curr - prev) / math.Abs(prev) * 100
		}
		out = append(out, model.Point{Date: s[i].Date, Value: v})
	}
	return out, nil
}

func logChangeOver(s model.Series, periods int) (model.Series, error) {
	if len(s) <= periods {
		return nil, fmt.Errorf("log-change: need more than %d observations, got %d", periods, len(s))
	}
	out := make(model.Series, 0, len(s)-periods)
	for i := periods; i < len(s); i++ {
		curr, prev := s[i].Value, s[i-periods].Value
		v := math.NaN()
		if !math.IsNaN(curr) && !math.IsNaN(prev) && curr > 0 && prev > 0 {
			v = math.Log(curr / prev)
		}
		out = append(out, model.Point{Date: s[i].Date, Value: v})
	}
	return out, nil
}

// ─── Rolling gap ──────────────────────────────────────────────────────────────

// RollingGap computes each observation's deviation from its trailing mean,
// the mean of the window observations before it (the current value is not
// part of its own baseline): gap = value - trailing_mean, gap_pct = gap /
// trailing_mean * 100.
func RollingGap(s model.Series, window int) (Output, error) {
	if window < 2 {
		return nil, fmt.Errorf("rolling-gap: window must be >= 2, got %d", window)
	}
	trail, err := rollMean(s, window, window)
	if err != nil {
		return nil, err
	}
	gap := make(model.Series, len(s))
	gapPct := make(model.Series, len(s))
	for i, p := range s {
		tm := math.NaN()
		if i > 0 {
			tm = trail[i-1].Value
		}
		g := math.NaN()
		gp := math.NaN()
		if !math.IsNaN(p.Value) && !math.IsNaN(tm) {
			g = p.Value - tm
			if tm != 0 {
				gp = g / tm * 100
			}
		}
		gap[i] = model.Point{Date: p.Date, Value: g}
		gapPct[i] = model.Point{Date: p.Date, Value: gp}
	}
	return Output{"gap": gap, "gap_pct": gapPct}, nil
}

// ─── Credit impulse ───────────────────────────────────────────────────────────

// CreditImpulse computes the first difference ("credit_flow") of a level
// series and the second difference ("credit_impulse") of that flow, both at
// the given period spacing. On a level series 100,102,105,107,108 with
// periods=1 this yields credit_flow=[.,2,3,2,1] and
// credit_impulse=[.,.,1,-1,-1].
func CreditImpulse(s model.Series, periods int) (Output, error) {
	if periods < 1 {
		return nil, fmt.Errorf("credit-impulse: periods must be >= 1, got %d", periods)
	}
	flow, err := diffOver(s, periods)
	if err != nil {
		return nil, err
	}
	impulse, err := diffOver(flow, periods)
	if err != nil {
		return nil, err
	}
	return Output{"credit_flow": flow, "credit_impulse": impulse}, nil
}

func diffOver(s model.Series, periods int) (model.Series, error) {
	if len(s) <= periods {
		// Not enough history: whole output is NaN, row count preserved.
		out := make(model.Series, len(s))
		for i, p := range s {
			out[i] = model.Point{Date: p.Date, Value: math.NaN()}
		}
		return out, nil
	}
	out := make(model.Series, len(s))
	for i := range periods {
		out[i] = model.Point{Date: s[i].Date, Value: math.NaN()}
	}
	for i := periods; i < len(s); i++ {
		curr, prev := s[i].Value, s[i-periods].Value
		v := math.NaN()
		if !math.IsNaN(curr) && !math.IsNaN(prev) {
			v = curr - prev
		}
		out[i] = model.Point{Date: s[i].Date, Value: v}
	}
	return out, nil
}

// ─── HP filter gap ────────────────────────────────────────────────────────────

// HPFilterGap decomposes s into a Hodrick-Prescott trend and the residual
// gap (value - trend). For series too short to invert the HP system (< 5
// points) it falls back to a trailing 3-point rolling-mean trend, matching the
// fallback the pipeline uses when no HP implementation is available.
func HPFilterGap(s model.Series, lambda float64) (Output, error) {
	n := len(s)
	if n == 0 {
		return nil, fmt.Errorf("hp-filter-gap: empty input")
	}
	var trend []float64
	if n < 5 {
		trend = fallbackTrend(s, 3)
	} else {
		trend = hpTrend(s.Values(), lambda)
	}
	trendSeries := make(model.Series, n)
	gap := make(model.Series, n)
	for i, p := range s {
		trendSeries[i] = model.Point{Date: p.Date, Value: trend[i]}
		g := math.NaN()
		if !math.IsNaN(p.Value) && !math.IsNaN(trend[i]) {
			g = p.Value - trend[i]
		}
		gap[i] = model.Point{Date: p.Date, Value: g}
	}
	return Output{"hp_trend": trendSeries, "hp_gap": gap}, nil
}

// hpTrend solves the HP filter's normal equations (I + lambda*K'K)trend = y
// where K is the second-difference operator, via Gaussian elimination on the
// pentadiagonal system. Missing input values are filled with the series mean
// before solving and carried back as NaN in the gap, not the trend.
func hpTrend(y []float64, lambda float64) []float64 {
	n := len(y)
	filled := make([]float64, n)
	copy(filled, y)
	m := meanIgnoreNaN(y)
	for i, v := range filled {
		if math.IsNaN(v) {
			filled[i] = m
		}
	}

	// Build the dense pentadiagonal matrix A = I + lambda*D'D and solve A*t=y.
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		a[i][i] = 1
	}
	// Second-difference operator D has rows for i=1..n-2: t[i-1]-2t[i]+t[i+1].
	for i := 1; i < n-1; i++ {
		addHP(a, i-1, i-1, lambda)
		addHP(a, i-1, i, -2*lambda)
		addHP(a, i-1, i+1, lambda)
		addHP(a, i, i-1, -2*lambda)
		addHP(a, i, i, 4*lambda)
		addHP(a, i, i+1, -2*lambda)
		addHP(a, i+1, i-1, lambda)
		addHP(a, i+1, i, -2*lambda)
		addHP(a, i+1, i+1, lambda)
	}
	return solveLinear(a, filled)
}

func addHP(a [][]float64, i, j int, v float64) {
	a[i][j] += v
}

// solveLinear solves a*x=b via Gaussian elimination with partial pivoting.
// Used only for the small-to-moderate systems the HP filter produces.
func solveLinear(a [][]float64, b []float64) []float64 {
	n := len(b)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, n+1)
		copy(aug[i], a[i])
		aug[i][n] = b[i]
	}
	for col := 0; col < n; col++ {
		piv := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[piv][col]) {
				piv = r
			}
		}
		aug[col], aug[piv] = aug[piv], aug[col]
		pv := aug[col][col]
		if pv == 0 {
			continue
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col] / pv
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if aug[i][i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = aug[i][n] / aug[i][i]
	}
	return out
}

// fallbackTrend is the rolling-mean trend used when the series is too short
// to support an HP solve.
func fallbackTrend(s model.Series, window int) []float64 {
	rolled, _ := rollMean(s, window, 1)
	out := make([]float64, len(s))
	for i, p := range rolled {
		out[i] = p.Value
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

// ─── Z-score ──────────────────────────────────────────────────────────────────

// ZScore computes a rolling (if window > 0) or expanding z-score. minPeriods
// is the minimum non-NaN observations required before emitting a value.
func ZScore(s model.Series, window, minPeriods int) (model.Series, error) {
	if minPeriods < 1 {
		minPeriods = 1
	}
	out := make(model.Series, len(s))
	for i, p := range s {
		start := 0
		if window > 0 {
			start = i - window + 1
			if start < 0 {
				start = 0
			}
		}
		vals := nonNaNValues(s[start : i+1])
		v := math.NaN()
		if len(vals) >= minPeriods && !math.IsNaN(p.Value) {
			m := mean(vals)
			sd := stddev(vals, m)
			if sd != 0 {
				v = (p.Value - m) / sd
			}
		}
		out[i] = model.Point{Date: p.Date, Value: v}
	}
	return out, nil
}

// ─── Standardize ──────────────────────────────────────────────────────────────

// StandardizeMethod selects the standardization algorithm.
type StandardizeMethod string

const (
	StandardizeZScore StandardizeMethod = "zscore"
	StandardizeMinMax StandardizeMethod = "minmax"
	StandardizeRobust StandardizeMethod = "robust"
)

// Standardize rescales s with zscore, minmax or robust (median/IQR)
// statistics, taken over the trailing window when window > 0 and over the
// expanding history up to each point otherwise.
func Standardize(s model.Series, method StandardizeMethod, window int) (model.Series, error) {
	switch method {
	case StandardizeZScore:
		return ZScore(s, window, 1)
	case StandardizeMinMax:
		return standardizeMinMax(s, window)
	case StandardizeRobust:
		return standardizeRobust(s, window)
	default:
		return nil, fmt.Errorf("standardize: unknown method %q", method)
	}
}

func standardizeMinMax(s model.Series, window int) (model.Series, error) {
	out := make(model.Series, len(s))
	for i, p := range s {
		start := 0
		if window > 0 {
			start = i - window + 1
			if start < 0 {
				start = 0
			}
		}
		vals := nonNaNValues(s[start : i+1])
		v := math.NaN()
		if len(vals) > 0 && !math.IsNaN(p.Value) {
			mn, mx := minmax(vals)
			if mx != mn {
				v = (p.Value - mn) / (mx - mn)
			}
		}
		out[i] = model.Point{Date: p.Date, Value: v}
	}
	return out, nil
}

func standardizeRobust(s model.Series, window int) (model.Series, error) {
	out := make(model.Series, len(s))
	for i, p := range s {
		start := 0
		if window > 0 {
			start = i - window + 1
			if start < 0 {
				start = 0
			}
		}
		vals := nonNaNValues(s[start : i+1])
		v := math.NaN()
		if len(vals) > 0 && !math.IsNaN(p.Value) {
			med := median(vals)
			q1, q3 := quartiles(vals)
			iqr := q3 - q1
			if iqr != 0 {
				v = (p.Value - med) / iqr
			}
		}
		out[i] = model.Point{Date: p.Date, Value: v}
	}
	return out, nil
}

// ─── Momentum ─────────────────────────────────────────────────────────────────

// Momentum computes momentum = value - value[t-short], momentum_macd =
// rolling_mean(short) - rolling_mean(long), and roc = percent change over
// the short window.
func Momentum(s model.Series, short, long int) (Output, error) {
	if short < 1 || long <= short {
		return nil, fmt.Errorf("momentum: need 1 <= short < long, got short=%d long=%d", short, long)
	}
	shortMA, err := rollMean(s, short, short)
	if err != nil {
		return nil, err
	}
	longMA, err := rollMean(s, long, long)
	if err != nil {
		return nil, err
	}
	mom := make(model.Series, len(s))
	macd := make(model.Series, len(s))
	roc := make(model.Series, len(s))
	for i, p := range s {
		mv, rv := math.NaN(), math.NaN()
		if i >= short && !math.IsNaN(p.Value) && !math.IsNaN(s[i-short].Value) {
			mv = p.Value - s[i-short].Value
			if s[i-short].Value != 0 {
				rv = mv / math.Abs(s[i-short].Value) * 100
			}
		}
		mom[i] = model.Point{Date: p.Date, Value: mv}
		roc[i] = model.Point{Date: p.Date, Value: rv}
		mc := math.NaN()
		if !math.IsNaN(shortMA[i].Value) && !math.IsNaN(longMA[i].Value) {
			mc = shortMA[i].Value - longMA[i].Value
		}
		macd[i] = model.Point{Date: p.Date, Value: mc}
	}
	return Output{"momentum": mom, "momentum_macd": macd, "roc": roc}, nil
}

// ─── Regime detection ─────────────────────────────────────────────────────────

// DetectRegime classifies each z-score observation into {-1,0,1} using the
// strict thresholds lo/hi (§8 invariant: regime = -1 iff zscore < lo, +1 iff
// zscore > hi, else 0).
func DetectRegime(zscore model.Series, lo, hi float64) []model.Regime {
	out := make([]model.Regime, len(zscore))
	for i, p := range zscore {
		if math.IsNaN(p.Value) {
			out[i] = model.RegimeNeutral
			continue
		}
		out[i] = model.ClassifyRegime(p.Value, lo, hi)
	}
	return out
}

// ComputeRegimeProbability estimates how close the z-score series is to a
// regime flip: dist_to_tight/dist_to_loose are the remaining distance to
// each threshold, zscore_trend is the slope over the trailing window, and
// prob_regime_change is an EMA-smoothed probability that rises as the
// relevant distance shrinks and the trend points toward that threshold.
func ComputeRegimeProbability(zscore model.Series, lo, hi float64, window, smoothing int) Output {
	n := len(zscore)
	distTight := make(model.Series, n)
	distLoose := make(model.Series, n)
	trend := make(model.Series, n)
	prob := make(model.Series, n)

	alpha := 2.0 / (float64(smoothing) + 1)
	var emaPrev float64
	haveEMA := false

	for i, p := range zscore {
		z := p.Value
		dt, dl, tr, raw := math.NaN(), math.NaN(), math.NaN(), math.NaN()
		if !math.IsNaN(z) {
			dt = z - lo
			dl = hi - z
			if i >= window {
				prevZ := zscore[i-window].Value
				if !math.IsNaN(prevZ) {
					tr = (z - prevZ) / float64(window)
				}
			}
			if !math.IsNaN(tr) {
				switch {
				case tr > 0 && dl >= 0:
					raw = closeness(dl, hi-lo)
				case tr < 0 && dt >= 0:
					raw = closeness(dt, hi-lo)
				default:
					raw = 0
				}
			}
		}
		if !math.IsNaN(raw) {
			if !haveEMA {
				emaPrev = raw
				haveEMA = true
			} else {
				emaPrev = alpha*raw + (1-alpha)*emaPrev
			}
			prob[i] = model.Point{Date: p.Date, Value: emaPrev}
		} else {
			prob[i] = model.Point{Date: p.Date, Value: math.NaN()}
		}
		distTight[i] = model.Point{Date: p.Date, Value: dt}
		distLoose[i] = model.Point{Date: p.Date, Value: dl}
		trend[i] = model.Point{Date: p.Date, Value: tr}
	}
	return Output{
		"dist_to_tight":      distTight,
		"dist_to_loose":      distLoose,
		"zscore_trend":       trend,
		"prob_regime_change": prob,
	}
}

// closeness maps a non-negative distance and the threshold span to a
// probability in [0,1]: 1 when distance is 0, decaying to 0 at one full span.
func closeness(distance, span float64) float64 {
	if span <= 0 {
		return 0
	}
	v := 1 - distance/span
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ─── Sign flip ────────────────────────────────────────────────────────────────

// ApplySignFlip negates every value in s when expectedSign is -1, leaving it
// unchanged otherwise. Applied before any other transform, per the pipeline's
// pre-flip discipline.
func ApplySignFlip(s model.Series, expectedSign int) model.Series {
	if expectedSign >= 0 {
		return s
	}
	out := make(model.Series, len(s))
	for i, p := range s {
		v := p.Value
		if !math.IsNaN(v) {
			v = -v
		}
		out[i] = model.Point{Date: p.Date, Value: v}
	}
	return out
}

// ─── Frequency detection ──────────────────────────────────────────────────────

// DetectFrequency infers D/W/M/Q/A from the median inter-observation gap in
// days. A series with fewer than 2 points is assumed monthly.
func DetectFrequency(s model.Series) model.Frequency {
	if len(s) < 2 {
		return model.FreqMonthly
	}
	gap := medianGapDays(s)
	switch {
	case gap <= 3:
		return model.FreqDaily
	case gap <= 10:
		return model.FreqWeekly
	case gap <= 45:
		return model.FreqMonthly
	case gap <= 135:
		return model.FreqQuarterly
	default:
		return model.FreqAnnual
	}
}

// ─── Shared statistics helpers ────────────────────────────────────────────────

func nonNaNValues(s model.Series) []float64 {
	out := make([]float64, 0, len(s))
	for _, p := range s {
		if !math.IsNaN(p.Value) {
			out = append(out, p.Value)
		}
	}
	return out
}

func rollMean(s model.Series, window, minPeriods int) (model.Series, error) {
	if window < 1 {
		return nil, fmt.Errorf("roll-mean: window must be >= 1, got %d", window)
	}
	out := make(model.Series, len(s))
	for i, p := range s {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		vals := nonNaNValues(s[start : i+1])
		v := math.NaN()
		if len(vals) >= minPeriods {
			v = mean(vals)
		}
		out[i] = model.Point{Date: p.Date, Value: v}
	}
	return out, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return sum(vals) / float64(len(vals))
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func minmax(vals []float64) (float64, float64) {
	mn, mx := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// quartiles returns (Q1,Q3) using linear interpolation on the sorted values.
func quartiles(vals []float64) (float64, float64) {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.75)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
