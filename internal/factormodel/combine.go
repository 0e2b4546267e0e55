package factormodel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/wuchris/glci/internal/model"
)

// CombineFactors combines multiple pillar factor series into a single
// composite, weighted and (optionally) renormalized to mean 100 / stdev
// 10 (the original's `dynamic_factor.combine_factors`). Missing values at
// any date are treated as zero contribution, matching `fillna(0)`.
func CombineFactors(factors map[string]model.Series, weights map[string]float64, normalize bool) (model.Series, error) {
	if len(factors) == 0 {
		return nil, fmt.Errorf("combine factors: factor set cannot be empty")
	}
	if weights == nil {
		weights = make(map[string]float64, len(factors))
		for name := range factors {
			weights[name] = 1.0 / float64(len(factors))
		}
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("combine factors: weights sum to zero")
	}
	normalized := make(map[string]float64, len(weights))
	for k, w := range weights {
		normalized[k] = w / total
	}

	union := make(map[int64]time.Time)
	for _, s := range factors {
		for _, p := range s {
			union[p.Date.Unix()] = p.Date
		}
	}
	dates := make([]time.Time, 0, len(union))
	for _, d := range union {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	byDate := make(map[string]map[int64]float64, len(factors))
	for name, s := range factors {
		m := make(map[int64]float64, len(s))
		for _, p := range s {
			m[p.Date.Unix()] = p.Value
		}
		byDate[name] = m
	}

	result := make([]float64, len(dates))
	for name, w := range normalized {
		m := byDate[name]
		for i, d := range dates {
			v := m[d.Unix()] // 0 if missing, matching fillna(0)
			result[i] += v * w
		}
	}

	if normalize {
		mean, sd := meanStd(result)
		if sd == 0 {
			sd = 1
		}
		for i := range result {
			result[i] = (result[i]-mean)/sd*10 + 100
		}
	}

	out := make(model.Series, len(dates))
	for i, d := range dates {
		out[i] = model.Point{Date: d, Value: result[i]}
	}
	return out, nil
}

// PillarWeightSnapshot is one rolling-window optimization result: the
// weights that were optimal as of Date, given data through that point.
type PillarWeightSnapshot struct {
	Date    time.Time
	Weights map[string]float64
}

// OptimizePillarWeights rolling-window Ridge-regresses pillar factors
// against forward asset returns and returns the time-varying, |coef|-
// normalized-to-1 optimal weights (the original's
// `dynamic_factor.optimize_pillar_weights`). Like the original, nothing in
// this package's call sites invokes it yet; it is exposed for a future
// `optimize_weights` wiring and exercised directly by this package's tests.
func OptimizePillarWeights(pillarFactors map[string]model.Series, targetReturns model.Series, window, forwardPeriods int, regularization float64) ([]PillarWeightSnapshot, error) {
	if len(pillarFactors) == 0 {
		return nil, fmt.Errorf("optimize pillar weights: no pillar factors given")
	}
	names := make([]string, 0, len(pillarFactors))
	for name := range pillarFactors {
		names = append(names, name)
	}
	sort.Strings(names)

	// Align all pillar factors and the return series on common dates.
	union := make(map[int64]time.Time)
	for _, s := range pillarFactors {
		for _, p := range s {
			union[p.Date.Unix()] = p.Date
		}
	}
	var dates []time.Time
	for _, d := range union {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	factorByDate := make(map[string]map[int64]float64, len(names))
	for _, name := range names {
		m := make(map[int64]float64)
		for _, p := range pillarFactors[name] {
			m[p.Date.Unix()] = p.Value
		}
		factorByDate[name] = m
	}
	returnByDate := make(map[int64]float64)
	for _, p := range targetReturns {
		returnByDate[p.Date.Unix()] = p.Value
	}

	// Forward-shift returns by forwardPeriods positions on the aligned grid.
	type row struct {
		date    time.Time
		factors []float64
		target  float64
	}
	var rows []row
	for i, d := range dates {
		targetIdx := i + forwardPeriods
		if targetIdx >= len(dates) {
			continue
		}
		targetVal, ok := returnByDate[dates[targetIdx].Unix()]
		if !ok {
			continue
		}
		fvals := make([]float64, len(names))
		complete := true
		for j, name := range names {
			v, ok := factorByDate[name][d.Unix()]
			if !ok || math.IsNaN(v) {
				complete = false
				break
			}
			fvals[j] = v
		}
		if !complete {
			continue
		}
		rows = append(rows, row{date: d, factors: fvals, target: targetVal})
	}

	equalWeights := func() map[string]float64 {
		w := make(map[string]float64, len(names))
		for _, n := range names {
			w[n] = 1.0 / float64(len(names))
		}
		return w
	}

	if len(rows) < window+forwardPeriods {
		if len(rows) == 0 {
			return []PillarWeightSnapshot{{Date: time.Time{}, Weights: equalWeights()}}, nil
		}
		return []PillarWeightSnapshot{{Date: rows[len(rows)-1].date, Weights: equalWeights()}}, nil
	}

	var out []PillarWeightSnapshot
	for t := window; t < len(rows); t++ {
		train := rows[:t]
		nTrain := len(train)
		nVars := len(names)

		X := mat.NewDense(nTrain, nVars, nil)
		yVals := make([]float64, nTrain)
		for i, r := range train {
			X.SetRow(i, r.factors)
			yVals[i] = r.target
		}
		y := mat.NewDense(nTrain, 1, yVals)

		var Xt mat.Dense
		Xt.CloneFrom(X.T())
		var XtX mat.Dense
		XtX.Mul(&Xt, X)
		for i := 0; i < nVars; i++ {
			XtX.Set(i, i, XtX.At(i, i)+regularization)
		}
		var XtY mat.Dense
		XtY.Mul(&Xt, y)

		var coefMat mat.Dense
		if err := coefMat.Solve(&XtX, &XtY); err != nil {
			out = append(out, PillarWeightSnapshot{Date: train[nTrain-1].date, Weights: equalWeights()})
			continue
		}

		raw := make([]float64, nVars)
		var sum float64
		for i := 0; i < nVars; i++ {
			raw[i] = math.Abs(coefMat.At(i, 0))
			sum += raw[i]
		}
		weights := make(map[string]float64, nVars)
		if sum > 0 {
			for i, name := range names {
				weights[name] = raw[i] / sum
			}
		} else {
			weights = equalWeights()
		}
		out = append(out, PillarWeightSnapshot{Date: train[nTrain-1].date, Weights: weights})
	}
	return out, nil
}
