package factormodel

import (
	"fmt"
	"math"

	"github.com/wuchris/glci/internal/model"
)

// fitDFM fits a single-factor Gaussian state-space model by EM: factor
// dynamics f_t = phi*f_{t-1} + eta_t, observations y_it = lambda_i*f_t +
// eps_it. Missing observations are skipped in the Kalman update step
// (standard state-space handling of ragged data, matching the original's
// reliance on statsmodels' native missing-data support) rather than
// requiring complete rows throughout — complete rows are only counted, and
// at least 10 of them are required before EM starts.
// gonum has no state-space/Kalman package to wire, so the filter and
// smoother recursions here are scalar arithmetic, not gonum/mat calls;
// gonum is used in this package wherever genuine matrix algebra is
// needed (pca.go's PCA and Ridge-shrinkage steps).
func (m *Model) fitDFM(fm model.FeatureMatrix) (model.FactorResult, error) {
	nObs := fm.NumRows()
	nVars := len(fm.Order)
	if nObs == 0 || nVars == 0 {
		return model.FactorResult{}, fmt.Errorf("dfm: empty input")
	}

	standardized := make([][]float64, nVars) // [var][obs], NaN preserved
	for j, name := range fm.Order {
		col := fm.Columns[name]
		mean, sd := meanStd(col)
		if sd == 0 {
			sd = 1
		}
		s := make([]float64, nObs)
		for i, v := range col {
			if math.IsNaN(v) {
				s[i] = math.NaN()
			} else {
				s[i] = (v - mean) / sd
			}
		}
		standardized[j] = s
	}

	completeRows := 0
	for i := 0; i < nObs; i++ {
		complete := true
		for j := 0; j < nVars; j++ {
			if math.IsNaN(standardized[j][i]) {
				complete = false
				break
			}
		}
		if complete {
			completeRows++
		}
	}
	if completeRows < 10 {
		return model.FactorResult{}, fmt.Errorf("dfm: only %d complete rows, need at least 10 to seed EM", completeRows)
	}

	// Per-row simple average of the available standardized values. EM
	// itself starts from unit loadings and unit idiosyncratic variances.
	avg := make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		var sum float64
		n := 0
		for j := 0; j < nVars; j++ {
			if !math.IsNaN(standardized[j][i]) {
				sum += standardized[j][i]
				n++
			}
		}
		if n > 0 {
			avg[i] = sum / float64(n)
		} else {
			avg[i] = math.NaN()
		}
	}

	lambda := make([]float64, nVars)
	sigma := make([]float64, nVars)
	for j := 0; j < nVars; j++ {
		lambda[j] = 1.0
		sigma[j] = 1.0
	}
	phi := 0.5
	sigmaEta := 1.0

	const maxIter = 30
	var smoothed []float64
	var smoothedVar []float64
	converged := false

	for iter := 0; iter < maxIter; iter++ {
		fFilt, pFilt, fPred, pPred := kalmanFilter(standardized, lambda, sigma, phi, sigmaEta, nObs, nVars)
		smoothed, smoothedVar = kalmanSmooth(fFilt, pFilt, fPred, pPred, phi, nObs)

		newLambda := make([]float64, nVars)
		newSigma := make([]float64, nVars)
		for j := 0; j < nVars; j++ {
			var num, den float64
			count := 0
			for i := 0; i < nObs; i++ {
				v := standardized[j][i]
				if math.IsNaN(v) {
					continue
				}
				num += v * smoothed[i]
				den += smoothed[i]*smoothed[i] + smoothedVar[i]
				count++
			}
			if den > 1e-10 {
				newLambda[j] = num / den
			} else {
				newLambda[j] = lambda[j]
			}
			var resSq float64
			for i := 0; i < nObs; i++ {
				v := standardized[j][i]
				if math.IsNaN(v) {
					continue
				}
				res := v - newLambda[j]*smoothed[i]
				resSq += res*res + newLambda[j]*newLambda[j]*smoothedVar[i]
			}
			if count > 0 {
				newSigma[j] = math.Max(resSq/float64(count), 1e-6)
			} else {
				newSigma[j] = sigma[j]
			}
		}

		var numPhi, denPhi float64
		for i := 1; i < nObs; i++ {
			numPhi += smoothed[i] * smoothed[i-1]
			denPhi += smoothed[i-1]*smoothed[i-1] + smoothedVar[i-1]
		}
		newPhi := phi
		if denPhi > 1e-10 {
			newPhi = numPhi / denPhi
			newPhi = math.Max(-0.98, math.Min(0.98, newPhi))
		}

		var sseEta float64
		for i := 1; i < nObs; i++ {
			res := smoothed[i] - newPhi*smoothed[i-1]
			sseEta += res*res + smoothedVar[i]
		}
		newSigmaEta := math.Max(sseEta/float64(nObs-1), 1e-6)

		delta := math.Abs(newPhi-phi) + math.Abs(newSigmaEta-sigmaEta)
		for j := 0; j < nVars; j++ {
			delta += math.Abs(newLambda[j] - lambda[j])
		}
		lambda, sigma, phi, sigmaEta = newLambda, newSigma, newPhi, newSigmaEta

		if delta < 1e-5 {
			converged = true
			break
		}
	}

	loadings := make(map[string]float64, nVars)
	for j, name := range fm.Order {
		loadings[name] = lambda[j]
	}
	factor := append([]float64(nil), smoothed...)
	adjustFactorSign(factor, loadings)

	fMean, fSD := meanStd(factor)
	if fSD == 0 {
		fSD = 1
	}
	for i := range factor {
		factor[i] = (factor[i] - fMean) / fSD
	}

	var explainedNum, explainedDen float64
	for j := 0; j < nVars; j++ {
		explainedNum += lambda[j] * lambda[j]
		explainedDen += lambda[j]*lambda[j] + sigma[j]
	}
	explained := 0.5
	if explainedDen > 0 {
		explained = explainedNum / explainedDen
	}

	return model.FactorResult{
		Dates:             fm.Dates,
		Factor:            factor,
		Loadings:          loadings,
		ExplainedVariance: explained,
		Method:            MethodDFM,
		Converged:         converged,
		NObservations:     nObs,
	}, nil
}

// kalmanFilter runs the forward Kalman filter for the scalar single-factor
// state-space model, skipping the measurement update for any variable
// missing at time t (ragged-edge handling).
func kalmanFilter(y [][]float64, lambda, sigma []float64, phi, sigmaEta float64, nObs, nVars int) (fFilt, pFilt, fPred, pPred []float64) {
	fFilt = make([]float64, nObs)
	pFilt = make([]float64, nObs)
	fPred = make([]float64, nObs)
	pPred = make([]float64, nObs)

	f, p := 0.0, 1.0
	for t := 0; t < nObs; t++ {
		if t == 0 {
			fPred[t], pPred[t] = f, p
		} else {
			fPred[t] = phi * fFilt[t-1]
			pPred[t] = phi*phi*pFilt[t-1] + sigmaEta
		}

		fi, pi := fPred[t], pPred[t]
		for j := 0; j < nVars; j++ {
			v := y[j][t]
			if math.IsNaN(v) {
				continue
			}
			innovVar := lambda[j]*lambda[j]*pi + sigma[j]
			if innovVar <= 0 {
				continue
			}
			gain := pi * lambda[j] / innovVar
			innovation := v - lambda[j]*fi
			fi = fi + gain*innovation
			pi = (1 - gain*lambda[j]) * pi
		}
		fFilt[t], pFilt[t] = fi, pi
	}
	return fFilt, pFilt, fPred, pPred
}

// kalmanSmooth runs the RTS (Rauch-Tung-Striebel) fixed-interval smoother
// over the filtered scalar state.
func kalmanSmooth(fFilt, pFilt, fPred, pPred []float64, phi float64, nObs int) (smoothed, smoothedVar []float64) {
	smoothed = make([]float64, nObs)
	smoothedVar = make([]float64, nObs)
	smoothed[nObs-1] = fFilt[nObs-1]
	smoothedVar[nObs-1] = pFilt[nObs-1]

	for t := nObs - 2; t >= 0; t-- {
		if pPred[t+1] <= 0 {
			smoothed[t] = fFilt[t]
			smoothedVar[t] = pFilt[t]
			continue
		}
		gain := pFilt[t] * phi / pPred[t+1]
		smoothed[t] = fFilt[t] + gain*(smoothed[t+1]-fPred[t+1])
		smoothedVar[t] = pFilt[t] + gain*gain*(smoothedVar[t+1]-pPred[t+1])
	}
	return smoothed, smoothedVar
}
