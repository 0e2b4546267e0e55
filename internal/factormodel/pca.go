package factormodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wuchris/glci/internal/model"
)

// imputeAndStandardize reproduces the original's pre-PCA cleanup: bounded
// forward-fill (26) then back-fill (26), then column-mean fill for
// anything still missing, followed by z-score standardization per column.
// Returns the standardized matrix as row-major [][]float64 (rows =
// observations).
func imputeAndStandardize(fm model.FeatureMatrix) ([][]float64, error) {
	nObs := fm.NumRows()
	nVars := len(fm.Order)
	cols := make([][]float64, nVars)
	for j, name := range fm.Order {
		col := append([]float64(nil), fm.Columns[name]...)
		forwardFillLimit(col, 26)
		backwardFillLimit(col, 26)
		mean, _ := meanStd(col)
		for i, v := range col {
			if math.IsNaN(v) {
				if math.IsNaN(mean) {
					col[i] = 0
				} else {
					col[i] = mean
				}
			}
		}
		cols[j] = col
	}

	// standardize each column
	for j := range cols {
		mean, sd := meanStd(cols[j])
		if sd == 0 {
			sd = 1
		}
		for i := range cols[j] {
			cols[j][i] = (cols[j][i] - mean) / sd
		}
	}

	rows := make([][]float64, nObs)
	for i := 0; i < nObs; i++ {
		rows[i] = make([]float64, nVars)
		for j := range cols {
			rows[i][j] = cols[j][i]
		}
	}
	return rows, nil
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

// fitPCA fits plain single-component PCA via gonum/stat.PC (the
// original's sklearn.PCA fallback path).
func (m *Model) fitPCA(fm model.FeatureMatrix) (model.FactorResult, error) {
	rows, err := imputeAndStandardize(fm)
	if err != nil {
		return model.FactorResult{}, err
	}
	nObs, nVars := len(rows), len(fm.Order)
	if nObs < maxInt(2, 10) {
		return model.FactorResult{}, fmt.Errorf("insufficient valid observations: got %d", nObs)
	}

	data := mat.NewDense(nObs, nVars, nil)
	for i, r := range rows {
		data.SetRow(i, r)
	}

	var pc stat.PC
	ok := pc.PrincipalComponents(data, nil)
	if !ok {
		return model.FactorResult{}, fmt.Errorf("PCA fit failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	loadingVec := make([]float64, nVars)
	for j := 0; j < nVars; j++ {
		loadingVec[j] = vecs.At(j, 0)
	}

	factor := make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		var sum float64
		for j := 0; j < nVars; j++ {
			sum += rows[i][j] * loadingVec[j]
		}
		factor[i] = sum
	}

	loadings := make(map[string]float64, nVars)
	for j, name := range fm.Order {
		loadings[name] = loadingVec[j]
	}
	adjustFactorSign(factor, loadings)

	var totalVar float64
	for _, v := range vars {
		totalVar += v
	}
	explained := 0.0
	if totalVar > 0 {
		explained = vars[0] / totalVar
	}

	return model.FactorResult{
		Dates:             fm.Dates,
		Factor:            factor,
		Loadings:          loadings,
		ExplainedVariance: explained,
		Method:            MethodPCA,
		Converged:         true,
		NObservations:     nObs,
	}, nil
}

// fitPCAShrunk fits PCA then re-estimates loadings by Ridge-regressing
// each standardized column on the raw factor scores (the original's
// `_fit_pca_shrunk`), producing loadings that are more stable when
// variables are highly correlated.
func (m *Model) fitPCAShrunk(fm model.FeatureMatrix) (model.FactorResult, error) {
	rows, err := imputeAndStandardize(fm)
	if err != nil {
		return model.FactorResult{}, err
	}
	nObs, nVars := len(rows), len(fm.Order)
	if nObs < maxInt(2, 10) {
		return model.FactorResult{}, fmt.Errorf("insufficient valid observations: got %d", nObs)
	}

	data := mat.NewDense(nObs, nVars, nil)
	for i, r := range rows {
		data.SetRow(i, r)
	}

	var pc stat.PC
	ok := pc.PrincipalComponents(data, nil)
	if !ok {
		return model.FactorResult{}, fmt.Errorf("PCA fit failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	rawLoading := make([]float64, nVars)
	for j := 0; j < nVars; j++ {
		rawLoading[j] = vecs.At(j, 0)
	}
	factorsRaw := make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		var sum float64
		for j := 0; j < nVars; j++ {
			sum += rows[i][j] * rawLoading[j]
		}
		factorsRaw[i] = sum
	}

	// Ridge-regress each standardized column on factorsRaw (single
	// predictor), closed form via gonum/mat: coef = (F'F + aI)^-1 F'y.
	F := mat.NewDense(nObs, 1, factorsRaw)
	var Ft mat.Dense
	Ft.CloneFrom(F.T())
	var FtF mat.Dense
	FtF.Mul(&Ft, F)
	FtF.Set(0, 0, FtF.At(0, 0)+m.ShrinkageAlpha)

	shrunkLoading := make([]float64, nVars)
	for j := 0; j < nVars; j++ {
		col := make([]float64, nObs)
		for i := 0; i < nObs; i++ {
			col[i] = rows[i][j]
		}
		y := mat.NewDense(nObs, 1, col)
		var FtY mat.Dense
		FtY.Mul(&Ft, y)
		if FtF.At(0, 0) == 0 {
			shrunkLoading[j] = 0
			continue
		}
		shrunkLoading[j] = FtY.At(0, 0) / FtF.At(0, 0)
	}

	factor := make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		var sum float64
		for j := 0; j < nVars; j++ {
			sum += rows[i][j] * shrunkLoading[j]
		}
		factor[i] = sum
	}
	fMean, fSD := meanStd(factor)
	if fSD == 0 {
		fSD = 1
	}
	for i := range factor {
		factor[i] = (factor[i] - fMean) / fSD
	}

	loadings := make(map[string]float64, nVars)
	for j, name := range fm.Order {
		loadings[name] = shrunkLoading[j]
	}
	adjustFactorSign(factor, loadings)

	var totalVar float64
	for _, v := range vars {
		totalVar += v
	}
	explained := 0.0
	if totalVar > 0 {
		explained = vars[0] / totalVar
	}

	return model.FactorResult{
		Dates:             fm.Dates,
		Factor:            factor,
		Loadings:          loadings,
		ExplainedVariance: explained,
		Method:            MethodPCAShrunk,
		Converged:         true,
		NObservations:     nObs,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
