// Package factormodel extracts a single latent factor from a pillar's
// feature matrix (§4.4), choosing automatically between a state-space
// dynamic factor model, PCA with Ridge-shrunk loadings, and plain PCA,
// falling back down the ladder on any numerical failure.
package factormodel

import (
	"fmt"
	"math"

	"github.com/wuchris/glci/internal/model"
)

// Method names, in fallback-ladder order.
const (
	MethodDFM       = model.MethodDFM
	MethodPCAShrunk = model.MethodPCAShrunk
	MethodPCA       = model.MethodPCA
	MethodAuto      = model.MethodAuto
)

// Model wraps a single-factor extraction fit, mirroring the original's
// DynamicFactorModel: one public Fit call, ladder fallback built in.
type Model struct {
	FactorOrder     int
	ErrorOrder      int
	Method          string
	ShrinkageAlpha  float64
	MinObservations int
	MinVariables    int
	MaxIter         int
}

// NewModel returns a Model configured with the original's defaults.
func NewModel() *Model {
	return &Model{
		FactorOrder:     1,
		ErrorOrder:      0,
		Method:          MethodAuto,
		ShrinkageAlpha:  0.1,
		MinObservations: 30,
		MinVariables:    2,
		MaxIter:         100,
	}
}

// QualityCheck is a pre-fit validation report (the original's
// DataQualityCheck).
type QualityCheck struct {
	IsValid          bool
	NValidObs        int
	NVariables       int
	CoveragePct      float64
	NearConstantCols []string
	HighMissingCols  []string
	Warnings         []string
}

// ValidateData checks a feature matrix for fitness before extraction:
// enough observations, enough surviving (non-near-constant) variables,
// and flags high-missing columns for diagnostics.
func (m *Model) ValidateData(fm model.FeatureMatrix) QualityCheck {
	var warnings []string
	nObs, nVars := fm.NumRows(), len(fm.Order)

	if nObs < m.MinObservations {
		warnings = append(warnings, fmt.Sprintf("only %d observations, need %d", nObs, m.MinObservations))
	}
	if nVars < m.MinVariables {
		warnings = append(warnings, fmt.Sprintf("only %d variables, need %d", nVars, m.MinVariables))
	}

	var nearConstant, highMissing []string
	var totalPresent, totalCells int
	validRowHasData := make([]bool, nObs)

	for _, col := range fm.Order {
		vals := fm.Column(col)
		mean, sd := meanStd(vals)
		if sd < 1e-8 {
			nearConstant = append(nearConstant, col)
			warnings = append(warnings, fmt.Sprintf("column %q is near-constant", col))
		}
		present := 0
		for i, v := range vals {
			totalCells++
			if !math.IsNaN(v) {
				present++
				totalPresent++
				validRowHasData[i] = true
			}
		}
		missingPct := 1 - float64(present)/float64(max(1, len(vals)))
		if missingPct > 0.5 {
			highMissing = append(highMissing, col)
			warnings = append(warnings, fmt.Sprintf("column %q has %.0f%% missing", col, missingPct*100))
		}
		_ = mean
	}

	coverage := 0.0
	if totalCells > 0 {
		coverage = float64(totalPresent) / float64(totalCells)
	}
	validObs := 0
	for _, v := range validRowHasData {
		if v {
			validObs++
		}
	}

	isValid := validObs >= m.MinObservations && (nVars-len(nearConstant)) >= m.MinVariables

	return QualityCheck{
		IsValid:          isValid,
		NValidObs:        validObs,
		NVariables:       nVars - len(nearConstant),
		CoveragePct:      coverage,
		NearConstantCols: nearConstant,
		HighMissingCols:  highMissing,
		Warnings:         warnings,
	}
}

// Fit validates, chooses an extraction method (or uses m.Method if not
// "auto"), and extracts a single latent factor, applying the DFM →
// PCA-shrunk → PCA fallback ladder on numerical failure (§4.4, §7
// NumericError).
func (m *Model) Fit(fm model.FeatureMatrix) (model.FactorResult, error) {
	quality := m.ValidateData(fm)
	if !quality.IsValid {
		return model.FactorResult{}, fmt.Errorf("factor model data validation failed: %s", joinStrings(quality.Warnings, "; "))
	}

	clean := dropColumns(fm, quality.NearConstantCols)
	if len(clean.Order) == 0 {
		return model.FactorResult{}, fmt.Errorf("factor model: no variables survive near-constant filtering")
	}

	method := m.Method
	if method == MethodAuto || method == "" {
		method = m.chooseMethod(clean)
	}

	var (
		result model.FactorResult
		err    error
	)
	switch method {
	case MethodDFM:
		result, err = m.fitDFM(clean)
		if err != nil {
			result, err = m.fitPCAShrunk(clean)
		}
		if err != nil {
			result, err = m.fitPCA(clean)
		}
	case MethodPCAShrunk:
		result, err = m.fitPCAShrunk(clean)
		if err != nil {
			result, err = m.fitPCA(clean)
		}
	default:
		result, err = m.fitPCA(clean)
	}
	if err != nil {
		return model.FactorResult{}, fmt.Errorf("factor model: all fallback methods failed: %w", err)
	}

	result.NVariables = len(clean.Order)
	return result, nil
}

// chooseMethod mirrors the original's `_choose_method`: prefers DFM when
// dropping incomplete rows would still leave enough data to seed the EM
// fit, otherwise starts the ladder at PCA-shrunk.
func (m *Model) chooseMethod(fm model.FeatureMatrix) string {
	nObs, nVars := fm.NumRows(), len(fm.Order)
	if nObs == 0 || nVars == 0 {
		return MethodPCAShrunk
	}

	totalCells := nObs * nVars
	missing := 0
	completeRows := 0
	for i := 0; i < nObs; i++ {
		rowComplete := true
		for _, col := range fm.Order {
			if math.IsNaN(fm.Columns[col][i]) {
				missing++
				rowComplete = false
			}
		}
		if rowComplete {
			completeRows++
		}
	}
	missingPct := float64(missing) / float64(totalCells)

	dfmViable := completeRows >= max(30, int(float64(nObs)*0.5))
	if dfmViable && missingPct > 0 && missingPct <= 0.3 {
		return MethodDFM
	}
	return MethodPCAShrunk
}

// adjustFactorSign flips the factor (in place) if the mean loading across
// variables is negative, so the extracted factor's sign always agrees
// with the (pre-flipped, all-positive-expected) feature set (§4.4
// "Sign discipline").
func adjustFactorSign(factor []float64, loadings map[string]float64) {
	if len(loadings) == 0 {
		return
	}
	var sum float64
	for _, v := range loadings {
		sum += v
	}
	avg := sum / float64(len(loadings))
	if avg >= 0 {
		return
	}
	for k := range loadings {
		loadings[k] = -loadings[k]
	}
	for i := range factor {
		factor[i] = -factor[i]
	}
}

func dropColumns(fm model.FeatureMatrix, drop []string) model.FeatureMatrix {
	if len(drop) == 0 {
		return fm
	}
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropSet[d] = true
	}
	out := model.FeatureMatrix{Dates: fm.Dates, Columns: make(map[string][]float64)}
	for _, col := range fm.Order {
		if dropSet[col] {
			continue
		}
		out.Order = append(out.Order, col)
		out.Columns[col] = fm.Columns[col]
	}
	return out
}

func meanStd(vals []float64) (mean, sd float64) {
	n := 0
	for _, v := range vals {
		if !math.IsNaN(v) {
			mean += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean /= float64(n)
	var sumSq float64
	for _, v := range vals {
		if !math.IsNaN(v) {
			d := v - mean
			sumSq += d * d
		}
	}
	if n > 1 {
		sd = math.Sqrt(sumSq / float64(n-1))
	}
	return mean, sd
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
