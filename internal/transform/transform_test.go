package transform_test

import (
	"math"
	"testing"
	"time"

	"github.com/wuchris/glci/internal/model"
	"github.com/wuchris/glci/internal/transform"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// series builds a monthly series from a start year/month and values. Go's
// time.Date normalizes month overflow, so this handles year boundaries.
func series(year, month int, values ...float64) model.Series {
	out := make(model.Series, len(values))
	for i, v := range values {
		out[i] = model.Point{
			Date:  time.Date(year, time.Month(month+i), 1, 0, 0, 0, 0, time.UTC),
			Value: v,
		}
	}
	return out
}

func quarterlySeries(year, quarter int, values ...float64) model.Series {
	out := make(model.Series, len(values))
	for i, v := range values {
		month := time.Month((quarter-1)*3 + 1 + 3*i)
		y := year + int(month-1)/12
		m := time.Month((int(month)-1)%12 + 1)
		out[i] = model.Point{Date: time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), Value: v}
	}
	return out
}

func isNaN(v float64) bool { return math.IsNaN(v) }

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func values(s model.Series) []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// ─── Credit impulse ───────────────────────────────────────────────────────────

func TestCreditImpulse(t *testing.T) {
	s := quarterlySeries(2020, 1, 100, 102, 105, 107, 108)
	out, err := transform.CreditImpulse(s, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flow := values(out["credit_flow"])
	wantFlow := []float64{math.NaN(), 2, 3, 2, 1}
	for i := range wantFlow {
		if isNaN(wantFlow[i]) {
			if !isNaN(flow[i]) {
				t.Errorf("credit_flow[%d] = %v, want NaN", i, flow[i])
			}
			continue
		}
		if !approxEqual(flow[i], wantFlow[i], 1e-9) {
			t.Errorf("credit_flow[%d] = %v, want %v", i, flow[i], wantFlow[i])
		}
	}

	impulse := values(out["credit_impulse"])
	wantImpulse := []float64{math.NaN(), math.NaN(), 1, -1, -1}
	for i := range wantImpulse {
		if isNaN(wantImpulse[i]) {
			if !isNaN(impulse[i]) {
				t.Errorf("credit_impulse[%d] = %v, want NaN", i, impulse[i])
			}
			continue
		}
		if !approxEqual(impulse[i], wantImpulse[i], 1e-9) {
			t.Errorf("credit_impulse[%d] = %v, want %v", i, impulse[i], wantImpulse[i])
		}
	}
}

// ─── Regime detection ─────────────────────────────────────────────────────────

func TestDetectRegime(t *testing.T) {
	zscores := []float64{-1.2, -0.9, 0.0, 1.1, 2.0}
	s := series(2020, 1, zscores...)
	regimes := transform.DetectRegime(s, -1, 1)
	want := []model.Regime{model.RegimeTight, model.RegimeNeutral, model.RegimeNeutral, model.RegimeLoose, model.RegimeLoose}
	for i, w := range want {
		if regimes[i] != w {
			t.Errorf("regime[%d] = %v, want %v", i, regimes[i], w)
		}
	}
}

// ─── Sign flip ────────────────────────────────────────────────────────────────

func TestApplySignFlip(t *testing.T) {
	s := series(2020, 1, 1, 2, math.NaN(), 4)
	flipped := transform.ApplySignFlip(s, -1)
	want := []float64{-1, -2, math.NaN(), -4}
	for i, w := range want {
		if isNaN(w) {
			if !isNaN(flipped[i].Value) {
				t.Errorf("flipped[%d] = %v, want NaN", i, flipped[i].Value)
			}
			continue
		}
		if flipped[i].Value != w {
			t.Errorf("flipped[%d] = %v, want %v", i, flipped[i].Value, w)
		}
	}
	notFlipped := transform.ApplySignFlip(s, 1)
	for i := range s {
		if !isNaN(s[i].Value) && notFlipped[i].Value != s[i].Value {
			t.Errorf("sign +1 should leave series unchanged at %d", i)
		}
	}
}

// ─── Resample ─────────────────────────────────────────────────────────────────

func TestResampleQuarterlyMean(t *testing.T) {
	s := series(2020, 1, 1, 2, 3, 4, 5, 6)
	out, err := transform.Resample(s, model.FreqQuarterly, transform.AggMean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if !approxEqual(out[0].Value, 2, 1e-9) {
		t.Errorf("out[0] = %v, want 2 (mean of 1,2,3)", out[0].Value)
	}
	if !approxEqual(out[1].Value, 5, 1e-9) {
		t.Errorf("out[1] = %v, want 5 (mean of 4,5,6)", out[1].Value)
	}
}

// ─── Rolling gap ──────────────────────────────────────────────────────────────

func TestRollingGap(t *testing.T) {
	s := series(2020, 1, 10, 10, 10, 20)
	out, err := transform.RollingGap(s, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gap := values(out["gap"])
	if !approxEqual(gap[3], 10, 1e-9) {
		t.Errorf("gap[3] = %v, want 10 (20 - trailing mean 10)", gap[3])
	}
}

// ─── Z-score ──────────────────────────────────────────────────────────────────

func TestZScoreExpanding(t *testing.T) {
	s := series(2020, 1, 1, 2, 3, 4, 5)
	out, err := transform.ZScore(s, 0, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isNaN(out[0].Value) {
		t.Errorf("out[0] should be NaN (below min_periods), got %v", out[0].Value)
	}
	for i := 1; i < len(out); i++ {
		if isNaN(out[i].Value) {
			t.Errorf("out[%d] should not be NaN", i)
		}
	}
}

// ─── Frequency detection ──────────────────────────────────────────────────────

func TestDetectFrequency(t *testing.T) {
	// series() steps by month; build a daily series explicitly.
	daily := model.Series{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Value: 2},
		{Date: time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), Value: 3},
	}
	if got := transform.DetectFrequency(daily); got != model.FreqDaily {
		t.Errorf("DetectFrequency(daily) = %v, want %v", got, model.FreqDaily)
	}
	monthly := series(2020, 1, 1, 2, 3, 4)
	if got := transform.DetectFrequency(monthly); got != model.FreqMonthly {
		t.Errorf("DetectFrequency(monthly) = %v, want %v", got, model.FreqMonthly)
	}
}
