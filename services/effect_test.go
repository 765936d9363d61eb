package services

import (
	"math"
	"testing"
	"time"

	"licence-trends/models"
)

// series builds a contiguous monthly series from start, taking each count from fn.
func series(start time.Time, months int, fn func(t time.Time, i int) int) []models.MonthlyCount {
	out := make([]models.MonthlyCount, months)
	for i := range out {
		m := start.AddDate(0, i, 0)
		out[i] = models.MonthlyCount{MonthStart: m, Count: fn(m, i)}
	}
	return out
}

func testEffectModel() *EffectModel {
	return NewEffectModel(newTestLogger(), NewCrisisClassifier(DefaultCrisisRegistry()), 200, 5)
}

func TestEffectSignificantDrop(t *testing.T) {
	covid := NewCrisisClassifier(DefaultCrisisRegistry())
	monthly := series(day(2018, time.January, 1), 48, func(m time.Time, _ int) int {
		if covid.InCrisis(m) {
			return 4
		}
		return 10
	})

	res := testEffectModel().Fit(monthly)
	if res == nil {
		t.Fatal("Fit returned nil")
	}
	if res.Months != 48 || res.CrisisMonths != 22 {
		t.Errorf("months = %d, crisis months = %d; want 48, 22", res.Months, res.CrisisMonths)
	}
	if math.Abs(res.Intercept.Estimate-10) > 1e-9 || math.Abs(res.Effect.Estimate+6) > 1e-9 {
		t.Errorf("estimates = %v, %v; want 10, -6", res.Intercept.Estimate, res.Effect.Estimate)
	}
	if !res.Significant {
		t.Errorf("expected a significant effect: %+v", res.Effect)
	}
	if res.Effect.CILower > res.Effect.Mean || res.Effect.Mean > res.Effect.CIUpper {
		t.Errorf("effect interval [%v, %v] does not contain %v", res.Effect.CILower, res.Effect.CIUpper, res.Effect.Mean)
	}
}

func TestEffectNotSignificant(t *testing.T) {
	monthly := series(day(2018, time.January, 1), 48, func(_ time.Time, i int) int {
		if i%2 == 0 {
			return 5
		}
		return 15
	})
	res := testEffectModel().Fit(monthly)
	if res.Significant {
		t.Errorf("alternating series should not show a crisis effect: %+v", res.Effect)
	}
	if res.Effect.CILower > 0 || res.Effect.CIUpper < 0 {
		t.Errorf("interval [%v, %v] should straddle zero", res.Effect.CILower, res.Effect.CIUpper)
	}
}

func TestEffectSingleGroup(t *testing.T) {
	monthly := series(day(2017, time.January, 1), 12, func(time.Time, int) int { return 7 })
	res := testEffectModel().Fit(monthly)
	if res == nil {
		t.Fatal("Fit returned nil")
	}
	if res.CrisisMonths != 0 || res.Significant {
		t.Errorf("got %+v", res)
	}
	if !math.IsNaN(res.Effect.Estimate) || !math.IsNaN(res.Intercept.CILower) {
		t.Errorf("coefficients should be undefined: %+v / %+v", res.Intercept, res.Effect)
	}
}

func TestEffectEmpty(t *testing.T) {
	if res := testEffectModel().Fit(nil); res != nil {
		t.Errorf("Fit(nil) = %+v; want nil", res)
	}
}
