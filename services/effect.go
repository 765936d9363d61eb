package services

import (
	"math"

	"licence-trends/models"
	"licence-trends/utils"
)

// EffectModel regresses monthly licence counts on a crisis indicator:
// count = intercept + effect*is_crisis. With a single binary regressor the
// OLS intercept is the mean of normal months and the effect is the
// difference between crisis and normal means.
type EffectModel struct {
	logger     *utils.Logger
	classifier *CrisisClassifier
	resamples  int
	seed       int64

	Skipped int
}

// NewEffectModel creates an EffectModel.
func NewEffectModel(logger *utils.Logger, classifier *CrisisClassifier, resamples int, seed int64) *EffectModel {
	return &EffectModel{logger: logger, classifier: classifier, resamples: resamples, seed: seed}
}

// Fit estimates the model on the monthly series and bootstraps the
// coefficients by resampling months. It returns nil for an empty series.
func (m *EffectModel) Fit(monthly []models.MonthlyCount) *models.CrisisEffect {
	if len(monthly) == 0 {
		m.logger.Warn("[effect] no monthly data, skipping crisis effect model")
		return nil
	}

	x := make([]float64, len(monthly))
	y := make([]float64, len(monthly))
	crisisMonths := 0
	for i, mc := range monthly {
		if m.classifier.InCrisis(mc.MonthStart) {
			x[i] = 1
			crisisMonths++
		}
		y[i] = float64(mc.Count)
	}

	res := &models.CrisisEffect{Months: len(monthly), CrisisMonths: crisisMonths}
	a, b, ok := fitIndicator(x, y)
	if !ok {
		m.logger.Warn("[effect] %d of %d months are crisis months, effect is undefined",
			crisisMonths, len(monthly))
		nan := math.NaN()
		res.Intercept = models.Coefficient{Estimate: nan, Mean: nan, CILower: nan, CIUpper: nan}
		res.Effect = res.Intercept
		return res
	}

	rng := newRand(m.seed)
	var as, bs []float64
	bx := make([]float64, len(x))
	by := make([]float64, len(y))
	for r := 0; r < m.resamples; r++ {
		for i := range bx {
			j := rng.IntN(len(x))
			bx[i], by[i] = x[j], y[j]
		}
		ra, rb, ok := fitIndicator(bx, by)
		if !ok {
			m.Skipped++
			continue
		}
		as = append(as, ra)
		bs = append(bs, rb)
	}

	res.Resamples = len(as)
	res.Intercept = coefficient(a, as)
	res.Effect = coefficient(b, bs)
	res.Significant = res.Resamples > 0 && (res.Effect.CILower > 0 || res.Effect.CIUpper < 0)

	m.logger.Info("[effect] intercept %.2f [%.2f, %.2f], crisis effect %.2f [%.2f, %.2f], significant=%t",
		res.Intercept.Mean, res.Intercept.CILower, res.Intercept.CIUpper,
		res.Effect.Mean, res.Effect.CILower, res.Effect.CIUpper, res.Significant)
	return res
}

// fitIndicator solves the OLS fit for a 0/1 regressor. ok is false when
// either group is empty and the effect is not identified.
func fitIndicator(x, y []float64) (intercept, effect float64, ok bool) {
	var sum0, sum1 float64
	var n0, n1 int
	for i := range x {
		if x[i] == 1 {
			sum1 += y[i]
			n1++
		} else {
			sum0 += y[i]
			n0++
		}
	}
	if n0 == 0 || n1 == 0 {
		return 0, 0, false
	}
	intercept = sum0 / float64(n0)
	return intercept, sum1/float64(n1) - intercept, true
}

func coefficient(estimate float64, draws []float64) models.Coefficient {
	mean, lo, hi := interval(draws)
	return models.Coefficient{Estimate: estimate, Mean: mean, CILower: lo, CIUpper: hi}
}
