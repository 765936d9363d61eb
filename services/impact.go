package services

import (
	"math"
	"math/rand/v2"

	"licence-trends/models"
	"licence-trends/utils"
)

// ImpactEstimator compares each crisis window against the preceding year.
type ImpactEstimator struct {
	logger    *utils.Logger
	resamples int
	seed      int64
	topTypes  int

	// Skipped counts bootstrap draws discarded because the resampled
	// baseline was zero.
	Skipped int
}

// NewImpactEstimator creates an estimator drawing resamples Poisson pairs per crisis.
func NewImpactEstimator(logger *utils.Logger, resamples int, seed int64) *ImpactEstimator {
	return &ImpactEstimator{logger: logger, resamples: resamples, seed: seed, topTypes: 5}
}

// Estimate computes one CrisisImpact per registry entry, in registry order.
// Licences must already carry their crisis classification.
func (e *ImpactEstimator) Estimate(licences []*models.Licence, registry []models.CrisisPeriod) []models.CrisisImpact {
	yearly := make(map[int]int)
	byCrisis := make(map[string][]*models.Licence)
	for _, l := range licences {
		if !l.HasDate {
			continue
		}
		if l.HasYear {
			yearly[l.Year]++
		}
		byCrisis[l.CrisisPeriod] = append(byCrisis[l.CrisisPeriod], l)
	}

	out := make([]models.CrisisImpact, 0, len(registry))
	for _, c := range registry {
		inWindow := byCrisis[c.Name]
		// Each window draws from its own stream so its interval does not
		// depend on the other registry entries.
		impact := e.bootstrap(newRand(e.seed), c, yearly[c.BaselineYear()], len(inWindow))
		impact.TopTypes = TopBusinessTypes(inWindow, e.topTypes)
		e.logImpact(impact)
		out = append(out, impact)
	}
	return out
}

func (e *ImpactEstimator) bootstrap(rng *rand.Rand, c models.CrisisPeriod, baseline, crisis int) models.CrisisImpact {
	nan := math.NaN()
	res := models.CrisisImpact{
		Crisis:        c,
		BaselineYear:  c.BaselineYear(),
		BaselineCount: baseline,
		CrisisCount:   crisis,
		PointChange:   nan,
		MeanChange:    nan,
		CILower:       nan,
		CIUpper:       nan,
		AbsMean:       nan,
	}
	if baseline > 0 && crisis > 0 {
		res.PointChange = float64(crisis-baseline) / float64(baseline) * 100
	}

	switch {
	case baseline == 0 && crisis == 0:
		return res

	case baseline == 0:
		draws := make([]float64, e.resamples)
		for i := range draws {
			draws[i] = poisson(rng, float64(crisis))
		}
		res.Absolute = true
		res.AbsMean, res.CILower, res.CIUpper = interval(draws)
		return res

	case crisis == 0:
		return res
	}

	changes := make([]float64, 0, e.resamples)
	for i := 0; i < e.resamples; i++ {
		b := poisson(rng, float64(baseline))
		cc := poisson(rng, float64(crisis))
		if b == 0 {
			e.Skipped++
			continue
		}
		changes = append(changes, (cc-b)/b*100)
	}
	if len(changes) == 0 {
		return res
	}
	res.MeanChange, res.CILower, res.CIUpper = interval(changes)
	return res
}

func (e *ImpactEstimator) logImpact(r models.CrisisImpact) {
	name := r.Crisis.Name
	switch {
	case r.Absolute:
		e.logger.Info("[impact] %s: no baseline in %d; crisis count %d, bootstrap mean %.1f [%.1f, %.1f]",
			name, r.BaselineYear, r.CrisisCount, r.AbsMean, r.CILower, r.CIUpper)
	case r.HasInterval():
		e.logger.Info("[impact] %s: baseline %d=%d, crisis=%d, mean change %+.1f%% [%+.1f%%, %+.1f%%]",
			name, r.BaselineYear, r.BaselineCount, r.CrisisCount, r.MeanChange, r.CILower, r.CIUpper)
	default:
		e.logger.Warn("[impact] %s: insufficient data (baseline %d=%d, crisis=%d)",
			name, r.BaselineYear, r.BaselineCount, r.CrisisCount)
	}
}
