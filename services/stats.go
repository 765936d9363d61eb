package services

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// newRand returns a deterministic generator for bootstrap draws.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// poisson draws one Poisson variate with the given mean.
func poisson(rng *rand.Rand, lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
}

// percentile computes the p-th percentile (0..100) with linear interpolation
// between closest ranks, matching numpy's default method. xs need not be
// sorted and is not modified.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// interval returns the mean and the 95% percentile interval of xs, widened
// when needed so the mean always lies inside it.
func interval(xs []float64) (mean, lower, upper float64) {
	if len(xs) == 0 {
		nan := math.NaN()
		return nan, nan, nan
	}
	mean = stat.Mean(xs, nil)
	lower = math.Min(percentile(xs, 2.5), mean)
	upper = math.Max(percentile(xs, 97.5), mean)
	return mean, lower, upper
}

// fitLine fits y = alpha + beta*x by ordinary least squares. When x has no
// spread the slope is undefined and a flat line through mean(y) is returned.
func fitLine(x, y []float64) (alpha, beta float64) {
	if stat.Variance(x, nil) == 0 || len(x) < 2 {
		return stat.Mean(y, nil), 0
	}
	return stat.LinearRegression(x, y, nil, false)
}
