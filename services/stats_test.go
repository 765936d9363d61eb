package services

import (
	"math"
	"testing"
)

func TestPercentileLinear(t *testing.T) {
	xs := []float64{15, 20, 35, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 15},
		{100, 50},
		{50, 35},
		{40, 29},
		{2.5, 15.5},
		{97.5, 49},
	}
	for _, tt := range tests {
		if got := percentile(xs, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v; want %v", tt.p, got, tt.want)
		}
	}
	if !math.IsNaN(percentile(nil, 50)) {
		t.Errorf("percentile of empty input should be NaN")
	}
}

func TestPercentileDoesNotSortInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	percentile(xs, 50)
	if xs[0] != 3 || xs[1] != 1 || xs[2] != 2 {
		t.Errorf("input reordered: %v", xs)
	}
}

func TestIntervalContainsMean(t *testing.T) {
	// Heavily skewed draws put the mean outside the raw 95% band.
	xs := make([]float64, 100)
	xs[99] = 10000
	mean, lo, hi := interval(xs)
	if mean != 100 || lo != 0 || hi != 100 {
		t.Errorf("interval = %v [%v, %v]; want 100 [0, 100]", mean, lo, hi)
	}

	// Otherwise the empirical percentiles are reported unchanged.
	mean, lo, hi = interval([]float64{4, 1, 3, 2, 5})
	if mean != 3 || math.Abs(lo-1.1) > 1e-9 || math.Abs(hi-4.9) > 1e-9 {
		t.Errorf("interval = %v [%v, %v]; want 3 [1.1, 4.9]", mean, lo, hi)
	}

	mean, lo, hi = interval(nil)
	if !math.IsNaN(mean) || !math.IsNaN(lo) || !math.IsNaN(hi) {
		t.Errorf("empty interval = %v [%v, %v]; want NaN", mean, lo, hi)
	}
}

func TestFitLine(t *testing.T) {
	alpha, beta := fitLine([]float64{2000, 2001, 2002, 2003}, []float64{10, 12, 14, 16})
	if math.Abs(beta-2) > 1e-9 || math.Abs(alpha+3990) > 1e-6 {
		t.Errorf("fitLine = %v + %v*x; want -3990 + 2x", alpha, beta)
	}

	alpha, beta = fitLine([]float64{2005, 2005, 2005}, []float64{3, 6, 9})
	if alpha != 6 || beta != 0 {
		t.Errorf("degenerate fitLine = %v + %v*x; want flat line at 6", alpha, beta)
	}
}

func TestPoissonDeterministic(t *testing.T) {
	a, b := newRand(7), newRand(7)
	for i := 0; i < 20; i++ {
		if x, y := poisson(a, 12), poisson(b, 12); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
	if poisson(a, 0) != 0 {
		t.Errorf("poisson with zero mean should be 0")
	}
}
