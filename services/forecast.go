package services

import (
	"math"
	"sort"

	"licence-trends/models"
	"licence-trends/utils"
)

// ForecastOptions controls the per-business-type trend forecast.
type ForecastOptions struct {
	StartYear int
	Horizon   int
	MinYears  int
	Resamples int
	Seed      int64
}

// ForecastEstimator fits a linear trend of yearly counts per business type.
type ForecastEstimator struct {
	logger *utils.Logger
	opts   ForecastOptions
}

// NewForecastEstimator creates a ForecastEstimator.
func NewForecastEstimator(logger *utils.Logger, opts ForecastOptions) *ForecastEstimator {
	return &ForecastEstimator{logger: logger, opts: opts}
}

// Forecast returns Horizon rows per business type with at least MinYears
// observed years, ordered by business type then year. Every value is clipped
// at zero.
func (f *ForecastEstimator) Forecast(licences []*models.Licence) []models.ForecastRow {
	perType := make(map[string]map[int]int)
	for _, l := range licences {
		if !l.HasYear || l.BusinessType == "" {
			continue
		}
		years, ok := perType[l.BusinessType]
		if !ok {
			years = make(map[int]int)
			perType[l.BusinessType] = years
		}
		years[l.Year]++
	}

	types := make([]string, 0, len(perType))
	for t := range perType {
		types = append(types, t)
	}
	sort.Strings(types)

	horizon := make([]float64, f.opts.Horizon)
	for i := range horizon {
		horizon[i] = float64(f.opts.StartYear + i)
	}

	var out []models.ForecastRow
	skipped := 0
	for _, t := range types {
		years := perType[t]
		if len(years) < f.opts.MinYears {
			skipped++
			continue
		}

		x := make([]float64, 0, len(years))
		for y := range years {
			x = append(x, float64(y))
		}
		sort.Float64s(x)
		y := make([]float64, len(x))
		for i, yr := range x {
			y[i] = float64(years[int(yr)])
		}

		alpha, beta := fitLine(x, y)
		rng := newRand(f.opts.Seed)

		// preds[h] holds the resampled predictions for horizon year h.
		preds := make([][]float64, len(horizon))
		bx := make([]float64, len(x))
		by := make([]float64, len(y))
		for b := 0; b < f.opts.Resamples; b++ {
			for i := range bx {
				j := rng.IntN(len(x))
				bx[i], by[i] = x[j], y[j]
			}
			ba, bb := fitLine(bx, by)
			for h, hy := range horizon {
				preds[h] = append(preds[h], ba+bb*hy)
			}
		}

		for h, hy := range horizon {
			row := models.ForecastRow{
				BusinessType:   t,
				Year:           int(hy),
				PredictedCount: clipZero(alpha + beta*hy),
				CILower:        clipZero(percentile(preds[h], 2.5)),
				CIUpper:        clipZero(percentile(preds[h], 97.5)),
			}
			out = append(out, row)
		}
	}

	f.logger.Info("[forecast] %d business types forecast, %d skipped with fewer than %d years",
		len(types)-skipped, skipped, f.opts.MinYears)
	return out
}

func clipZero(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
