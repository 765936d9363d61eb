package services

import (
	"sort"
	"time"

	"licence-trends/models"
	"licence-trends/utils"
)

// Aggregator rolls reconciled licences into monthly and yearly series.
type Aggregator struct {
	logger   *utils.Logger
	topTypes int
}

// NewAggregator creates an Aggregator that keeps the topTypes most frequent
// business types in the type-by-year table.
func NewAggregator(logger *utils.Logger, topTypes int) *Aggregator {
	return &Aggregator{logger: logger, topTypes: topTypes}
}

// Aggregate builds the gap-filled monthly series, the observed-years yearly
// series and the status/type cross-tabulations. Undated licences are counted
// but excluded from every series.
func (a *Aggregator) Aggregate(licences []*models.Licence) *models.TimeSeries {
	ts := &models.TimeSeries{}

	dated := make([]*models.Licence, 0, len(licences))
	for _, l := range licences {
		if l.HasDate {
			dated = append(dated, l)
		}
	}
	ts.Dated = len(dated)
	ts.Undated = len(licences) - len(dated)

	if len(dated) == 0 {
		a.logger.Warn("[aggregate] no dated licences; series are empty")
		return ts
	}

	ts.Monthly = MonthlyCounts(dated)
	ts.Yearly = YearlyCounts(dated)
	ts.StatusByYear = crossTab(dated, "status", func(l *models.Licence) string { return l.Status }, nil)

	top := TopBusinessTypes(dated, a.topTypes)
	keep := make(map[string]struct{}, len(top))
	for _, tc := range top {
		keep[tc.BusinessType] = struct{}{}
	}
	ts.TypeByYear = crossTab(dated, "businesstype", func(l *models.Licence) string { return l.BusinessType }, keep)

	zeros := 0
	for _, m := range ts.Monthly {
		if m.Count == 0 {
			zeros++
		}
	}
	a.logger.Info("[aggregate] %d months (%d with zero licences), %d years, %d undated licences excluded",
		len(ts.Monthly), zeros, len(ts.Yearly), ts.Undated)
	return ts
}

// MonthlyCounts returns one row per calendar month between the first and last
// observed month, zero-filling months without licences.
func MonthlyCounts(licences []*models.Licence) []models.MonthlyCount {
	counts := make(map[int]int)
	first, last := 0, 0
	seen := false
	for _, l := range licences {
		if !l.HasDate {
			continue
		}
		idx := models.YearMonthOf(l.IssuedDate).Index()
		counts[idx]++
		if !seen || idx < first {
			first = idx
		}
		if !seen || idx > last {
			last = idx
		}
		seen = true
	}
	if !seen {
		return nil
	}

	out := make([]models.MonthlyCount, 0, last-first+1)
	for idx := first; idx <= last; idx++ {
		ym := models.YearMonth{Year: idx / 12, Month: time.Month(idx%12 + 1)}
		out = append(out, models.MonthlyCount{MonthStart: ym.Start(), Count: counts[idx]})
	}
	return out
}

// YearlyCounts returns the observed years in ascending order.
func YearlyCounts(licences []*models.Licence) []models.YearlyCount {
	counts := make(map[int]int)
	for _, l := range licences {
		if l.HasYear {
			counts[l.Year]++
		}
	}
	out := make([]models.YearlyCount, 0, len(counts))
	for y, c := range counts {
		out = append(out, models.YearlyCount{Year: y, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// TopBusinessTypes ranks business types by volume, breaking ties by name.
// Licences without a business type are ignored.
func TopBusinessTypes(licences []*models.Licence, n int) []models.TypeCount {
	counts := make(map[string]int)
	for _, l := range licences {
		if l.BusinessType != "" {
			counts[l.BusinessType]++
		}
	}
	out := make([]models.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, models.TypeCount{BusinessType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].BusinessType < out[j].BusinessType
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// crossTab counts licences by year and key. When keep is non-nil only those
// keys are tabulated. Licences with an empty key are skipped.
func crossTab(licences []*models.Licence, dim string, key func(*models.Licence) string, keep map[string]struct{}) *models.CrossTab {
	ct := &models.CrossTab{Dimension: dim, Counts: make(map[int]map[string]int)}
	cols := make(map[string]struct{})

	for _, l := range licences {
		if !l.HasYear {
			continue
		}
		k := key(l)
		if k == "" {
			continue
		}
		if keep != nil {
			if _, ok := keep[k]; !ok {
				continue
			}
		}
		row, ok := ct.Counts[l.Year]
		if !ok {
			row = make(map[string]int)
			ct.Counts[l.Year] = row
		}
		row[k]++
		cols[k] = struct{}{}
	}

	for y := range ct.Counts {
		ct.Years = append(ct.Years, y)
	}
	sort.Ints(ct.Years)
	for c := range cols {
		ct.Columns = append(ct.Columns, c)
	}
	sort.Strings(ct.Columns)
	return ct
}
