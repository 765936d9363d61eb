package services

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"licence-trends/models"
	"licence-trends/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

// WithOutput redirects printing, mainly for tests.
func (s *InsightService) WithOutput(w io.Writer) *InsightService {
	s.out = w
	return s
}

func (s *InsightService) Generate(r *models.Report) *models.InsightReport {
	ir := &models.InsightReport{ByPeriod: make(map[string]int)}
	if r == nil {
		return ir
	}

	ir.RunID = r.RunID
	ir.Sources = r.Sources
	ir.Total = len(r.Licences)
	ir.Impacts = r.Impacts
	ir.Effect = r.Effect

	for _, l := range r.Licences {
		ir.ByPeriod[l.CrisisPeriod]++
	}

	if ts := r.Series; ts != nil {
		ir.Dated, ir.Undated = ts.Dated, ts.Undated
		if n := len(ts.Monthly); n > 0 {
			ir.FirstMonth = ts.Monthly[0].MonthStart
			ir.LastMonth = ts.Monthly[n-1].MonthStart
			for _, m := range ts.Monthly {
				if m.Count > ir.PeakCount {
					ir.PeakCount = m.Count
					ir.PeakMonth = m.MonthStart
				}
			}
		}
	}

	// Final horizon year per type, largest first
	last := make(map[string]models.ForecastRow)
	for _, f := range r.Forecasts {
		if cur, ok := last[f.BusinessType]; !ok || f.Year > cur.Year {
			last[f.BusinessType] = f
		}
	}
	ir.ForecastedTypes = len(last)
	for _, f := range last {
		ir.TopGrowth = append(ir.TopGrowth, f)
	}
	sort.Slice(ir.TopGrowth, func(i, j int) bool {
		if ir.TopGrowth[i].PredictedCount != ir.TopGrowth[j].PredictedCount {
			return ir.TopGrowth[i].PredictedCount > ir.TopGrowth[j].PredictedCount
		}
		return ir.TopGrowth[i].BusinessType < ir.TopGrowth[j].BusinessType
	})
	if len(ir.TopGrowth) > 5 {
		ir.TopGrowth = ir.TopGrowth[:5]
	}

	// Vulnerability is already sorted from least resilient
	ir.MostFragile = r.Vulnerability
	if len(ir.MostFragile) > 5 {
		ir.MostFragile = ir.MostFragile[:5]
	}
	return ir
}

func (s *InsightService) Print(r *models.InsightReport) {
	w := s.out
	sep := strings.Repeat("═", 62)
	thin := strings.Repeat("─", 62)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  BUSINESS LICENCE CRISIS REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.RunID != "" {
		fmt.Fprintf(w, "  Run id            : %s\n", r.RunID)
	}
	for _, src := range r.Sources {
		if src.Missing {
			fmt.Fprintf(w, "  Source %-10s : \033[1;31mmissing\033[0m (%s)\n", truncate(src.Name, 10), src.Path)
			continue
		}
		fmt.Fprintf(w, "  Source %-10s : %d rows, %d columns\n", truncate(src.Name, 10), src.Rows, src.Columns)
	}
	fmt.Fprintf(w, "  Total licences    : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  With issue date   : \033[1m%d\033[0m (undated %d)\n", r.Dated, r.Undated)
	if !r.FirstMonth.IsZero() {
		fmt.Fprintf(w, "  Monthly range     : %s .. %s\n", r.FirstMonth.Format("2006-01"), r.LastMonth.Format("2006-01"))
		fmt.Fprintf(w, "  Busiest month     : %s (%d)\n", r.PeakMonth.Format("2006-01"), r.PeakCount)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Licences by Period\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	printBars(w, r.ByPeriod)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Crisis Impact vs Prior Year (bootstrap 95%% CI)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Impacts) == 0 {
		fmt.Fprintf(w, "  No crisis windows evaluated\n")
	}
	for _, m := range r.Impacts {
		name := truncate(m.Crisis.Name, 22)
		switch {
		case m.Absolute:
			fmt.Fprintf(w, "  %-24s no %d baseline, %d issued [%.0f, %.0f]\n",
				name, m.BaselineYear, m.CrisisCount, m.CILower, m.CIUpper)
		case m.HasInterval():
			fmt.Fprintf(w, "  %-24s %s [%+.1f%%, %+.1f%%]\n",
				name, colourChange(m.MeanChange), m.CILower, m.CIUpper)
		default:
			fmt.Fprintf(w, "  %-24s insufficient data\n", name)
		}
	}
	fmt.Fprintln(w)

	if e := r.Effect; e != nil {
		fmt.Fprintf(w, "\033[1;33m  Monthly Crisis Effect\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		if math.IsNaN(e.Effect.Estimate) {
			fmt.Fprintf(w, "  Not identified (%d crisis months of %d)\n", e.CrisisMonths, e.Months)
		} else {
			verdict := "not significant"
			if e.Significant {
				verdict = "\033[1;31msignificant\033[0m"
			}
			fmt.Fprintf(w, "  Normal month mean : %.1f\n", e.Intercept.Estimate)
			fmt.Fprintf(w, "  Crisis effect     : %+.1f/month [%+.1f, %+.1f] %s\n",
				e.Effect.Estimate, e.Effect.CILower, e.Effect.CIUpper, verdict)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Largest Forecasts (%d types forecast)\033[0m\n", r.ForecastedTypes)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopGrowth) == 0 {
		fmt.Fprintf(w, "  No business type has enough history\n")
	}
	for i, f := range r.TopGrowth {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-32s %d: \033[1;32m%.0f\033[0m [%.0f, %.0f]\n",
			i+1, truncate(f.BusinessType, 30), f.Year, f.PredictedCount, f.CILower, f.CIUpper)
	}
	fmt.Fprintln(w)

	if len(r.MostFragile) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Least Resilient Types in Crises\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, v := range r.MostFragile {
			fmt.Fprintf(w, "  %-36s %5.1f%% of %d survived\n",
				truncate(v.BusinessType, 34), v.SurvivalRate*100, v.Count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func (s *InsightService) PrintDiagnostics(d *Diagnostics) {
	w := s.out
	sep := strings.Repeat("═", 62)
	thin := strings.Repeat("─", 62)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  DATASET DIAGNOSTICS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "  Rows: \033[1m%d\033[0m  Columns: \033[1m%d\033[0m  Undated: \033[1m%d\033[0m\n\n",
		d.Rows, len(d.Columns), d.UndatedTotals)

	fmt.Fprintf(w, "\033[1;33m  Missing Values\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, c := range d.Columns {
		if c.Null == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-30s %8d (%5.1f%%)\n", truncate(c.Name, 28), c.Null, c.NullRate*100)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Date Columns\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(d.DateColumns) == 0 {
		fmt.Fprintf(w, "  No date-like columns\n")
	}
	for _, c := range d.DateColumns {
		fmt.Fprintf(w, "  %-20s %d populated, %d parsed", truncate(c.Name, 18), c.Populated, c.Parsed)
		if c.Parsed > 0 {
			fmt.Fprintf(w, ", %s .. %s", c.Min.Format("2006-01-02"), c.Max.Format("2006-01-02"))
		}
		fmt.Fprintln(w)
		if len(c.Samples) > 0 {
			fmt.Fprintf(w, "  %-20s e.g. %s\n", "", strings.Join(c.Samples, ", "))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Year Coverage\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if d.MinYear == 0 {
		fmt.Fprintf(w, "  No years observed\n")
	} else {
		fmt.Fprintf(w, "  %d .. %d\n", d.MinYear, d.MaxYear)
		if len(d.MissingYears) > 0 {
			fmt.Fprintf(w, "  \033[1;31mMissing years: %v\033[0m\n", d.MissingYears)
		} else {
			fmt.Fprintf(w, "  \033[1;32mNo gaps\033[0m\n")
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Status\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, st := range d.StatusCounts {
		fmt.Fprintf(w, "  %-30s %d\n", truncate(st.BusinessType, 28), st.Count)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top Business Types\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for i, t := range d.TopTypes {
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-34s %d\n", i+1, truncate(t.BusinessType, 32), t.Count)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// printBars draws a proportional bar per key, largest first.
func printBars(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n")
		return
	}
	type kc struct {
		key   string
		count int
	}
	var rows []kc
	peak := 0
	for k, c := range counts {
		rows = append(rows, kc{k, c})
		if c > peak {
			peak = c
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, r := range rows {
		width := 0
		if peak > 0 {
			width = int(math.Round(float64(r.count) / float64(peak) * 30))
		}
		fmt.Fprintf(w, "  %-24s %s (%d)\n", truncate(r.key, 22), strings.Repeat("█", width), r.count)
	}
}

func colourChange(pct float64) string {
	code := "1;32"
	if pct < 0 {
		code = "1;31"
	}
	return fmt.Sprintf("\033[%sm%+.1f%%\033[0m", code, pct)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
