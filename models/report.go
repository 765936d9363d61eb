package models

import "time"

// MonthlyCount is one step of the gap-filled monthly series.
type MonthlyCount struct {
	MonthStart time.Time
	Count      int
}

// YearlyCount is one observed year of the yearly series.
type YearlyCount struct {
	Year  int
	Count int
}

// CrossTab counts records by year and a categorical column.
// Unobserved (year, column) combinations read as zero through Cell.
type CrossTab struct {
	Dimension string
	Years     []int
	Columns   []string
	Counts    map[int]map[string]int
}

// Cell returns the count for one year/column pair.
func (c *CrossTab) Cell(year int, column string) int {
	if c == nil {
		return 0
	}
	return c.Counts[year][column]
}

// TimeSeries bundles the aggregator outputs.
type TimeSeries struct {
	Monthly      []MonthlyCount
	Yearly       []YearlyCount
	StatusByYear *CrossTab
	TypeByYear   *CrossTab
	Dated        int
	Undated      int
}

// TypeCount pairs a business type with a record count.
type TypeCount struct {
	BusinessType string
	Count        int
}

// CrisisImpact is the baseline-vs-crisis comparison for one window.
// Undefined numeric results are NaN.
type CrisisImpact struct {
	Crisis        CrisisPeriod
	BaselineYear  int
	BaselineCount int
	CrisisCount   int

	// PointChange is (crisis-baseline)/baseline*100 on the observed counts.
	PointChange float64
	MeanChange  float64
	CILower     float64
	CIUpper     float64

	// Absolute is set when the baseline is zero and the interval describes
	// the bootstrapped crisis count instead of a percentage.
	Absolute bool
	AbsMean  float64

	TopTypes []TypeCount
}

// HasInterval reports whether a finite interval was produced.
func (c CrisisImpact) HasInterval() bool {
	return !isNaN(c.CILower) && !isNaN(c.CIUpper)
}

// ForecastRow is one business type's prediction for one horizon year.
type ForecastRow struct {
	BusinessType   string
	Year           int
	PredictedCount float64
	CILower        float64
	CIUpper        float64
}

// Coefficient is a bootstrapped regression coefficient.
type Coefficient struct {
	Estimate float64
	Mean     float64
	CILower  float64
	CIUpper  float64
}

// CrisisEffect is the monthly count ~ crisis indicator model.
type CrisisEffect struct {
	Months       int
	CrisisMonths int
	Resamples    int
	Intercept    Coefficient
	Effect       Coefficient
	Significant  bool
}

// VulnerabilityRow summarises crisis-era survival for one business type.
type VulnerabilityRow struct {
	BusinessType string
	Count        int
	Survived     int
	SurvivalRate float64
}

// SourceSummary records what was loaded from one extract.
type SourceSummary struct {
	Name    string
	Path    string
	Rows    int
	Columns int
	Missing bool
}

// Report holds every artifact produced by one analysis run.
type Report struct {
	RunID         string
	GeneratedAt   time.Time
	Sources       []SourceSummary
	Columns       []string
	Licences      []*Licence
	Series        *TimeSeries
	Impacts       []CrisisImpact
	Forecasts     []ForecastRow
	Effect        *CrisisEffect
	Vulnerability []VulnerabilityRow
}

func isNaN(f float64) bool { return f != f }

// InsightReport is the console summary of a Report.
type InsightReport struct {
	RunID      string
	Sources    []SourceSummary
	Total      int
	Dated      int
	Undated    int
	FirstMonth time.Time
	LastMonth  time.Time
	PeakMonth  time.Time
	PeakCount  int
	ByPeriod   map[string]int

	Impacts []CrisisImpact
	Effect  *CrisisEffect

	// ForecastedTypes is the number of business types with a forecast;
	// TopGrowth holds their final-horizon rows, largest prediction first.
	ForecastedTypes int
	TopGrowth       []ForecastRow
	MostFragile     []VulnerabilityRow
}
