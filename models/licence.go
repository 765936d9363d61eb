package models

import (
	"fmt"
	"time"
)

// Crisis labels used for records outside every registered window.
const (
	PeriodNormal = "Normal"
	PeriodNone   = "None"
)

// RawTable holds one source extract exactly as read from disk or the API.
// A missing value is represented by an absent key in the row map.
type RawTable struct {
	Source  string
	Columns []string
	Rows    []map[string]string
}

// HasColumn reports whether the table schema contains the named column.
func (t *RawTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Licence is one reconciled row of the merged licence table.
type Licence struct {
	Source          string
	BusinessID      string
	BusinessName    string
	BusinessType    string
	BusinessSubtype string
	Status          string
	LocalArea       string
	Employees       string
	FolderYear      string

	// Fields keeps every normalized source column for the merged export.
	Fields map[string]string

	// IssuedDate is the canonical issue date at day precision, zone-free.
	// HasDate is false when no candidate column or year could produce one.
	IssuedDate time.Time
	HasDate    bool

	Year       int
	HasYear    bool
	Month      int
	MonthStart time.Time

	ExpiredDate time.Time
	HasExpiry   bool

	CrisisPeriod string
}

// YearMonth is a calendar month used for crisis window bounds.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("year-month %q: %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// YearMonthOf returns the calendar month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Index gives a monotonically increasing month number for comparisons.
func (ym YearMonth) Index() int {
	return ym.Year*12 + int(ym.Month) - 1
}

// Start returns midnight UTC on the first day of the month.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// UnmarshalYAML reads "YYYY-MM".
func (ym *YearMonth) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// CrisisPeriod is a named macroeconomic shock window, inclusive at both ends.
type CrisisPeriod struct {
	Name  string    `yaml:"name"`
	Start YearMonth `yaml:"start"`
	End   YearMonth `yaml:"end"`
}

// Contains reports whether the month falls inside the window.
func (p CrisisPeriod) Contains(ym YearMonth) bool {
	i := ym.Index()
	return i >= p.Start.Index() && i <= p.End.Index()
}

// BaselineYear is the calendar year immediately preceding the window start.
func (p CrisisPeriod) BaselineYear() int {
	return p.Start.Year - 1
}
