package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"licence-trends/models"
	"licence-trends/utils"
)

// preferredDateColumns are checked against the batch schema in this order.
var preferredDateColumns = []string{"issueddate", "issued_date", "date_issued", "date"}

// timestampLayouts covers the legacy plain dates and the modern ISO-8601 values.
// Layouts without fractional seconds still accept them when parsing.
var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

const (
	yearColumn    = "year"
	expiredColumn = "expireddate"
)

// ReconcileStats describes how canonical dates were obtained for one batch.
type ReconcileStats struct {
	Source        string
	Rows          int
	Candidates    []string
	FromColumn    int
	FromYear      int
	Undated       int
	ParseFailures map[string]int
}

// DateReconciler resolves a single canonical issue date per record.
type DateReconciler struct {
	logger *utils.Logger
}

// NewDateReconciler creates a DateReconciler.
func NewDateReconciler(logger *utils.Logger) *DateReconciler {
	return &DateReconciler{logger: logger}
}

// DateCandidates returns the schema columns that may carry an issue date, in
// priority order. Generic *date* / *issued* columns are only considered when
// none of the preferred names exists in the schema.
func DateCandidates(t *models.RawTable) []string {
	var out []string
	for _, p := range preferredDateColumns {
		if t.HasColumn(p) {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, c := range t.Columns {
		if c == yearColumn {
			continue
		}
		if strings.Contains(c, "issued") || strings.Contains(c, "date") {
			out = append(out, c)
		}
	}
	return out
}

// Reconcile turns a normalized batch into licences carrying canonical dates.
// A value that fails to parse only affects its own record.
func (r *DateReconciler) Reconcile(t *models.RawTable) ([]*models.Licence, ReconcileStats) {
	candidates := DateCandidates(t)
	stats := ReconcileStats{
		Source:        t.Source,
		Rows:          len(t.Rows),
		Candidates:    candidates,
		ParseFailures: make(map[string]int),
	}

	if len(candidates) == 0 {
		r.logger.Warn("[dates] %s: no issue-date column, dates can only come from %q", t.Source, yearColumn)
	} else {
		r.logger.Debug("[dates] %s: candidate date columns %v", t.Source, candidates)
	}

	out := make([]*models.Licence, 0, len(t.Rows))
	for _, row := range t.Rows {
		l := newLicence(t.Source, row)

		for _, col := range candidates {
			raw, ok := row[col]
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			d, ok := ParseTimestamp(raw)
			if !ok {
				stats.ParseFailures[col]++
				r.logger.Debug("[dates] %s: unparseable %s value %q", t.Source, col, raw)
				continue
			}
			l.IssuedDate, l.HasDate = d, true
			break
		}

		year, hasYear := ParseYear(row[yearColumn])
		switch {
		case l.HasDate:
			stats.FromColumn++
		case hasYear:
			l.IssuedDate = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			l.HasDate = true
			stats.FromYear++
		default:
			stats.Undated++
		}

		if l.HasDate {
			l.Year, l.HasYear = l.IssuedDate.Year(), true
			l.Month = int(l.IssuedDate.Month())
			l.MonthStart = models.YearMonthOf(l.IssuedDate).Start()
		}

		if exp, ok := ParseTimestamp(row[expiredColumn]); ok {
			l.ExpiredDate, l.HasExpiry = exp, true
		}

		out = append(out, l)
	}

	r.logger.Info("[dates] %s: %d from date column, %d from year, %d undated",
		t.Source, stats.FromColumn, stats.FromYear, stats.Undated)
	return out, stats
}

// ParseTimestamp parses a date or timestamp in any supported layout and
// returns the calendar day it falls on. Offsets are normalised to UTC before
// the zone is dropped.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		if t.Year() < 1000 || t.Year() > 9999 {
			return time.Time{}, false
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ParseYear accepts "1998" as well as the float rendering "1998.0".
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	y := int(f)
	if y < 1000 || y > 9999 {
		return 0, false
	}
	return y, true
}

func newLicence(source string, row map[string]string) *models.Licence {
	return &models.Licence{
		Source:          source,
		BusinessID:      firstValue(row, "licencersn", "licencenumber"),
		BusinessName:    firstValue(row, "businessname", "businesstradename"),
		BusinessType:    row["businesstype"],
		BusinessSubtype: row["businesssubtype"],
		Status:          row["status"],
		LocalArea:       row["localarea"],
		Employees:       row["numberofemployees"],
		FolderYear:      row["folderyear"],
		Fields:          row,
		CrisisPeriod:    models.PeriodNone,
	}
}

func firstValue(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}
