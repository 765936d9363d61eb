package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"licence-trends/models"
)

const dateLayout = "2006-01-02"

// derivedColumns are appended to the merged table by the reconciler.
var derivedColumns = []string{"issued_date", "year", "month", "month_start", "crisis_period", "source"}

// LicenceColumns returns the export header for reconciled licences: the
// source columns in first-seen order followed by the derived columns.
func LicenceColumns(sourceColumns []string) []string {
	derived := make(map[string]struct{}, len(derivedColumns))
	for _, c := range derivedColumns {
		derived[c] = struct{}{}
	}
	out := make([]string, 0, len(sourceColumns)+len(derivedColumns))
	for _, c := range sourceColumns {
		if _, ok := derived[c]; !ok {
			out = append(out, c)
		}
	}
	return append(out, derivedColumns...)
}

func licenceRecord(l *models.Licence, columns []string) []string {
	rec := make([]string, len(columns))
	for i, c := range columns {
		switch c {
		case "issued_date":
			if l.HasDate {
				rec[i] = l.IssuedDate.Format(dateLayout)
			}
		case "year":
			if l.HasYear {
				rec[i] = strconv.Itoa(l.Year)
			}
		case "month":
			if l.HasDate {
				rec[i] = strconv.Itoa(l.Month)
			}
		case "month_start":
			if l.HasDate {
				rec[i] = l.MonthStart.Format(dateLayout)
			}
		case "crisis_period":
			rec[i] = l.CrisisPeriod
		case "source":
			rec[i] = l.Source
		default:
			rec[i] = l.Fields[c]
		}
	}
	return rec
}

// formatFloat renders NaN as an empty (missing) cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// nullFloat maps NaN to SQL NULL.
func nullFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func nullDate(t time.Time, ok bool) any {
	if !ok {
		return nil
	}
	return t.Format(dateLayout)
}

func nullInt(v int, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func topTypesString(types []models.TypeCount) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s:%d", t.BusinessType, t.Count)
	}
	return strings.Join(parts, ";")
}

func crossTabRows(ct *models.CrossTab) (header []string, rows [][]string) {
	header = append([]string{"year"}, ct.Columns...)
	for _, y := range ct.Years {
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.Itoa(y))
		for _, c := range ct.Columns {
			rec = append(rec, strconv.Itoa(ct.Cell(y, c)))
		}
		rows = append(rows, rec)
	}
	return header, rows
}
