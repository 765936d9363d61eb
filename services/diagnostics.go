package services

import (
	"sort"
	"strings"
	"time"

	"licence-trends/models"
)

// ColumnProfile reports how populated a column is.
type ColumnProfile struct {
	Name     string
	NonNull  int
	Null     int
	NullRate float64
}

// DateColumnProfile reports how well a date-like column parses.
type DateColumnProfile struct {
	Name      string
	Populated int
	Parsed    int
	Min, Max  time.Time
	Samples   []string
}

// Diagnostics is a read-only summary of the merged dataset.
type Diagnostics struct {
	Rows          int
	Columns       []ColumnProfile
	DateColumns   []DateColumnProfile
	MinYear       int
	MaxYear       int
	MissingYears  []int
	StatusCounts  []models.TypeCount
	TopTypes      []models.TypeCount
	UndatedTotals int
}

// Diagnose profiles the merged normalized table and the reconciled licences.
func Diagnose(table *models.RawTable, licences []*models.Licence, topTypes int) *Diagnostics {
	d := &Diagnostics{Rows: len(table.Rows)}

	for _, col := range table.Columns {
		p := ColumnProfile{Name: col}
		for _, row := range table.Rows {
			if _, ok := row[col]; ok {
				p.NonNull++
			}
		}
		p.Null = len(table.Rows) - p.NonNull
		if len(table.Rows) > 0 {
			p.NullRate = float64(p.Null) / float64(len(table.Rows))
		}
		d.Columns = append(d.Columns, p)

		if strings.Contains(col, "date") || strings.Contains(col, "year") {
			d.DateColumns = append(d.DateColumns, profileDateColumn(table, col))
		}
	}

	years := make(map[int]struct{})
	status := make(map[string]int)
	for _, l := range licences {
		if !l.HasDate {
			d.UndatedTotals++
		}
		if l.HasYear {
			years[l.Year] = struct{}{}
		}
		if l.Status != "" {
			status[l.Status]++
		}
	}
	d.MinYear, d.MaxYear, d.MissingYears = YearGaps(years)

	for s, c := range status {
		d.StatusCounts = append(d.StatusCounts, models.TypeCount{BusinessType: s, Count: c})
	}
	sort.Slice(d.StatusCounts, func(i, j int) bool {
		if d.StatusCounts[i].Count != d.StatusCounts[j].Count {
			return d.StatusCounts[i].Count > d.StatusCounts[j].Count
		}
		return d.StatusCounts[i].BusinessType < d.StatusCounts[j].BusinessType
	})
	d.TopTypes = TopBusinessTypes(licences, topTypes)
	return d
}

// YearGaps returns the observed range and the years missing inside it.
func YearGaps(years map[int]struct{}) (first, last int, missing []int) {
	if len(years) == 0 {
		return 0, 0, nil
	}
	seen := false
	for y := range years {
		if !seen || y < first {
			first = y
		}
		if !seen || y > last {
			last = y
		}
		seen = true
	}
	for y := first; y <= last; y++ {
		if _, ok := years[y]; !ok {
			missing = append(missing, y)
		}
	}
	return first, last, missing
}

func profileDateColumn(table *models.RawTable, col string) DateColumnProfile {
	p := DateColumnProfile{Name: col}
	for _, row := range table.Rows {
		v, ok := row[col]
		if !ok {
			continue
		}
		p.Populated++
		if len(p.Samples) < 5 {
			p.Samples = append(p.Samples, v)
		}

		var t time.Time
		if col == yearColumn {
			y, ok := ParseYear(v)
			if !ok {
				continue
			}
			t = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		} else if t, ok = ParseTimestamp(v); !ok {
			continue
		}
		if p.Parsed == 0 || t.Before(p.Min) {
			p.Min = t
		}
		if p.Parsed == 0 || t.After(p.Max) {
			p.Max = t
		}
		p.Parsed++
	}
	return p
}
