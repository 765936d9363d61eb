package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"licence-trends/models"
)

func TestClassifyBoundaries(t *testing.T) {
	c := NewCrisisClassifier(DefaultCrisisRegistry())
	tests := []struct {
		date time.Time
		want string
	}{
		{day(1999, time.December, 31), models.PeriodNormal},
		{day(2000, time.January, 1), "Dot-Com Crash"},
		{day(2002, time.December, 31), "Dot-Com Crash"},
		{day(2003, time.January, 1), models.PeriodNormal},
		{day(2008, time.June, 15), "Great Recession"},
		{day(2014, time.June, 30), models.PeriodNormal},
		{day(2014, time.July, 1), "Oil Price Crash"},
		{day(2020, time.February, 29), models.PeriodNormal},
		{day(2020, time.March, 1), "COVID-19"},
		{day(2021, time.December, 31), "COVID-19"},
		{day(2022, time.January, 1), "Interest Rate Shock"},
		{day(2023, time.December, 31), "Interest Rate Shock"},
		{day(2024, time.January, 1), models.PeriodNormal},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.date, true); got != tt.want {
			t.Errorf("Classify(%s) = %q; want %q", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
	if got := c.Classify(time.Time{}, false); got != models.PeriodNone {
		t.Errorf("undefined date = %q; want None", got)
	}
}

func TestClassifyIsPartition(t *testing.T) {
	c := NewCrisisClassifier(DefaultCrisisRegistry())
	valid := map[string]bool{models.PeriodNormal: true, models.PeriodNone: true}
	for _, p := range DefaultCrisisRegistry() {
		valid[p.Name] = true
	}

	for d := day(1995, time.January, 1); d.Year() < 2026; d = d.AddDate(0, 0, 9) {
		label := c.Classify(d, true)
		if !valid[label] {
			t.Fatalf("Classify(%s) = %q, not a registered label", d, label)
		}
		matches := 0
		for _, p := range c.Registry() {
			if p.Contains(models.YearMonthOf(d)) {
				matches++
			}
		}
		if matches > 1 {
			t.Fatalf("%s falls in %d windows of the default registry", d, matches)
		}
		if (matches == 1) != (label != models.PeriodNormal) {
			t.Fatalf("Classify(%s) = %q inconsistent with %d matching windows", d, label, matches)
		}
	}
}

func TestClassifierOverlaps(t *testing.T) {
	if o := NewCrisisClassifier(DefaultCrisisRegistry()).Overlaps(); len(o) != 0 {
		t.Errorf("default registry overlaps: %v", o)
	}

	reg := []models.CrisisPeriod{
		{Name: "A", Start: models.YearMonth{Year: 2010, Month: time.January}, End: models.YearMonth{Year: 2010, Month: time.June}},
		{Name: "B", Start: models.YearMonth{Year: 2010, Month: time.June}, End: models.YearMonth{Year: 2010, Month: time.December}},
		{Name: "C", Start: models.YearMonth{Year: 2011, Month: time.January}, End: models.YearMonth{Year: 2011, Month: time.March}},
	}
	c := NewCrisisClassifier(reg)
	if diff := cmp.Diff([]Overlap{{First: "A", Second: "B"}}, c.Overlaps()); diff != "" {
		t.Errorf("Overlaps mismatch (-want +got):\n%s", diff)
	}
	if got := c.Classify(day(2010, time.June, 10), true); got != "A" {
		t.Errorf("shared month classified as %q; want first match A", got)
	}
}

func TestClassifierCopiesRegistry(t *testing.T) {
	reg := DefaultCrisisRegistry()
	c := NewCrisisClassifier(reg)
	reg[3].Name = "changed"
	if got := c.Classify(day(2020, time.May, 1), true); got != "COVID-19" {
		t.Errorf("classifier picked up caller mutation: %q", got)
	}
}

func TestClassifyAllReturnsCopies(t *testing.T) {
	in := []*models.Licence{
		{IssuedDate: day(2009, time.March, 3), HasDate: true, CrisisPeriod: models.PeriodNone},
		{CrisisPeriod: "stale"},
	}
	out := NewCrisisClassifier(DefaultCrisisRegistry()).ClassifyAll(in)
	if out[0].CrisisPeriod != "Great Recession" || out[1].CrisisPeriod != models.PeriodNone {
		t.Errorf("got %q, %q", out[0].CrisisPeriod, out[1].CrisisPeriod)
	}
	if in[0].CrisisPeriod != models.PeriodNone || in[1].CrisisPeriod != "stale" {
		t.Errorf("input licences were modified")
	}
}

func TestInCrisis(t *testing.T) {
	c := NewCrisisClassifier(DefaultCrisisRegistry())
	if !c.InCrisis(day(2020, time.April, 1)) {
		t.Errorf("2020-04 should be in crisis")
	}
	if c.InCrisis(day(2019, time.April, 1)) {
		t.Errorf("2019-04 should not be in crisis")
	}
}

func TestLoadCrisisRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crises.yaml")
	data := `crises:
  - name: Housing Correction
    start: 2018-01
    end: 2019-06
  - name: COVID-19
    start: 2020-03
    end: 2021-12
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCrisisRegistry(path)
	if err != nil {
		t.Fatalf("LoadCrisisRegistry: %v", err)
	}
	want := []models.CrisisPeriod{
		{Name: "Housing Correction", Start: models.YearMonth{Year: 2018, Month: time.January}, End: models.YearMonth{Year: 2019, Month: time.June}},
		{Name: "COVID-19", Start: models.YearMonth{Year: 2020, Month: time.March}, End: models.YearMonth{Year: 2021, Month: time.December}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCrisisRegistryErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":    "crises: []\n",
		"reversed.yaml": "crises:\n  - name: X\n    start: 2010-05\n    end: 2010-01\n",
		"noname.yaml":   "crises:\n  - start: 2010-01\n    end: 2010-02\n",
		"badmonth.yaml": "crises:\n  - name: X\n    start: 2010-13\n    end: 2011-01\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadCrisisRegistry(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadCrisisRegistry(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("missing file: expected an error")
	}
}
