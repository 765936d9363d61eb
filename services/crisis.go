package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"licence-trends/models"
)

// DefaultCrisisRegistry returns a fresh copy of the reference crisis windows
// in their canonical order.
func DefaultCrisisRegistry() []models.CrisisPeriod {
	ym := func(y int, m time.Month) models.YearMonth { return models.YearMonth{Year: y, Month: m} }
	return []models.CrisisPeriod{
		{Name: "Dot-Com Crash", Start: ym(2000, time.January), End: ym(2002, time.December)},
		{Name: "Great Recession", Start: ym(2008, time.January), End: ym(2009, time.December)},
		{Name: "Oil Price Crash", Start: ym(2014, time.July), End: ym(2016, time.December)},
		{Name: "COVID-19", Start: ym(2020, time.March), End: ym(2021, time.December)},
		{Name: "Interest Rate Shock", Start: ym(2022, time.January), End: ym(2023, time.December)},
	}
}

type registryFile struct {
	Crises []models.CrisisPeriod `yaml:"crises"`
}

// LoadCrisisRegistry reads a registry from YAML:
//
//	crises:
//	  - name: COVID-19
//	    start: 2020-03
//	    end: 2021-12
func LoadCrisisRegistry(path string) ([]models.CrisisPeriod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crisis registry: read %s: %w", path, err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("crisis registry: parse %s: %w", path, err)
	}
	if len(f.Crises) == 0 {
		return nil, fmt.Errorf("crisis registry: %s defines no crises", path)
	}
	for _, c := range f.Crises {
		if c.Name == "" {
			return nil, fmt.Errorf("crisis registry: %s: entry without a name", path)
		}
		if c.End.Index() < c.Start.Index() {
			return nil, fmt.Errorf("crisis registry: %s: %q ends before it starts", path, c.Name)
		}
	}
	return f.Crises, nil
}

// Overlap names two registry entries whose windows share at least one month.
type Overlap struct {
	First, Second string
}

// CrisisClassifier maps canonical dates onto crisis window names.
type CrisisClassifier struct {
	registry []models.CrisisPeriod
	overlaps []Overlap
}

// NewCrisisClassifier copies the registry so later edits by the caller have
// no effect.
func NewCrisisClassifier(registry []models.CrisisPeriod) *CrisisClassifier {
	reg := make([]models.CrisisPeriod, len(registry))
	copy(reg, registry)

	var overlaps []Overlap
	for i := 0; i < len(reg); i++ {
		for j := i + 1; j < len(reg); j++ {
			if reg[i].Start.Index() <= reg[j].End.Index() && reg[j].Start.Index() <= reg[i].End.Index() {
				overlaps = append(overlaps, Overlap{First: reg[i].Name, Second: reg[j].Name})
			}
		}
	}
	return &CrisisClassifier{registry: reg, overlaps: overlaps}
}

// Registry returns the windows in classification order.
func (c *CrisisClassifier) Registry() []models.CrisisPeriod {
	out := make([]models.CrisisPeriod, len(c.registry))
	copy(out, c.registry)
	return out
}

// Overlaps lists overlapping registry pairs. Classification still returns
// the first matching window for such months.
func (c *CrisisClassifier) Overlaps() []Overlap {
	return c.overlaps
}

// Classify returns the crisis containing the date's month, "Normal" when no
// window matches, or "None" when the date is undefined.
func (c *CrisisClassifier) Classify(date time.Time, ok bool) string {
	if !ok {
		return models.PeriodNone
	}
	ym := models.YearMonthOf(date)
	for _, p := range c.registry {
		if p.Contains(ym) {
			return p.Name
		}
	}
	return models.PeriodNormal
}

// InCrisis reports whether the month starting at t lies in any window.
func (c *CrisisClassifier) InCrisis(t time.Time) bool {
	name := c.Classify(t, true)
	return name != models.PeriodNormal
}

// ClassifyAll returns copies of the licences with CrisisPeriod assigned.
func (c *CrisisClassifier) ClassifyAll(licences []*models.Licence) []*models.Licence {
	out := make([]*models.Licence, len(licences))
	for i, l := range licences {
		cp := *l
		cp.CrisisPeriod = c.Classify(l.IssuedDate, l.HasDate)
		out[i] = &cp
	}
	return out
}
