package services

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"licence-trends/models"
)

func window(name string, startYear, endYear int) models.CrisisPeriod {
	return models.CrisisPeriod{
		Name:  name,
		Start: models.YearMonth{Year: startYear, Month: time.January},
		End:   models.YearMonth{Year: endYear, Month: time.December},
	}
}

// repeat returns n licences issued in the given year, classified with the registry.
func repeat(c *CrisisClassifier, n, year int, businessType string) []*models.Licence {
	out := make([]*models.Licence, n)
	for i := range out {
		out[i] = dated(year, time.Month(i%12+1), 1, businessType, "issued")
	}
	return c.ClassifyAll(out)
}

func TestImpactEstimate(t *testing.T) {
	registry := []models.CrisisPeriod{window("Slump", 2010, 2010)}
	c := NewCrisisClassifier(registry)
	licences := append(repeat(c, 20, 2009, "retail"), repeat(c, 30, 2010, "cafe")...)
	licences = append(licences, repeat(c, 5, 2010, "retail")...)

	got := NewImpactEstimator(newTestLogger(), 500, 42).Estimate(licences, registry)
	if len(got) != 1 {
		t.Fatalf("got %d impacts; want 1", len(got))
	}
	r := got[0]
	if r.BaselineYear != 2009 || r.BaselineCount != 20 || r.CrisisCount != 35 {
		t.Errorf("counts = %d:%d/%d", r.BaselineYear, r.BaselineCount, r.CrisisCount)
	}
	if math.Abs(r.PointChange-75) > 1e-9 {
		t.Errorf("PointChange = %v; want 75", r.PointChange)
	}
	if r.Absolute || !r.HasInterval() {
		t.Fatalf("expected a percentage interval, got %+v", r)
	}
	if !(r.CILower <= r.MeanChange && r.MeanChange <= r.CIUpper) {
		t.Errorf("interval [%v, %v] does not contain mean %v", r.CILower, r.CIUpper, r.MeanChange)
	}
	if r.CILower > 75 || r.CIUpper < 75 {
		t.Errorf("interval [%v, %v] misses the observed change", r.CILower, r.CIUpper)
	}
	want := []models.TypeCount{{BusinessType: "cafe", Count: 30}, {BusinessType: "retail", Count: 5}}
	if diff := cmp.Diff(want, r.TopTypes); diff != "" {
		t.Errorf("TopTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestImpactDegenerateCases(t *testing.T) {
	registry := []models.CrisisPeriod{
		window("Empty", 1990, 1990),
		window("NoBaseline", 2000, 2000),
		window("NoCrisis", 2005, 2005),
	}
	c := NewCrisisClassifier(registry)
	licences := append(repeat(c, 12, 2000, "retail"), repeat(c, 8, 2004, "retail")...)

	got := NewImpactEstimator(newTestLogger(), 300, 1).Estimate(licences, registry)
	if len(got) != 3 {
		t.Fatalf("got %d impacts; want 3", len(got))
	}

	empty := got[0]
	if empty.Absolute || empty.HasInterval() || !math.IsNaN(empty.PointChange) {
		t.Errorf("both-zero window should be fully undefined: %+v", empty)
	}

	abs := got[1]
	if !abs.Absolute || !abs.HasInterval() {
		t.Fatalf("zero-baseline window should carry an absolute interval: %+v", abs)
	}
	if !math.IsNaN(abs.PointChange) || !math.IsNaN(abs.MeanChange) {
		t.Errorf("zero-baseline window must not report a percentage: %+v", abs)
	}
	if abs.AbsMean < 8 || abs.AbsMean > 16 {
		t.Errorf("AbsMean = %v; want close to 12", abs.AbsMean)
	}
	if !(abs.CILower <= abs.AbsMean && abs.AbsMean <= abs.CIUpper) {
		t.Errorf("absolute interval [%v, %v] does not contain %v", abs.CILower, abs.CIUpper, abs.AbsMean)
	}

	none := got[2]
	if none.BaselineCount != 8 || none.CrisisCount != 0 {
		t.Errorf("counts = %d/%d", none.BaselineCount, none.CrisisCount)
	}
	if none.Absolute || none.HasInterval() || !math.IsNaN(none.PointChange) {
		t.Errorf("zero-crisis window should be undefined: %+v", none)
	}
}

func TestImpactDeterministic(t *testing.T) {
	registry := DefaultCrisisRegistry()
	c := NewCrisisClassifier(registry)
	var licences []*models.Licence
	for y := 1999; y <= 2023; y++ {
		licences = append(licences, repeat(c, 5+y%7, y, "retail")...)
	}

	a := NewImpactEstimator(newTestLogger(), 200, 9).Estimate(licences, registry)
	b := NewImpactEstimator(newTestLogger(), 200, 9).Estimate(licences, registry)
	if diff := cmp.Diff(a, b, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("same seed produced different results:\n%s", diff)
	}
}

func TestImpactIndependentOfOtherWindows(t *testing.T) {
	covid := window("COVID-19", 2020, 2021)
	other := window("Other", 2005, 2005)
	c := NewCrisisClassifier([]models.CrisisPeriod{other, covid})
	var licences []*models.Licence
	for y := 2004; y <= 2021; y++ {
		licences = append(licences, repeat(c, 6+y%5, y, "retail")...)
	}

	alone := NewImpactEstimator(newTestLogger(), 300, 11).Estimate(licences, []models.CrisisPeriod{covid})
	both := NewImpactEstimator(newTestLogger(), 300, 11).Estimate(licences, []models.CrisisPeriod{other, covid})
	if diff := cmp.Diff(alone[0], both[1], cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("COVID-19 impact changed when another window was added:\n%s", diff)
	}
}
