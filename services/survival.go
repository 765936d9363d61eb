package services

import (
	"sort"

	"licence-trends/models"
	"licence-trends/utils"
)

const daysPerYear = 365.25

// SurvivalPolicy decides whether a crisis-era licence counts as a survivor.
type SurvivalPolicy struct {
	// MinYears is the shortest issue-to-expiry span that counts as survival.
	MinYears float64
	// MinSamples is the smallest per-type sample reported in the vulnerability table.
	MinSamples int
}

// SurvivalLabeler labels crisis-era licences and summarises them per type.
type SurvivalLabeler struct {
	logger *utils.Logger
	policy SurvivalPolicy
}

// NewSurvivalLabeler creates a labeler for the given policy.
func NewSurvivalLabeler(logger *utils.Logger, policy SurvivalPolicy) *SurvivalLabeler {
	return &SurvivalLabeler{logger: logger, policy: policy}
}

// Label reports whether the licence survived and whether it is eligible at
// all. Only licences issued inside a crisis window are eligible; a licence
// without an expiry date is still running and counts as a survivor.
func (s *SurvivalLabeler) Label(l *models.Licence) (survived, eligible bool) {
	if !l.HasDate || l.CrisisPeriod == models.PeriodNormal || l.CrisisPeriod == models.PeriodNone {
		return false, false
	}
	if !l.HasExpiry {
		return true, true
	}
	return DurationYears(l) >= s.policy.MinYears, true
}

// DurationYears is the issue-to-expiry span in years.
func DurationYears(l *models.Licence) float64 {
	return l.ExpiredDate.Sub(l.IssuedDate).Hours() / 24 / daysPerYear
}

// Vulnerability groups eligible licences by business type, keeps types with
// at least MinSamples licences and sorts them from least to most resilient.
func (s *SurvivalLabeler) Vulnerability(licences []*models.Licence) []models.VulnerabilityRow {
	rows := make(map[string]*models.VulnerabilityRow)
	eligible, survivors := 0, 0
	for _, l := range licences {
		survived, ok := s.Label(l)
		if !ok {
			continue
		}
		eligible++
		bt := l.BusinessType
		if bt == "" {
			bt = "unknown"
		}
		r, exists := rows[bt]
		if !exists {
			r = &models.VulnerabilityRow{BusinessType: bt}
			rows[bt] = r
		}
		r.Count++
		if survived {
			r.Survived++
			survivors++
		}
	}

	out := make([]models.VulnerabilityRow, 0, len(rows))
	for _, r := range rows {
		if r.Count < s.policy.MinSamples {
			continue
		}
		r.SurvivalRate = float64(r.Survived) / float64(r.Count)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SurvivalRate != out[j].SurvivalRate {
			return out[i].SurvivalRate < out[j].SurvivalRate
		}
		return out[i].BusinessType < out[j].BusinessType
	})

	s.logger.Info("[survival] %d crisis-era licences, %d survived, %d types with >= %d samples",
		eligible, survivors, len(out), s.policy.MinSamples)
	return out
}
