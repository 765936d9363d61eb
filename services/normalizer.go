package services

import (
	"regexp"
	"strings"

	"licence-trends/models"
	"licence-trends/utils"
)

var (
	// columnJunkRegexp matches characters that are not allowed in a column name.
	columnJunkRegexp = regexp.MustCompile(`[^0-9a-zA-Z_]`)

	statusMapping = map[string]string{
		"expired": "closed",
		"closed":  "closed",
		"active":  "active",
	}
)

// missingMarker is the literal pandas-era placeholder for an absent value.
const missingMarker = "nan"

// Normalizer standardises column names and categorical spellings so the
// three extracts can be treated as one logical dataset.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize returns a new table with cleaned column names and normalised
// status/business-type values. The input table is left untouched.
func (n *Normalizer) Normalize(t *models.RawTable) *models.RawTable {
	cleaned := CleanColumnNames(t.Columns)

	out := &models.RawTable{
		Source:  t.Source,
		Columns: make([]string, 0, len(cleaned)),
		Rows:    make([]map[string]string, 0, len(t.Rows)),
	}

	// rename maps source column -> cleaned name; collisions keep the first column.
	rename := make(map[string]string, len(t.Columns))
	taken := make(map[string]struct{}, len(cleaned))
	for i, col := range t.Columns {
		name := cleaned[i]
		if _, dup := taken[name]; dup {
			n.logger.Warn("[normalizer] %s: column %q collides with an earlier column as %q, dropping it",
				t.Source, col, name)
			continue
		}
		taken[name] = struct{}{}
		rename[col] = name
		out.Columns = append(out.Columns, name)
	}

	for _, row := range t.Rows {
		nr := make(map[string]string, len(row))
		for col, val := range row {
			name, ok := rename[col]
			if !ok {
				continue
			}
			switch name {
			case "status":
				val = NormalizeStatus(val)
			case "businesstype", "businesssubtype":
				val = normaliseCategory(val)
			}
			if val == missingMarker {
				continue
			}
			nr[name] = val
		}
		out.Rows = append(out.Rows, nr)
	}

	n.logger.Info("[normalizer] %s: %d rows, %d columns", t.Source, len(out.Rows), len(out.Columns))
	return out
}

// CleanColumnNames strips, lowercases, replaces spaces with underscores and
// drops anything outside [0-9a-zA-Z_]. Applying it twice is a no-op.
func CleanColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		c = strings.ToLower(strings.TrimSpace(c))
		c = strings.ReplaceAll(c, " ", "_")
		out[i] = columnJunkRegexp.ReplaceAllString(c, "")
	}
	return out
}

// NormalizeStatus maps licence status spellings onto active/closed. Values
// outside the mapping are lowercased, trimmed and passed through.
func NormalizeStatus(s string) string {
	s = normaliseCategory(s)
	if mapped, ok := statusMapping[s]; ok {
		return mapped
	}
	return s
}

func normaliseCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
