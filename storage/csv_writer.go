package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"licence-trends/models"
)

// Artifact file names written by CSVWriter.Write.
const (
	ReconciledFile    = "business_licences_reconciled.csv"
	MonthlyFile       = "monthly_business_counts.csv"
	YearlyFile        = "yearly_business_counts.csv"
	StatusByYearFile  = "status_by_year.csv"
	TypeByYearFile    = "business_type_by_year.csv"
	ForecastFile      = "business_forecast_with_ci.csv"
	CrisisResultsFile = "crisis_bootstrap_results.csv"
	EffectFile        = "crisis_effect_model.csv"
	VulnerabilityFile = "business_vulnerability.csv"
)

// CSVWriter writes raw extracts and analysis artifacts as flat CSV files
// under one directory. It is safe for concurrent use.
type CSVWriter struct {
	mu  sync.Mutex
	dir string
}

// NewCSVWriter creates the output directory if needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

// Dir returns the output directory.
func (c *CSVWriter) Dir() string {
	return c.dir
}

// WriteRaw writes a fetched extract to <dir>/<source>.csv. Columns are the
// union of all record keys in sorted order.
func (c *CSVWriter) WriteRaw(t *models.RawTable) error {
	cols := t.Columns
	if len(cols) == 0 {
		seen := make(map[string]struct{})
		for _, row := range t.Rows {
			for k := range row {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					cols = append(cols, k)
				}
			}
		}
		sort.Strings(cols)
	}
	return c.WriteTable(t.Source+".csv", &models.RawTable{Source: t.Source, Columns: cols, Rows: t.Rows})
}

// WriteTable writes a RawTable with its own column order.
func (c *CSVWriter) WriteTable(file string, t *models.RawTable) error {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			rec[j] = row[col]
		}
		rows[i] = rec
	}
	return c.writeFile(file, t.Columns, rows)
}

// MergeTables concatenates normalized tables; the result's columns are the
// union in first-seen order.
func MergeTables(source string, tables []*models.RawTable) *models.RawTable {
	merged := &models.RawTable{Source: source}
	seen := make(map[string]struct{})
	for _, t := range tables {
		for _, col := range t.Columns {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				merged.Columns = append(merged.Columns, col)
			}
		}
		merged.Rows = append(merged.Rows, t.Rows...)
	}
	return merged
}

// Write stores every artifact of the report.
func (c *CSVWriter) Write(_ context.Context, r *models.Report) error {
	if err := c.writeLicences(r); err != nil {
		return err
	}
	if r.Series != nil {
		if err := c.writeSeries(r.Series); err != nil {
			return err
		}
	}
	if err := c.writeForecasts(r.Forecasts); err != nil {
		return err
	}
	if err := c.writeImpacts(r.Impacts); err != nil {
		return err
	}
	if r.Effect != nil {
		if err := c.writeEffect(r.Effect); err != nil {
			return err
		}
	}
	return c.writeVulnerability(r.Vulnerability)
}

// Close is a no-op; every file is closed as soon as it is written.
func (c *CSVWriter) Close() error { return nil }

func (c *CSVWriter) writeLicences(r *models.Report) error {
	cols := LicenceColumns(r.Columns)
	rows := make([][]string, len(r.Licences))
	for i, l := range r.Licences {
		rows[i] = licenceRecord(l, cols)
	}
	return c.writeFile(ReconciledFile, cols, rows)
}

func (c *CSVWriter) writeSeries(ts *models.TimeSeries) error {
	monthly := make([][]string, len(ts.Monthly))
	for i, m := range ts.Monthly {
		monthly[i] = []string{m.MonthStart.Format(dateLayout), strconv.Itoa(m.Count)}
	}
	if err := c.writeFile(MonthlyFile, []string{"month_start", "count"}, monthly); err != nil {
		return err
	}

	yearly := make([][]string, len(ts.Yearly))
	for i, y := range ts.Yearly {
		yearly[i] = []string{strconv.Itoa(y.Year), strconv.Itoa(y.Count)}
	}
	if err := c.writeFile(YearlyFile, []string{"year", "count"}, yearly); err != nil {
		return err
	}

	if ts.StatusByYear != nil {
		h, rows := crossTabRows(ts.StatusByYear)
		if err := c.writeFile(StatusByYearFile, h, rows); err != nil {
			return err
		}
	}
	if ts.TypeByYear != nil {
		h, rows := crossTabRows(ts.TypeByYear)
		if err := c.writeFile(TypeByYearFile, h, rows); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVWriter) writeForecasts(rows []models.ForecastRow) error {
	out := make([][]string, len(rows))
	for i, f := range rows {
		out[i] = []string{
			f.BusinessType, strconv.Itoa(f.Year),
			formatFloat(f.PredictedCount), formatFloat(f.CILower), formatFloat(f.CIUpper),
		}
	}
	return c.writeFile(ForecastFile,
		[]string{"businesstype", "year", "predicted_count", "ci_lower", "ci_upper"}, out)
}

func (c *CSVWriter) writeImpacts(impacts []models.CrisisImpact) error {
	out := make([][]string, len(impacts))
	for i, m := range impacts {
		out[i] = []string{
			m.Crisis.Name, m.Crisis.Start.String(), m.Crisis.End.String(),
			strconv.Itoa(m.BaselineYear), strconv.Itoa(m.BaselineCount), strconv.Itoa(m.CrisisCount),
			formatFloat(m.PointChange), formatFloat(m.MeanChange),
			formatFloat(m.CILower), formatFloat(m.CIUpper),
			strconv.FormatBool(m.Absolute), formatFloat(m.AbsMean),
			topTypesString(m.TopTypes),
		}
	}
	return c.writeFile(CrisisResultsFile, []string{
		"crisis", "start", "end", "baseline_year", "baseline_count", "crisis_count",
		"point_change", "mean_change", "ci_lower", "ci_upper", "absolute", "abs_mean", "top_types",
	}, out)
}

func (c *CSVWriter) writeEffect(e *models.CrisisEffect) error {
	row := func(name string, k models.Coefficient) []string {
		return []string{name, formatFloat(k.Estimate), formatFloat(k.Mean), formatFloat(k.CILower), formatFloat(k.CIUpper)}
	}
	return c.writeFile(EffectFile, []string{"term", "estimate", "bootstrap_mean", "ci_lower", "ci_upper"},
		[][]string{row("intercept", e.Intercept), row("is_crisis", e.Effect)})
}

func (c *CSVWriter) writeVulnerability(rows []models.VulnerabilityRow) error {
	out := make([][]string, len(rows))
	for i, v := range rows {
		out[i] = []string{v.BusinessType, strconv.Itoa(v.Count), strconv.Itoa(v.Survived), formatFloat(v.SurvivalRate)}
	}
	return c.writeFile(VulnerabilityFile, []string{"businesstype", "count", "survived", "survival_rate"}, out)
}

func (c *CSVWriter) writeFile(file string, header []string, rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, file)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("csv: write rows to %q: %w", path, err)
	}
	return f.Close()
}
