package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"licence-trends/models"
)

// dialect captures the few differences between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	schema      string
}

// resultTables lists the tables owned by a run, in delete order.
var resultTables = []string{
	"licences", "monthly_counts", "yearly_counts", "cross_tabs", "crisis_impacts", "forecasts",
	"crisis_effect", "vulnerability", "licence_runs",
}

// sqlStore persists an analysis report into a relational database. Each Write
// replaces the previous run's rows.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.d.schema)
	return err
}

// Write replaces all stored results with the report, in one transaction.
func (s *sqlStore) Write(ctx context.Context, r *models.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.d.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range resultTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("%s: clear %s: %w", s.d.name, t, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO licence_runs (run_id, generated_at, licences) VALUES (%s, %s, %s)",
			s.d.placeholder(1), s.d.placeholder(2), s.d.placeholder(3)),
		r.RunID, r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"), len(r.Licences)); err != nil {
		return fmt.Errorf("%s: insert run: %w", s.d.name, err)
	}

	licences := make([][]any, len(r.Licences))
	for i, l := range r.Licences {
		licences[i] = []any{
			r.RunID, l.BusinessID, l.BusinessName, l.BusinessType, l.BusinessSubtype,
			l.Status, l.LocalArea, l.Source,
			nullDate(l.IssuedDate, l.HasDate), nullInt(l.Year, l.HasYear), nullInt(l.Month, l.HasDate),
			l.CrisisPeriod,
		}
	}
	if err := s.insertBatch(ctx, tx, "licences", []string{
		"run_id", "business_id", "business_name", "business_type", "business_subtype",
		"status", "local_area", "source", "issued_date", "year", "month", "crisis_period",
	}, licences); err != nil {
		return err
	}

	if ts := r.Series; ts != nil {
		monthly := make([][]any, len(ts.Monthly))
		for i, m := range ts.Monthly {
			monthly[i] = []any{r.RunID, m.MonthStart.Format(dateLayout), m.Count}
		}
		if err := s.insertBatch(ctx, tx, "monthly_counts", []string{"run_id", "month_start", "count"}, monthly); err != nil {
			return err
		}

		yearly := make([][]any, len(ts.Yearly))
		for i, y := range ts.Yearly {
			yearly[i] = []any{r.RunID, y.Year, y.Count}
		}
		if err := s.insertBatch(ctx, tx, "yearly_counts", []string{"run_id", "year", "count"}, yearly); err != nil {
			return err
		}

		var cells [][]any
		for _, ct := range []*models.CrossTab{ts.StatusByYear, ts.TypeByYear} {
			if ct == nil {
				continue
			}
			for _, y := range ct.Years {
				for _, c := range ct.Columns {
					cells = append(cells, []any{r.RunID, ct.Dimension, y, c, ct.Cell(y, c)})
				}
			}
		}
		if err := s.insertBatch(ctx, tx, "cross_tabs", []string{"run_id", "dimension", "year", "category", "count"}, cells); err != nil {
			return err
		}
	}

	impacts := make([][]any, len(r.Impacts))
	for i, m := range r.Impacts {
		impacts[i] = []any{
			r.RunID, m.Crisis.Name, m.Crisis.Start.String(), m.Crisis.End.String(),
			m.BaselineYear, m.BaselineCount, m.CrisisCount,
			nullFloat(m.PointChange), nullFloat(m.MeanChange), nullFloat(m.CILower), nullFloat(m.CIUpper),
			m.Absolute, nullFloat(m.AbsMean),
		}
	}
	if err := s.insertBatch(ctx, tx, "crisis_impacts", []string{
		"run_id", "crisis", "start_month", "end_month", "baseline_year", "baseline_count", "crisis_count",
		"point_change", "mean_change", "ci_lower", "ci_upper", "absolute", "abs_mean",
	}, impacts); err != nil {
		return err
	}

	forecasts := make([][]any, len(r.Forecasts))
	for i, f := range r.Forecasts {
		forecasts[i] = []any{r.RunID, f.BusinessType, f.Year, f.PredictedCount, f.CILower, f.CIUpper}
	}
	if err := s.insertBatch(ctx, tx, "forecasts", []string{
		"run_id", "business_type", "year", "predicted_count", "ci_lower", "ci_upper",
	}, forecasts); err != nil {
		return err
	}

	if e := r.Effect; e != nil {
		term := func(name string, k models.Coefficient, significant bool) []any {
			return []any{r.RunID, name, nullFloat(k.Estimate), nullFloat(k.Mean),
				nullFloat(k.CILower), nullFloat(k.CIUpper), significant}
		}
		if err := s.insertBatch(ctx, tx, "crisis_effect", []string{
			"run_id", "term", "estimate", "bootstrap_mean", "ci_lower", "ci_upper", "significant",
		}, [][]any{term("intercept", e.Intercept, false), term("is_crisis", e.Effect, e.Significant)}); err != nil {
			return err
		}
	}

	vuln := make([][]any, len(r.Vulnerability))
	for i, v := range r.Vulnerability {
		vuln[i] = []any{r.RunID, v.BusinessType, v.Count, v.Survived, v.SurvivalRate}
	}
	if err := s.insertBatch(ctx, tx, "vulnerability", []string{
		"run_id", "business_type", "count", "survived", "survival_rate",
	}, vuln); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.d.name, err)
	}
	return nil
}

func (s *sqlStore) insertBatch(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	const batchSize = 200
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]any, 0, len(batch)*len(cols))
		for idx, row := range batch {
			base := idx * len(cols)
			ph := make([]string, len(cols))
			for j := range cols {
				ph[j] = s.d.placeholder(base + j + 1)
			}
			valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
			valueArgs = append(valueArgs, row...)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, strings.Join(cols, ", "), strings.Join(valueStrings, ","))
		if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
			return fmt.Errorf("%s: insert %s: %w", s.d.name, table, err)
		}
	}
	return nil
}

// Counts returns the number of stored rows per result table.
func (s *sqlStore) Counts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(resultTables))
	for _, t := range resultTables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, fmt.Errorf("%s: count %s: %w", s.d.name, t, err)
		}
		out[t] = n
	}
	return out, nil
}

// Impacts reads back the stored crisis impact rows ordered by crisis start.
func (s *sqlStore) Impacts(ctx context.Context) ([]StoredImpact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crisis, baseline_count, crisis_count, mean_change, ci_lower, ci_upper, absolute
		FROM crisis_impacts
		ORDER BY start_month
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch impacts: %w", s.d.name, err)
	}
	defer rows.Close()

	var out []StoredImpact
	for rows.Next() {
		var si StoredImpact
		if err := rows.Scan(&si.Crisis, &si.BaselineCount, &si.CrisisCount,
			&si.MeanChange, &si.CILower, &si.CIUpper, &si.Absolute); err != nil {
			return nil, fmt.Errorf("%s: scan impact: %w", s.d.name, err)
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// StoredImpact is a crisis impact row as persisted; undefined values are NULL.
type StoredImpact struct {
	Crisis        string
	BaselineCount int
	CrisisCount   int
	MeanChange    sql.NullFloat64
	CILower       sql.NullFloat64
	CIUpper       sql.NullFloat64
	Absolute      bool
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
