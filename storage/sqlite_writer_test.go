package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteWriterPersistsReport(t *testing.T) {
	ctx := context.Background()
	sw, err := NewSQLiteWriter(ctx, filepath.Join(t.TempDir(), "nested", "licences.sqlite"))
	require.NoError(t, err)
	defer sw.Close()

	require.NoError(t, sw.Write(ctx, sampleReport()))

	counts, err := sw.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"licences":       2,
		"monthly_counts": 1,
		"yearly_counts":  1,
		"cross_tabs":     3,
		"crisis_impacts": 2,
		"forecasts":      1,
		"crisis_effect":  2,
		"vulnerability":  1,
		"licence_runs":   1,
	}, counts)

	impacts, err := sw.Impacts(ctx)
	require.NoError(t, err)
	require.Len(t, impacts, 2)

	// Ordered by start month, so the 1990 window comes first.
	assert.Equal(t, "Slump", impacts[0].Crisis)
	assert.False(t, impacts[0].MeanChange.Valid, "NaN must be stored as NULL")
	assert.Equal(t, "COVID-19", impacts[1].Crisis)
	assert.Equal(t, sql.NullFloat64{Float64: 21.5, Valid: true}, impacts[1].MeanChange)
	assert.Equal(t, 12, impacts[1].CrisisCount)
	assert.False(t, impacts[1].Absolute)

	var year sql.NullInt64
	require.NoError(t, sw.db.QueryRowContext(ctx,
		"SELECT year FROM licences WHERE business_id = 'L2'").Scan(&year))
	assert.False(t, year.Valid, "undated licence year must be NULL")

	// Cross-tab cells are stored densely, zeros included.
	var pending int
	require.NoError(t, sw.db.QueryRowContext(ctx,
		"SELECT count FROM cross_tabs WHERE dimension = 'status' AND year = 2020 AND category = 'pending'").Scan(&pending))
	assert.Equal(t, 0, pending)

	var estimate, lower sql.NullFloat64
	require.NoError(t, sw.db.QueryRowContext(ctx,
		"SELECT estimate, ci_lower FROM crisis_effect WHERE term = 'is_crisis'").Scan(&estimate, &lower))
	assert.Equal(t, sql.NullFloat64{Float64: -2, Valid: true}, estimate)
	assert.Equal(t, sql.NullFloat64{Float64: -3, Valid: true}, lower)

	var rate float64
	require.NoError(t, sw.db.QueryRowContext(ctx,
		"SELECT survival_rate FROM vulnerability WHERE business_type = 'retail'").Scan(&rate))
	assert.Equal(t, 0.25, rate)
}

func TestSQLiteWriterReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "licences.sqlite")

	first, err := NewSQLiteWriter(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Write(ctx, sampleReport()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteWriter(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	r := sampleReport()
	r.RunID = "run-2"
	r.Impacts = r.Impacts[:1]
	require.NoError(t, second.Write(ctx, r))

	counts, err := second.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["licence_runs"])
	assert.Equal(t, 1, counts["crisis_impacts"])

	var runID string
	require.NoError(t, second.db.QueryRowContext(ctx, "SELECT run_id FROM licence_runs").Scan(&runID))
	assert.Equal(t, "run-2", runID)
}
