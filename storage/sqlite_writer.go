package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS licence_runs (
		run_id       TEXT PRIMARY KEY,
		generated_at TEXT    NOT NULL,
		licences     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS licences (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id           TEXT NOT NULL,
		business_id      TEXT NOT NULL DEFAULT '',
		business_name    TEXT NOT NULL DEFAULT '',
		business_type    TEXT NOT NULL DEFAULT '',
		business_subtype TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT '',
		local_area       TEXT NOT NULL DEFAULT '',
		source           TEXT NOT NULL,
		issued_date      TEXT,
		year             INTEGER,
		month            INTEGER,
		crisis_period    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS monthly_counts (
		run_id      TEXT    NOT NULL,
		month_start TEXT    NOT NULL,
		count       INTEGER NOT NULL,
		PRIMARY KEY (run_id, month_start)
	);

	CREATE TABLE IF NOT EXISTS yearly_counts (
		run_id TEXT    NOT NULL,
		year   INTEGER NOT NULL,
		count  INTEGER NOT NULL,
		PRIMARY KEY (run_id, year)
	);

	CREATE TABLE IF NOT EXISTS crisis_impacts (
		run_id         TEXT    NOT NULL,
		crisis         TEXT    NOT NULL,
		start_month    TEXT    NOT NULL,
		end_month      TEXT    NOT NULL,
		baseline_year  INTEGER NOT NULL,
		baseline_count INTEGER NOT NULL,
		crisis_count   INTEGER NOT NULL,
		point_change   REAL,
		mean_change    REAL,
		ci_lower       REAL,
		ci_upper       REAL,
		absolute       INTEGER NOT NULL DEFAULT 0,
		abs_mean       REAL,
		PRIMARY KEY (run_id, crisis)
	);

	CREATE TABLE IF NOT EXISTS forecasts (
		run_id          TEXT    NOT NULL,
		business_type   TEXT    NOT NULL,
		year            INTEGER NOT NULL,
		predicted_count REAL    NOT NULL,
		ci_lower        REAL    NOT NULL,
		ci_upper        REAL    NOT NULL,
		PRIMARY KEY (run_id, business_type, year)
	);

	CREATE TABLE IF NOT EXISTS cross_tabs (
		run_id    TEXT    NOT NULL,
		dimension TEXT    NOT NULL,
		year      INTEGER NOT NULL,
		category  TEXT    NOT NULL,
		count     INTEGER NOT NULL,
		PRIMARY KEY (run_id, dimension, year, category)
	);

	CREATE TABLE IF NOT EXISTS crisis_effect (
		run_id         TEXT    NOT NULL,
		term           TEXT    NOT NULL,
		estimate       REAL,
		bootstrap_mean REAL,
		ci_lower       REAL,
		ci_upper       REAL,
		significant    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, term)
	);

	CREATE TABLE IF NOT EXISTS vulnerability (
		run_id        TEXT    NOT NULL,
		business_type TEXT    NOT NULL,
		count         INTEGER NOT NULL,
		survived      INTEGER NOT NULL,
		survival_rate REAL    NOT NULL,
		PRIMARY KEY (run_id, business_type)
	);

	CREATE INDEX IF NOT EXISTS idx_licences_year          ON licences(year);
	CREATE INDEX IF NOT EXISTS idx_licences_crisis_period ON licences(crisis_period);
`

// SQLiteWriter persists analysis reports to a local SQLite file.
type SQLiteWriter struct {
	sqlStore
}

// NewSQLiteWriter opens (or creates) the database file and migrates it.
func NewSQLiteWriter(ctx context.Context, path string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	sw := &SQLiteWriter{sqlStore{
		db: db,
		d: dialect{
			name:        "sqlite",
			placeholder: func(int) string { return "?" },
			schema:      sqliteSchema,
		},
	}}
	if err := sw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return sw, nil
}
