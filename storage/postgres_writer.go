package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS licence_runs (
		run_id       VARCHAR(36) PRIMARY KEY,
		generated_at TIMESTAMPTZ NOT NULL,
		licences     INTEGER     NOT NULL
	);

	CREATE TABLE IF NOT EXISTS licences (
		id               SERIAL PRIMARY KEY,
		run_id           VARCHAR(36) NOT NULL,
		business_id      TEXT        NOT NULL DEFAULT '',
		business_name    TEXT        NOT NULL DEFAULT '',
		business_type    TEXT        NOT NULL DEFAULT '',
		business_subtype TEXT        NOT NULL DEFAULT '',
		status           VARCHAR(64) NOT NULL DEFAULT '',
		local_area       TEXT        NOT NULL DEFAULT '',
		source           VARCHAR(64) NOT NULL,
		issued_date      DATE,
		year             INTEGER,
		month            INTEGER,
		crisis_period    VARCHAR(64) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS monthly_counts (
		run_id      VARCHAR(36) NOT NULL,
		month_start DATE        NOT NULL,
		count       INTEGER     NOT NULL,
		PRIMARY KEY (run_id, month_start)
	);

	CREATE TABLE IF NOT EXISTS yearly_counts (
		run_id VARCHAR(36) NOT NULL,
		year   INTEGER     NOT NULL,
		count  INTEGER     NOT NULL,
		PRIMARY KEY (run_id, year)
	);

	CREATE TABLE IF NOT EXISTS crisis_impacts (
		run_id         VARCHAR(36)      NOT NULL,
		crisis         VARCHAR(128)     NOT NULL,
		start_month    CHAR(7)          NOT NULL,
		end_month      CHAR(7)          NOT NULL,
		baseline_year  INTEGER          NOT NULL,
		baseline_count INTEGER          NOT NULL,
		crisis_count   INTEGER          NOT NULL,
		point_change   DOUBLE PRECISION,
		mean_change    DOUBLE PRECISION,
		ci_lower       DOUBLE PRECISION,
		ci_upper       DOUBLE PRECISION,
		absolute       BOOLEAN          NOT NULL DEFAULT FALSE,
		abs_mean       DOUBLE PRECISION,
		PRIMARY KEY (run_id, crisis)
	);

	CREATE TABLE IF NOT EXISTS forecasts (
		run_id          VARCHAR(36)      NOT NULL,
		business_type   TEXT             NOT NULL,
		year            INTEGER          NOT NULL,
		predicted_count DOUBLE PRECISION NOT NULL,
		ci_lower        DOUBLE PRECISION NOT NULL,
		ci_upper        DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, business_type, year)
	);

	CREATE TABLE IF NOT EXISTS cross_tabs (
		run_id    VARCHAR(36) NOT NULL,
		dimension VARCHAR(32) NOT NULL,
		year      INTEGER     NOT NULL,
		category  TEXT        NOT NULL,
		count     INTEGER     NOT NULL,
		PRIMARY KEY (run_id, dimension, year, category)
	);

	CREATE TABLE IF NOT EXISTS crisis_effect (
		run_id         VARCHAR(36)      NOT NULL,
		term           VARCHAR(16)      NOT NULL,
		estimate       DOUBLE PRECISION,
		bootstrap_mean DOUBLE PRECISION,
		ci_lower       DOUBLE PRECISION,
		ci_upper       DOUBLE PRECISION,
		significant    BOOLEAN          NOT NULL DEFAULT FALSE,
		PRIMARY KEY (run_id, term)
	);

	CREATE TABLE IF NOT EXISTS vulnerability (
		run_id        VARCHAR(36)      NOT NULL,
		business_type TEXT             NOT NULL,
		count         INTEGER          NOT NULL,
		survived      INTEGER          NOT NULL,
		survival_rate DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, business_type)
	);

	CREATE INDEX IF NOT EXISTS idx_licences_year          ON licences(year);
	CREATE INDEX IF NOT EXISTS idx_licences_crisis_period ON licences(crisis_period);
	CREATE INDEX IF NOT EXISTS idx_licences_business_type ON licences(business_type);
`

// PostgresWriter persists analysis reports to PostgreSQL.
type PostgresWriter struct {
	sqlStore
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{sqlStore{
		db: db,
		d: dialect{
			name:        "postgres",
			placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
			schema:      postgresSchema,
		},
	}}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}
