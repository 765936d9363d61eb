package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreNone, cfg.StoreBackend)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 15, cfg.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1000, cfg.ImpactBootstrap)
	assert.Equal(t, 500, cfg.ForecastBootstrap)
	assert.Equal(t, 2025, cfg.ForecastStartYear)
	assert.Equal(t, 5, cfg.ForecastHorizon)
	assert.Equal(t, 5, cfg.ForecastMinYears)
	assert.Equal(t, 10, cfg.TopBusinessTypes)
	assert.InDelta(t, 2.0, cfg.SurvivalMinYears, 1e-9)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_BACKEND=sqlite\nMAX_WORKERS=4\nRAW_DIR=/tmp/raw\n"), 0o644))

	// godotenv does not override variables that are already set.
	t.Setenv("STORE_BACKEND", "")
	require.NoError(t, os.Unsetenv("STORE_BACKEND"))
	t.Setenv("MAX_WORKERS", "")
	require.NoError(t, os.Unsetenv("MAX_WORKERS"))
	t.Setenv("RAW_DIR", "")
	require.NoError(t, os.Unsetenv("RAW_DIR"))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, filepath.Join("/tmp/raw", "1997_2012.csv"), cfg.RawPath("1997_2012"))
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5433", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "licences", PostgresSSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=licences sslmode=disable", cfg.DSN())
}
