package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"licence-trends/config"
	"licence-trends/metrics"
	"licence-trends/services"
	"licence-trends/storage"
	"licence-trends/utils"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StoreBackend:            config.StoreSQLite,
		SQLitePath:              filepath.Join(dir, "db", "licences.sqlite"),
		RawDir:                  filepath.Join(dir, "raw"),
		CleanedDir:              filepath.Join(dir, "cleaned"),
		XLSXOutputPath:          filepath.Join(dir, "cleaned", "report.xlsx"),
		MetricsPath:             filepath.Join(dir, "metrics", "licences.prom"),
		ImpactBootstrap:         200,
		ForecastBootstrap:       50,
		EffectBootstrap:         100,
		ForecastStartYear:       2025,
		ForecastHorizon:         5,
		ForecastMinYears:        5,
		TopBusinessTypes:        10,
		SurvivalMinYears:        2,
		VulnerabilityMinSamples: 1,
	}
	require.NoError(t, os.MkdirAll(cfg.RawDir, 0755))

	var out bytes.Buffer
	a := NewApp(cfg, utils.NewNopLogger(), metrics.New())
	a.out = &out
	return a, &out
}

func writeCSV(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
}

// seedRaw writes a legacy extract with plain dates and a modern one with
// ISO-8601 timestamps; the 2024+ extract is deliberately absent.
func seedRaw(t *testing.T, cfg *config.Config) {
	t.Helper()
	legacy := [][]string{{"LicenceRSN", "Issued Date", "Status", "BusinessType", "Year"}}
	n := 0
	for y := 2005; y <= 2012; y++ {
		for i := 0; i < 3; i++ {
			n++
			legacy = append(legacy, []string{
				fmt.Sprintf("L%d", n), fmt.Sprintf("%d-0%d-15", y, i+2), "Expired", " Retail ", "",
			})
		}
	}
	// Undated except for the year column
	legacy = append(legacy, []string{"L999", "", "Active", "Office", "2009.0"})
	writeCSV(t, cfg.RawPath("1997_2012"), legacy)

	modern := [][]string{{"licencersn", "issueddate", "expireddate", "status", "businesstype"}}
	for y := 2013; y <= 2023; y++ {
		for i := 0; i < 2; i++ {
			n++
			modern = append(modern, []string{
				fmt.Sprintf("L%d", n), fmt.Sprintf("%d-04-15T00:00:00+00:00", y),
				fmt.Sprintf("%d-04-15T00:00:00+00:00", y+3), "Issued", "Retail",
			})
		}
	}
	modern = append(modern, []string{"L1000", "not a date", "", "nan", "Office"})
	writeCSV(t, cfg.RawPath("2013_2024"), modern)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunWritesEveryArtifact(t *testing.T) {
	a, out := testApp(t)
	seedRaw(t, a.cfg)
	ctx := context.Background()

	require.NoError(t, a.Run(ctx))
	require.NoError(t, a.WriteMetrics())

	for _, f := range []string{
		filepath.Base(a.cfg.MergedPath()),
		storage.ReconciledFile, storage.MonthlyFile, storage.YearlyFile,
		storage.StatusByYearFile, storage.TypeByYearFile, storage.ForecastFile,
		storage.CrisisResultsFile, storage.EffectFile, storage.VulnerabilityFile,
	} {
		assert.FileExists(t, a.cfg.CleanedPath(f))
	}

	yearly := readCSV(t, a.cfg.CleanedPath(storage.YearlyFile))
	assert.Equal(t, []string{"year", "count"}, yearly[0])
	assert.Equal(t, []string{"2005", "3"}, yearly[1])
	assert.Equal(t, []string{"2023", "2"}, yearly[len(yearly)-1])

	forecast := readCSV(t, a.cfg.CleanedPath(storage.ForecastFile))
	assert.Equal(t, []string{"businesstype", "year", "predicted_count", "ci_lower", "ci_upper"}, forecast[0])
	// Only retail has five or more years of history.
	assert.Len(t, forecast, 1+5)
	assert.Equal(t, "retail", forecast[1][0])

	crises := readCSV(t, a.cfg.CleanedPath(storage.CrisisResultsFile))
	assert.Len(t, crises, 1+5)

	sq, err := storage.NewSQLiteWriter(ctx, a.cfg.SQLitePath)
	require.NoError(t, err)
	defer sq.Close()
	counts, err := sq.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["licence_runs"])
	assert.Equal(t, 5, counts["crisis_impacts"])
	assert.Equal(t, 3*8+1+2*11+1, counts["licences"])

	wb, err := excelize.OpenFile(a.cfg.XLSXOutputPath)
	require.NoError(t, err)
	defer wb.Close()
	assert.Contains(t, wb.GetSheetList(), storage.SheetForecast)

	prom, err := os.ReadFile(a.cfg.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "licences_sources_missing_total 1")
	assert.Contains(t, string(prom), `licences_date_parse_failures_total{column="issueddate"} 1`)

	assert.Contains(t, out.String(), "BUSINESS LICENCE CRISIS REPORT")
}

func TestCleanThenAnalyzeMatchesRun(t *testing.T) {
	a, _ := testApp(t)
	seedRaw(t, a.cfg)
	ctx := context.Background()

	require.NoError(t, a.Run(ctx))
	runYearly := readCSV(t, a.cfg.CleanedPath(storage.YearlyFile))
	runMonthly := readCSV(t, a.cfg.CleanedPath(storage.MonthlyFile))

	_, _, err := a.Clean(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Analyze(ctx))

	assert.Equal(t, runYearly, readCSV(t, a.cfg.CleanedPath(storage.YearlyFile)))
	assert.Equal(t, runMonthly, readCSV(t, a.cfg.CleanedPath(storage.MonthlyFile)))
}

func TestAnalyzeWithoutMergedTable(t *testing.T) {
	a, _ := testApp(t)
	err := a.Analyze(context.Background())
	assert.True(t, errors.Is(err, storage.ErrSourceMissing), "got %v", err)
}

func TestRunWithoutAnySource(t *testing.T) {
	a, _ := testApp(t)
	err := a.Run(context.Background())
	assert.ErrorIs(t, err, services.ErrNoInput)
}

func TestDiagnoseFallsBackToRawExtracts(t *testing.T) {
	a, out := testApp(t)
	seedRaw(t, a.cfg)

	require.NoError(t, a.Diagnose(context.Background()))
	assert.Contains(t, out.String(), "DATASET DIAGNOSTICS")
	assert.Contains(t, out.String(), "issueddate")
	assert.NoFileExists(t, a.cfg.MergedPath())
}
