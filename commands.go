package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"licence-trends/config"
	"licence-trends/fetcher/opendata"
	"licence-trends/metrics"
	"licence-trends/models"
	"licence-trends/services"
	"licence-trends/storage"
	"licence-trends/utils"
)

// App carries the per-invocation dependencies shared by every subcommand.
type App struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *metrics.Metrics
	out     io.Writer
}

func NewApp(cfg *config.Config, logger *utils.Logger, m *metrics.Metrics) *App {
	return &App{cfg: cfg, logger: logger, metrics: m, out: os.Stdout}
}

// Fetch downloads every source extract into RAW_DIR.
func (a *App) Fetch(ctx context.Context) error {
	a.logger.Info("=== Fetching business licence extracts ===")
	a.logger.Info("Config: page size %d | workers %d | rate %dms | retries %d",
		a.cfg.PageSize, a.cfg.MaxWorkers, a.cfg.RateLimitMs, a.cfg.MaxRetries)

	w, err := storage.NewCSVWriter(a.cfg.RawDir)
	if err != nil {
		return err
	}
	defer w.Close()

	saved, err := opendata.New(a.cfg, a.logger, a.metrics).FetchAll(ctx, config.Sources, w)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		return fmt.Errorf("fetch: %w", services.ErrNoInput)
	}
	a.logger.Info("Raw extracts saved to %s", a.cfg.RawDir)
	return nil
}

// Clean normalizes the raw extracts and writes the merged canonical table.
// It returns the normalized batches for an immediate analysis pass.
func (a *App) Clean(ctx context.Context) ([]*models.RawTable, []models.SourceSummary, error) {
	p, err := services.NewPipeline(a.cfg, a.logger, a.metrics)
	if err != nil {
		return nil, nil, err
	}
	raw, summaries, err := p.LoadSources(ctx, config.Sources)
	if err != nil {
		return nil, summaries, err
	}
	batches := p.Clean(raw)
	merged := services.Merge(batches)

	w, err := storage.NewCSVWriter(a.cfg.CleanedDir)
	if err != nil {
		return nil, summaries, err
	}
	defer w.Close()
	if err := w.WriteTable(filepath.Base(a.cfg.MergedPath()), merged); err != nil {
		return nil, summaries, err
	}
	a.logger.Info("Merged %d licences from %d sources into %s", len(merged.Rows), len(batches), a.cfg.MergedPath())
	return batches, summaries, nil
}

// Analyze reads the merged table written by Clean and produces every artifact.
func (a *App) Analyze(ctx context.Context) error {
	merged, err := a.readMerged()
	if err != nil {
		return err
	}
	p, err := services.NewPipeline(a.cfg, a.logger, a.metrics)
	if err != nil {
		return err
	}
	summary := models.SourceSummary{
		Name: filepath.Base(a.cfg.MergedPath()), Path: a.cfg.MergedPath(),
		Rows: len(merged.Rows), Columns: len(merged.Columns),
	}
	report, err := p.Analyze(ctx, services.SplitBySource(merged), []models.SourceSummary{summary})
	if err != nil {
		return err
	}
	return a.publish(ctx, report)
}

// Run cleans and analyzes without re-reading the merged table.
func (a *App) Run(ctx context.Context) error {
	batches, summaries, err := a.Clean(ctx)
	if err != nil {
		return err
	}
	p, err := services.NewPipeline(a.cfg, a.logger, a.metrics)
	if err != nil {
		return err
	}
	report, err := p.Analyze(ctx, batches, summaries)
	if err != nil {
		return err
	}
	return a.publish(ctx, report)
}

// Diagnose profiles the merged table, or the raw extracts when no merged
// table has been written yet.
func (a *App) Diagnose(ctx context.Context) error {
	p, err := services.NewPipeline(a.cfg, a.logger, a.metrics)
	if err != nil {
		return err
	}

	merged, err := a.readMerged()
	if errors.Is(err, storage.ErrSourceMissing) {
		a.logger.Info("No merged table yet, diagnosing the raw extracts")
		raw, _, lerr := p.LoadSources(ctx, config.Sources)
		if lerr != nil {
			return lerr
		}
		merged, err = services.Merge(p.Clean(raw)), nil
	}
	if err != nil {
		return err
	}

	services.NewInsightService(a.logger).WithOutput(a.out).PrintDiagnostics(p.Diagnose(merged))
	return nil
}

// WriteMetrics dumps the registry when METRICS_PATH is set.
func (a *App) WriteMetrics() error {
	if a.cfg.MetricsPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.MetricsPath), 0755); err != nil {
		return fmt.Errorf("metrics: create dir: %w", err)
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsPath); err != nil {
		return err
	}
	a.logger.Debug("Metrics written to %s", a.cfg.MetricsPath)
	return nil
}

func (a *App) readMerged() (*models.RawTable, error) {
	t, err := storage.ReadRawCSV(a.cfg.MergedPath(), "merged")
	if errors.Is(err, storage.ErrSourceMissing) {
		return nil, fmt.Errorf("analyze: run `licences clean` first: %w", err)
	}
	return t, err
}

// publish writes the report to every configured sink concurrently and prints
// the console summary.
func (a *App) publish(ctx context.Context, report *models.Report) error {
	sinks, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if cerr := s.Close(); cerr != nil {
				a.logger.Warn("Closing sink failed: %v", cerr)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		g.Go(func() error {
			return s.Write(gctx, report)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	a.logger.Info("Run %s written to %d sinks (artifacts in %s)", report.RunID, len(sinks), a.cfg.CleanedDir)

	insights := services.NewInsightService(a.logger).WithOutput(a.out)
	insights.Print(insights.Generate(report))
	return nil
}

func (a *App) openSinks(ctx context.Context) ([]storage.ReportWriter, error) {
	csvWriter, err := storage.NewCSVWriter(a.cfg.CleanedDir)
	if err != nil {
		return nil, err
	}
	sinks := []storage.ReportWriter{csvWriter}

	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	switch a.cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := storage.NewPostgresWriter(ctx, a.cfg.DSN())
		if err != nil {
			closeAll()
			a.logger.Error("Make sure PostgreSQL is reachable at %s:%s", a.cfg.PostgresHost, a.cfg.PostgresPort)
			return nil, err
		}
		sinks = append(sinks, pg)
	case config.StoreSQLite:
		sq, err := storage.NewSQLiteWriter(ctx, a.cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, sq)
	}

	if a.cfg.XLSXOutputPath != "" {
		x, err := storage.NewXLSXWriter(a.cfg.XLSXOutputPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, x)
	}
	return sinks, nil
}
