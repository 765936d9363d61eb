package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"licence-trends/config"
	"licence-trends/metrics"
	"licence-trends/models"
	"licence-trends/storage"
	"licence-trends/utils"
)

// ErrNoInput is returned when not a single raw extract could be loaded.
var ErrNoInput = errors.New("no usable input table")

// sourceColumn tags every merged row with the extract it came from.
const sourceColumn = "source"

// Pipeline wires the normalizer, reconciler, classifier, aggregator and
// estimators into the clean and analyze stages.
type Pipeline struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *metrics.Metrics

	normalizer *Normalizer
	reconciler *DateReconciler
	classifier *CrisisClassifier
	aggregator *Aggregator
	impact     *ImpactEstimator
	forecast   *ForecastEstimator
	effect     *EffectModel
	survival   *SurvivalLabeler
}

// NewPipeline builds every stage from cfg. The crisis registry comes from
// cfg.CrisisRegistryPath when set, otherwise the built-in registry is used.
func NewPipeline(cfg *config.Config, logger *utils.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if m == nil {
		m = metrics.New()
	}

	registry := DefaultCrisisRegistry()
	if cfg.CrisisRegistryPath != "" {
		r, err := LoadCrisisRegistry(cfg.CrisisRegistryPath)
		if err != nil {
			return nil, err
		}
		registry = r
		logger.Info("[pipeline] Loaded %d crisis windows from %s", len(registry), cfg.CrisisRegistryPath)
	}

	classifier := NewCrisisClassifier(registry)
	for _, o := range classifier.Overlaps() {
		logger.Warn("[crisis] %s overlaps %s; months in both are classified as %s", o.First, o.Second, o.First)
	}

	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		normalizer: NewNormalizer(logger),
		reconciler: NewDateReconciler(logger),
		classifier: classifier,
		aggregator: NewAggregator(logger, cfg.TopBusinessTypes),
		impact:     NewImpactEstimator(logger, cfg.ImpactBootstrap, cfg.RandomSeed),
		forecast: NewForecastEstimator(logger, ForecastOptions{
			StartYear: cfg.ForecastStartYear,
			Horizon:   cfg.ForecastHorizon,
			MinYears:  cfg.ForecastMinYears,
			Resamples: cfg.ForecastBootstrap,
			Seed:      cfg.RandomSeed,
		}),
		effect: NewEffectModel(logger, classifier, cfg.EffectBootstrap, cfg.RandomSeed),
		survival: NewSurvivalLabeler(logger, SurvivalPolicy{
			MinYears:   cfg.SurvivalMinYears,
			MinSamples: cfg.VulnerabilityMinSamples,
		}),
	}, nil
}

// Classifier exposes the crisis classifier built from the registry.
func (p *Pipeline) Classifier() *CrisisClassifier {
	return p.classifier
}

// LoadSources reads every configured raw extract in parallel. Missing files
// are skipped with a warning; ErrNoInput is returned if all are missing.
func (p *Pipeline) LoadSources(ctx context.Context, sources []config.Source) ([]*models.RawTable, []models.SourceSummary, error) {
	tables := make([]*models.RawTable, len(sources))
	summaries := make([]models.SourceSummary, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		path := p.cfg.RawPath(src.Name)
		summaries[i] = models.SourceSummary{Name: src.Name, Path: path}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := storage.ReadRawCSV(path, src.Name)
			if errors.Is(err, storage.ErrSourceMissing) {
				summaries[i].Missing = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("pipeline: load %s: %w", src.Name, err)
			}
			tables[i] = t
			summaries[i].Rows = len(t.Rows)
			summaries[i].Columns = len(t.Columns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var loaded []*models.RawTable
	for i, t := range tables {
		if summaries[i].Missing {
			p.metrics.SourcesMissing.Inc()
			p.logger.Warn("[pipeline] %s not found at %s, skipping", summaries[i].Name, summaries[i].Path)
			continue
		}
		p.logger.Info("[pipeline] Loaded %s: %d rows, %d columns", t.Source, len(t.Rows), len(t.Columns))
		loaded = append(loaded, t)
	}
	if len(loaded) == 0 {
		return nil, summaries, ErrNoInput
	}
	return loaded, summaries, nil
}

// Clean normalizes each loaded extract. The returned batches keep their own
// schema; Merge combines them into the single canonical table.
func (p *Pipeline) Clean(tables []*models.RawTable) []*models.RawTable {
	out := make([]*models.RawTable, 0, len(tables))
	total := 0
	for _, t := range tables {
		n := p.normalizer.Normalize(t)
		total += len(n.Rows)
		out = append(out, n)
	}
	p.metrics.StageRecords.WithLabelValues("normalized").Set(float64(total))
	return out
}

// Merge concatenates normalized batches and tags each row with its source.
// Input tables are not modified.
func Merge(batches []*models.RawTable) *models.RawTable {
	tagged := make([]*models.RawTable, len(batches))
	for i, b := range batches {
		t := &models.RawTable{Source: b.Source, Columns: append(append([]string(nil), b.Columns...), sourceColumn)}
		t.Rows = make([]map[string]string, len(b.Rows))
		for j, row := range b.Rows {
			r := make(map[string]string, len(row)+1)
			for k, v := range row {
				r[k] = v
			}
			r[sourceColumn] = b.Source
			t.Rows[j] = r
		}
		tagged[i] = t
	}
	return storage.MergeTables("merged", tagged)
}

// SplitBySource undoes Merge. Each batch's schema is the merged columns that
// are populated in at least one of its rows.
func SplitBySource(merged *models.RawTable) []*models.RawTable {
	var order []string
	bySource := make(map[string]*models.RawTable)
	for _, row := range merged.Rows {
		src := row[sourceColumn]
		if src == "" {
			src = merged.Source
		}
		b, ok := bySource[src]
		if !ok {
			b = &models.RawTable{Source: src}
			bySource[src] = b
			order = append(order, src)
		}
		b.Rows = append(b.Rows, row)
	}

	out := make([]*models.RawTable, 0, len(order))
	for _, src := range order {
		b := bySource[src]
		for _, col := range merged.Columns {
			if col == sourceColumn {
				continue
			}
			for _, row := range b.Rows {
				if _, ok := row[col]; ok {
					b.Columns = append(b.Columns, col)
					break
				}
			}
		}
		out = append(out, b)
	}
	return out
}

// Reconcile resolves canonical dates batch by batch and classifies every
// licence into a crisis window.
func (p *Pipeline) Reconcile(batches []*models.RawTable) []*models.Licence {
	var licences []*models.Licence
	for _, b := range batches {
		ls, stats := p.reconciler.Reconcile(b)
		for col, n := range stats.ParseFailures {
			p.metrics.ParseFailures.WithLabelValues(col).Add(float64(n))
			p.logger.Warn("[pipeline] %s: %d unparseable values in %s", b.Source, n, col)
		}
		licences = append(licences, ls...)
	}
	p.metrics.StageRecords.WithLabelValues("reconciled").Set(float64(len(licences)))
	return p.classifier.ClassifyAll(licences)
}

// Analyze runs reconciliation, aggregation and every estimator over the
// normalized batches and returns the full report.
func (p *Pipeline) Analyze(ctx context.Context, batches []*models.RawTable, sources []models.SourceSummary) (*models.Report, error) {
	if len(batches) == 0 {
		return nil, ErrNoInput
	}
	start := time.Now()

	licences := p.Reconcile(batches)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := p.aggregator.Aggregate(licences)
	p.metrics.StageRecords.WithLabelValues("dated").Set(float64(series.Dated))
	p.metrics.StageRecords.WithLabelValues("monthly").Set(float64(len(series.Monthly)))

	skippedImpact, skippedEffect := p.impact.Skipped, p.effect.Skipped
	impacts := p.impact.Estimate(licences, p.classifier.Registry())
	p.metrics.BootstrapSkipped.WithLabelValues("impact").Add(float64(p.impact.Skipped - skippedImpact))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	forecasts := p.forecast.Forecast(licences)
	p.metrics.StageRecords.WithLabelValues("forecast").Set(float64(len(forecasts)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	effect := p.effect.Fit(series.Monthly)
	p.metrics.BootstrapSkipped.WithLabelValues("effect").Add(float64(p.effect.Skipped - skippedEffect))

	vulnerability := p.survival.Vulnerability(licences)

	var columns []string
	seen := make(map[string]struct{})
	for _, b := range batches {
		for _, c := range b.Columns {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				columns = append(columns, c)
			}
		}
	}

	report := &models.Report{
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC(),
		Sources:       sources,
		Columns:       columns,
		Licences:      licences,
		Series:        series,
		Impacts:       impacts,
		Forecasts:     forecasts,
		Effect:        effect,
		Vulnerability: vulnerability,
	}
	p.logger.Info("[pipeline] Run %s analysed %d licences in %s",
		report.RunID, len(licences), time.Since(start).Round(time.Millisecond))
	return report, nil
}

// Diagnose profiles a merged table without writing anything.
func (p *Pipeline) Diagnose(merged *models.RawTable) *Diagnostics {
	licences := p.Reconcile(SplitBySource(merged))
	return Diagnose(merged, licences, p.cfg.TopBusinessTypes)
}
