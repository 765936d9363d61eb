// Package metrics holds the Prometheus collectors for fetch and pipeline runs.
// Nothing is served over HTTP; the registry is dumped to a node-exporter
// textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Page outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	FetchPages       *prometheus.CounterVec
	FetchRecords     *prometheus.CounterVec
	FetchShortfall   *prometheus.GaugeVec
	StageRecords     *prometheus.GaugeVec
	ParseFailures    *prometheus.CounterVec
	SourcesMissing   prometheus.Counter
	BootstrapSkipped *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		FetchPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licences",
			Name:      "fetch_pages_total",
			Help:      "Pages requested from the open-data API by outcome.",
		}, []string{"dataset", "outcome"}),
		FetchRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licences",
			Name:      "fetch_records_total",
			Help:      "Records received from the open-data API.",
		}, []string{"dataset"}),
		FetchShortfall: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "licences",
			Name:      "fetch_shortfall_records",
			Help:      "API total_count minus records actually fetched.",
		}, []string{"dataset"}),
		StageRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "licences",
			Name:      "stage_records",
			Help:      "Records emitted by each pipeline stage.",
		}, []string{"stage"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licences",
			Name:      "date_parse_failures_total",
			Help:      "Populated date values that could not be parsed.",
		}, []string{"column"}),
		SourcesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "licences",
			Name:      "sources_missing_total",
			Help:      "Raw extracts that were expected but absent.",
		}),
		BootstrapSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licences",
			Name:      "bootstrap_skipped_draws_total",
			Help:      "Bootstrap draws discarded as degenerate.",
		}, []string{"estimator"}),
	}

	reg.MustRegister(
		m.FetchPages, m.FetchRecords, m.FetchShortfall,
		m.StageRecords, m.ParseFailures, m.SourcesMissing, m.BootstrapSkipped,
	)
	return m
}

// WriteTextfile dumps the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
