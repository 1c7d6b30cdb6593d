// Package metrics owns the Prometheus metrics of one docrank run. A batch
// run has no scrape endpoint, so the registry is written to a node-exporter
// textfile at the end of the run when a path is configured.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Block result label values.
const (
	BlockKept      = "kept"
	BlockDiscarded = "discarded"
)

// Metrics holds every metric recorded during a run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// collectionsTotal counts collections by outcome.
	collectionsTotal *prometheus.CounterVec

	// documentsTotal counts documents by outcome.
	documentsTotal *prometheus.CounterVec

	// blocksTotal counts extracted blocks, kept or discarded by the length filter.
	blocksTotal *prometheus.CounterVec

	// embedDuration records the wall-clock duration of logical embedding calls.
	embedDuration *prometheus.HistogramVec

	// rankResults records how many ranked sections each collection produced.
	rankResults prometheus.Histogram

	// lastRun is the unix time the run finished.
	lastRun prometheus.Gauge
}

// New registers all metrics against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		collectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrank",
			Name:      "collections_total",
			Help:      "Collections handled, partitioned by outcome.",
		}, []string{"outcome"}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrank",
			Name:      "documents_total",
			Help:      "PDF documents handled, partitioned by outcome.",
		}, []string{"outcome"}),

		blocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docrank",
			Name:      "blocks_total",
			Help:      "Text blocks extracted, partitioned by whether they passed the length filter.",
		}, []string{"result"}),

		embedDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docrank",
			Name:      "embed_duration_seconds",
			Help:      "Wall-clock duration of embedding calls.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"outcome"}),

		rankResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docrank",
			Name:      "rank_results",
			Help:      "Number of ranked sections written per collection.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10, 20},
		}),

		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docrank",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished.",
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Collection records one collection outcome.
func (m *Metrics) Collection(outcome string) {
	if m == nil {
		return
	}
	m.collectionsTotal.WithLabelValues(outcome).Inc()
}

// Document records one document outcome.
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

// Blocks records kept and discarded block counts of one document.
func (m *Metrics) Blocks(kept, discarded int) {
	if m == nil {
		return
	}
	m.blocksTotal.WithLabelValues(BlockKept).Add(float64(kept))
	m.blocksTotal.WithLabelValues(BlockDiscarded).Add(float64(discarded))
}

// ObserveEmbed records one embedding call. Its signature matches
// embedder.ObserveFunc.
func (m *Metrics) ObserveEmbed(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeProcessed
	if err != nil {
		outcome = OutcomeError
	}
	m.embedDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RankResults records the number of ranked sections of one collection.
func (m *Metrics) RankResults(n int) {
	if m == nil {
		return
	}
	m.rankResults.Observe(float64(n))
}

// WriteTextfile stamps the run end time and writes the registry to path in
// Prometheus text format. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	m.lastRun.SetToCurrentTime()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create directory for %s: %w", path, err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
