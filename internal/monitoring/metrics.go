// internal/monitoring/metrics.go

// Package monitoring counts pipeline activity and flushes the counts
// in Prometheus text format for a node_exporter textfile collector to
// pick up. The process is a batch job, so metrics are written once at
// the end of a run rather than served.
package monitoring

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	fetched   prometheus.Counter
	kept      prometheus.Counter
	skipped   *prometheus.CounterVec
	published prometheus.Counter
	mirrored  prometheus.Counter
	errors    *prometheus.CounterVec
	lastRun   prometheus.Gauge
}

// New creates a Metrics with all counters registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "items_fetched_total",
		Help:      "Items received from the upstream API.",
	})
	m.kept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "items_kept_total",
		Help:      "Items that passed filtering and deduplication.",
	})
	m.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "items_skipped_total",
		Help:      "Items dropped before export, by reason.",
	}, []string{"reason"})
	m.published = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "posts_published_total",
		Help:      "Posts created or updated on the destination site.",
	})
	m.mirrored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "images_mirrored_total",
		Help:      "Images uploaded to the destination site.",
	})
	m.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanzapress",
		Name:      "errors_total",
		Help:      "Non-fatal errors, by pipeline stage.",
	}, []string{"stage"})
	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fanzapress",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})

	m.registry.MustRegister(m.fetched, m.kept, m.skipped, m.published, m.mirrored, m.errors, m.lastRun)
	return m
}

func (m *Metrics) ItemFetched()              { m.fetched.Inc() }
func (m *Metrics) ItemKept()                 { m.kept.Inc() }
func (m *Metrics) ItemSkipped(reason string) { m.skipped.WithLabelValues(reason).Inc() }
func (m *Metrics) PostPublished()            { m.published.Inc() }
func (m *Metrics) ImageMirrored()            { m.mirrored.Inc() }
func (m *Metrics) Error(stage string)        { m.errors.WithLabelValues(stage).Inc() }

// Flush stamps the run end time and writes the registry to path in
// Prometheus text format. An empty path disables the write.
func (m *Metrics) Flush(path string, unixNow int64) error {
	if path == "" {
		return nil
	}
	m.lastRun.Set(float64(unixNow))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
