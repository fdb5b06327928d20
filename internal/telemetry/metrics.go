// Package telemetry exposes index and search metrics via
// github.com/prometheus/client_golang, grounded on conexus's
// internal/observability.MetricsCollector pattern (promauto-registered
// vectors behind a single collector struct, swappable registry for tests).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for one running server.
type Metrics struct {
	IndexDuration  *prometheus.HistogramVec
	IndexRuns      *prometheus.CounterVec
	FilesIndexed   *prometheus.CounterVec
	ChunksEmitted  *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	SearchRequests *prometheus.CounterVec
}

// New creates metrics registered against the default Prometheus registerer.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a specific registerer, so tests can
// use a private prometheus.NewRegistry() instead of the process-global one.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "ctxbrowser"
	}
	f := promauto.With(reg)

	return &Metrics{
		IndexDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_duration_seconds",
			Help:      "Duration of a full indexing pipeline run, by terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		IndexRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Total indexing pipeline runs, by terminal status",
		}, []string{"status"}),
		FilesIndexed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_indexed_total",
			Help:      "Total files processed to completion (Persisting) across all runs",
		}, []string{"collection_id"}),
		ChunksEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total chunks embedded across all runs",
		}, []string{"collection_id"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "Hybrid search request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection_id"}),
		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total search requests, by outcome",
		}, []string{"collection_id", "outcome"}),
	}
}

// ObserveIndexRun records one terminal pipeline outcome and its duration.
func (m *Metrics) ObserveIndexRun(status string, seconds float64) {
	m.IndexRuns.WithLabelValues(status).Inc()
	m.IndexDuration.WithLabelValues(status).Observe(seconds)
}

// AddFilesIndexed increments the files-completed counter for a collection.
func (m *Metrics) AddFilesIndexed(collectionID string, n int) {
	if n <= 0 {
		return
	}
	m.FilesIndexed.WithLabelValues(collectionID).Add(float64(n))
}

// AddChunksEmitted increments the chunks-embedded counter for a collection.
func (m *Metrics) AddChunksEmitted(collectionID string, n int) {
	if n <= 0 {
		return
	}
	m.ChunksEmitted.WithLabelValues(collectionID).Add(float64(n))
}

// ObserveSearch records one search request's latency and outcome.
func (m *Metrics) ObserveSearch(collectionID, outcome string, seconds float64) {
	m.SearchRequests.WithLabelValues(collectionID, outcome).Inc()
	m.SearchLatency.WithLabelValues(collectionID).Observe(seconds)
}
