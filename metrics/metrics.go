// Package metrics provides Prometheus metrics for lexgraph
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for lexgraph.
// Every recording method is a no-op on a nil *Metrics.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Search metrics
	SearchesTotal       *prometheus.CounterVec
	SearchDuration      prometheus.Histogram
	SearchResults       prometheus.Histogram
	SearchFlags         *prometheus.CounterVec
	FingerprintsTotal   *prometheus.CounterVec
	FingerprintDuration prometheus.Histogram
	MassCaptured        prometheus.Histogram

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Graph metrics
	GraphVersion      prometheus.Gauge
	GraphNodes        prometheus.Gauge
	GraphEdges        *prometheus.GaugeVec
	BaselineDegraded  prometheus.Gauge
	IngestionsTotal   *prometheus.CounterVec
	IngestionDuration prometheus.Histogram
	EmbeddedNodes     *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexgraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.SearchesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_searches_total",
			Help: "Total number of searches",
		},
		[]string{"status"},
	)

	m.SearchDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexgraph_search_duration_seconds",
			Help:    "Duration of searches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, .75, 1, 2.5, 5},
		},
	)

	m.SearchResults = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexgraph_search_results",
			Help:    "Number of ranked results per search before pagination",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	m.SearchFlags = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_search_flags_total",
			Help: "Degradation flags raised by searches",
		},
		[]string{"flag"},
	)

	m.FingerprintsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_fingerprints_total",
			Help: "Total number of relatedness fingerprints computed",
		},
		[]string{"converged"},
	)

	m.FingerprintDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexgraph_fingerprint_duration_seconds",
			Help:    "Duration of fingerprint computation in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, .75, 1},
		},
	)

	m.MassCaptured = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexgraph_fingerprint_mass_captured",
			Help:    "Share of walk mass kept inside the expanded subgraph",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	m.CacheLookupsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_cache_lookups_total",
			Help: "Cache lookups by cache and outcome",
		},
		[]string{"cache", "outcome"},
	)

	m.GraphVersion = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexgraph_graph_version",
			Help: "Currently published graph version",
		},
	)

	m.GraphNodes = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexgraph_graph_nodes",
			Help: "Number of nodes in the published graph",
		},
	)

	m.GraphEdges = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexgraph_graph_edges",
			Help: "Number of edges in the published graph by kind",
		},
		[]string{"kind"},
	)

	m.BaselineDegraded = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexgraph_baseline_degraded",
			Help: "1 when the published baseline is the uniform fallback",
		},
	)

	m.IngestionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_ingestions_total",
			Help: "Total number of ingestion passes",
		},
		[]string{"status"},
	)

	m.IngestionDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexgraph_ingestion_duration_seconds",
			Help:    "Duration of ingestion passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	m.EmbeddedNodes = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgraph_embedded_nodes_total",
			Help: "Nodes given vectors during ingestion",
		},
		[]string{"source"},
	)

	return m
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSearch records a completed search and its degradation flags.
func (m *Metrics) RecordSearch(status string, duration time.Duration, results int, flags ...string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(duration.Seconds())
	m.SearchResults.Observe(float64(results))
	for _, f := range flags {
		m.SearchFlags.WithLabelValues(f).Inc()
	}
}

// RecordFingerprint records one fingerprint computation.
func (m *Metrics) RecordFingerprint(converged bool, massCaptured float64, duration time.Duration) {
	if m == nil {
		return
	}
	label := "true"
	if !converged {
		label = "false"
	}
	m.FingerprintsTotal.WithLabelValues(label).Inc()
	m.FingerprintDuration.Observe(duration.Seconds())
	m.MassCaptured.Observe(massCaptured)
}

// RecordCacheLookup records a cache hit, miss or stale entry.
func (m *Metrics) RecordCacheLookup(cache, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(cache, outcome).Inc()
}

// RecordGraph records the shape of a newly published graph.
func (m *Metrics) RecordGraph(version uint64, nodes, citations, terms, hierarchy int, degraded bool) {
	if m == nil {
		return
	}
	m.GraphVersion.Set(float64(version))
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.WithLabelValues("citation").Set(float64(citations))
	m.GraphEdges.WithLabelValues("term_usage").Set(float64(terms))
	m.GraphEdges.WithLabelValues("hierarchy").Set(float64(hierarchy))
	if degraded {
		m.BaselineDegraded.Set(1)
	} else {
		m.BaselineDegraded.Set(0)
	}
}

// RecordIngestion records one ingestion pass.
func (m *Metrics) RecordIngestion(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IngestionsTotal.WithLabelValues(status).Inc()
	m.IngestionDuration.Observe(duration.Seconds())
}

// RecordEmbedded records nodes given vectors, by source ("computed" or "reused").
func (m *Metrics) RecordEmbedded(source string, n int) {
	if m == nil {
		return
	}
	m.EmbeddedNodes.WithLabelValues(source).Add(float64(n))
}
