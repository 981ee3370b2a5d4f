// Package metrics defines the Prometheus metric collectors used by the
// retrieval engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retrieval"

// Metrics holds all Prometheus collectors for the engine. Every helper
// method is safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	DocsIndexedTotal   *prometheus.CounterVec
	DocsFailedTotal    prometheus.Counter
	DocsRemovedTotal   prometheus.Counter
	IndexBuildDuration prometheus.Histogram
	IndexTerms         prometheus.Gauge
	IndexDocuments     prometheus.Gauge
	IndexFlushesTotal  *prometheus.CounterVec
	StopWordSelection  prometheus.Histogram
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	SinkWritesTotal    *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
}

// New creates all collectors and registers them on a fresh registry, so
// several instances can coexist in one process.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_indexed_total",
				Help:      "Total documents indexed by operation (create, update).",
			},
			[]string{"op"},
		),
		DocsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_failed_total",
				Help:      "Total documents skipped because their source was unreadable.",
			},
		),
		DocsRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_removed_total",
				Help:      "Total documents removed from the index.",
			},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_build_duration_seconds",
				Help:      "Wall time of a full collection build.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_terms",
				Help:      "Distinct terms in the latest index snapshot.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_documents",
				Help:      "Documents in the latest index snapshot.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_flushes_total",
				Help:      "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		StopWordSelection: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stopword_selection_seconds",
				Help:      "Time spent selecting stop words from term statistics.",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1},
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_queries_total",
				Help:      "Total search queries by outcome (ok, zero_result, empty_query, syntax_error, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Search query latency in seconds by retrieval mode.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results_count",
				Help:      "Number of matching documents per search query.",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of query cache misses.",
			},
		),
		SinkWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_writes_total",
				Help:      "Query reports written by sink kind and status.",
			},
			[]string{"sink", "status"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Experiment runs by status.",
			},
			[]string{"status"},
		),
	}

	m.Registry.MustRegister(
		m.DocsIndexedTotal,
		m.DocsFailedTotal,
		m.DocsRemovedTotal,
		m.IndexBuildDuration,
		m.IndexTerms,
		m.IndexDocuments,
		m.IndexFlushesTotal,
		m.StopWordSelection,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SinkWritesTotal,
		m.RunsTotal,
	)

	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) DocIndexed(updated bool) {
	if m == nil {
		return
	}
	op := "create"
	if updated {
		op = "update"
	}
	m.DocsIndexedTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) DocFailed() {
	if m == nil {
		return
	}
	m.DocsFailedTotal.Inc()
}

func (m *Metrics) DocRemoved() {
	if m == nil {
		return
	}
	m.DocsRemovedTotal.Inc()
}

func (m *Metrics) BuildFinished(d time.Duration, docs, terms int) {
	if m == nil {
		return
	}
	m.IndexBuildDuration.Observe(d.Seconds())
	m.IndexDocuments.Set(float64(docs))
	m.IndexTerms.Set(float64(terms))
}

func (m *Metrics) Flushed(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) StopWordsSelected(d time.Duration) {
	if m == nil {
		return
	}
	m.StopWordSelection.Observe(d.Seconds())
}

// Query records one evaluated query.
func (m *Metrics) Query(mode, outcome string, d time.Duration, hits int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	m.SearchLatency.WithLabelValues(mode).Observe(d.Seconds())
	m.SearchResultsCount.Observe(float64(hits))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) SinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SinkWritesTotal.WithLabelValues(sink, status).Inc()
}

func (m *Metrics) RunFinished(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}
