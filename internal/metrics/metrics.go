// Package metrics is the retrieval core's Prometheus instrumentation,
// mirroring the teacher's internal/middleware.Metrics: a single struct of
// registered collectors, constructed once at startup and passed into the
// components that observe them (spec §9 "dependency injection" applied to
// metrics rather than just LLM/embedding clients).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the retrieval core exposes.
type Metrics struct {
	CacheHitsTotal    *prometheus.CounterVec
	CacheMissesTotal  *prometheus.CounterVec
	FanoutShardLatency *prometheus.HistogramVec
	FanoutShardErrors *prometheus.CounterVec
	RerankerAvailable prometheus.Gauge
	RerankLatency     prometheus.Histogram
	QueryLatency      *prometheus.HistogramVec
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_cache_hits_total",
				Help: "Cache hits by cache name (search, image) and tier (memory, redis).",
			},
			[]string{"cache", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_cache_misses_total",
				Help: "Cache misses by cache name.",
			},
			[]string{"cache"},
		),
		FanoutShardLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_fanout_shard_latency_seconds",
				Help:    "Per-shard hybrid search latency within the multi-index fanout.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index_id"},
		),
		FanoutShardErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_fanout_shard_errors_total",
				Help: "Shard errors absorbed by the fanout (spec §4.3 failure semantics).",
			},
			[]string{"index_id"},
		),
		RerankerAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "retrieval_reranker_available",
				Help: "1 if the last reranker call succeeded, 0 if it fell back to pass-through ordering.",
			},
		),
		RerankLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_rerank_latency_seconds",
				Help:    "Cross-encoder rerank call latency.",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_query_latency_seconds",
				Help:    "End-to-end Engine.Query latency by classification kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.CacheHitsTotal, m.CacheMissesTotal,
		m.FanoutShardLatency, m.FanoutShardErrors,
		m.RerankerAvailable, m.RerankLatency,
		m.QueryLatency,
	)
	return m
}

// RecordCacheHit implements cache.MetricsRecorder.
func (m *Metrics) RecordCacheHit(cacheName, tier string) {
	m.CacheHitsTotal.WithLabelValues(cacheName, tier).Inc()
}

// RecordCacheMiss implements cache.MetricsRecorder.
func (m *Metrics) RecordCacheMiss(cacheName string) {
	m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

// RecordShardLatency implements search.MetricsRecorder.
func (m *Metrics) RecordShardLatency(indexID string, seconds float64) {
	m.FanoutShardLatency.WithLabelValues(indexID).Observe(seconds)
}

// RecordShardError implements search.MetricsRecorder.
func (m *Metrics) RecordShardError(indexID string) {
	m.FanoutShardErrors.WithLabelValues(indexID).Inc()
}

// RecordRerank implements rerank.MetricsRecorder.
func (m *Metrics) RecordRerank(available bool, seconds float64) {
	if available {
		m.RerankerAvailable.Set(1)
	} else {
		m.RerankerAvailable.Set(0)
	}
	m.RerankLatency.Observe(seconds)
}
