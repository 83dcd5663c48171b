package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.Counter
	checkDecisions   *prometheus.CounterVec
	checkDuration    prometheus.Histogram
	checkErrors      prometheus.Counter
	mutations        *prometheus.CounterVec
	snapshotRebuilds prometheus.Counter
	invalidations    prometheus.Counter
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_snapshot_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_snapshot_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "yakuwari_snapshot_cache_hit_rate",
			Help: "Current snapshot cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "yakuwari_snapshot_cache_keys_current",
			Help: "Current number of keys in the snapshot cache",
		}),
		cacheMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "yakuwari_snapshot_cache_memory_bytes",
			Help: "Current memory usage of the snapshot cache in bytes",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_snapshot_cache_evictions_total",
			Help: "Total number of cache evictions due to memory limits",
		}),
		checkDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yakuwari_check_decisions_total",
				Help: "Total number of access check decisions",
			},
			[]string{"decision"},
		),
		checkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "yakuwari_check_duration_seconds",
			Help:    "Duration of access checks in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),
		checkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_check_errors_total",
			Help: "Total number of access checks that failed with an error",
		}),
		mutations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yakuwari_graph_mutations_total",
				Help: "Total number of authorization graph mutations",
			},
			[]string{"operation"},
		),
		snapshotRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_snapshot_rebuilds_total",
			Help: "Total number of snapshot rebuilds from the database",
		}),
		invalidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "yakuwari_snapshot_invalidations_total",
			Help: "Total number of snapshot invalidations triggered by mutations",
		}),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated via the Record* methods, so only update gauges here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))
}

// RecordCheck records an access check decision in Prometheus.
func (e *PrometheusExporter) RecordCheck(allowed bool, durationSeconds float64) {
	if allowed {
		e.checkDecisions.WithLabelValues("allowed").Inc()
	} else {
		e.checkDecisions.WithLabelValues("denied").Inc()
	}
	e.checkDuration.Observe(durationSeconds)
}

// RecordCheckError records a failed access check in Prometheus.
func (e *PrometheusExporter) RecordCheckError() {
	e.checkErrors.Inc()
}

// RecordMutation records a graph mutation in Prometheus.
func (e *PrometheusExporter) RecordMutation(operation string) {
	e.mutations.WithLabelValues(operation).Inc()
}

// RecordSnapshotRebuild records a snapshot rebuild.
func (e *PrometheusExporter) RecordSnapshotRebuild() {
	e.snapshotRebuilds.Inc()
}

// RecordInvalidation records a snapshot invalidation.
func (e *PrometheusExporter) RecordInvalidation() {
	e.invalidations.Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit() {
	e.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss() {
	e.cacheMisses.Inc()
}

// RecordCacheEviction records a cache eviction.
func (e *PrometheusExporter) RecordCacheEviction() {
	e.cacheEvictions.Inc()
}
