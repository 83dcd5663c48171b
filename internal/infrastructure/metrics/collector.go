package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/yakuwari/pkg/cache"
	"github.com/asakaida/yakuwari/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the authorization engine.
type Collector struct {
	// Access check metrics
	checksAllowed uint64
	checksDenied  uint64
	checkErrors   uint64
	checkDuration durationValue

	// Graph mutation metrics
	mutations sync.Map // map[string]*uint64 - operation -> count

	// Snapshot lifecycle metrics
	snapshotLoads    uint64
	snapshotRebuilds uint64
	invalidations    uint64

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache

	// Observer (optional, mirrors recorded events to an external system)
	observer Observer
}

// Observer receives a copy of every event recorded on the collector.
// PrometheusExporter implements this to keep its counters in step.
type Observer interface {
	RecordCheck(allowed bool, durationSeconds float64)
	RecordCheckError()
	RecordMutation(operation string)
	RecordSnapshotRebuild()
	RecordInvalidation()
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// CheckMetrics holds access check metrics.
type CheckMetrics struct {
	Allowed              uint64
	Denied               uint64
	Errors               uint64
	TotalDurationSeconds float64
}

// SnapshotMetrics holds snapshot lifecycle metrics.
type SnapshotMetrics struct {
	Loads         uint64
	Rebuilds      uint64
	Invalidations uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// SetObserver sets the observer mirroring recorded events.
// Must be called before the collector is handed to a Manager.
func (c *Collector) SetObserver(observer Observer) {
	c.observer = observer
}

// RecordCheck records an access check decision and its duration in seconds.
func (c *Collector) RecordCheck(allowed bool, durationSeconds float64) {
	if allowed {
		atomic.AddUint64(&c.checksAllowed, 1)
	} else {
		atomic.AddUint64(&c.checksDenied, 1)
	}

	c.checkDuration.mu.Lock()
	c.checkDuration.totalSeconds += durationSeconds
	c.checkDuration.mu.Unlock()

	if c.observer != nil {
		c.observer.RecordCheck(allowed, durationSeconds)
	}
}

// RecordCheckError records an access check that failed with an error.
func (c *Collector) RecordCheckError() {
	atomic.AddUint64(&c.checkErrors, 1)

	if c.observer != nil {
		c.observer.RecordCheckError()
	}
}

// RecordMutation records a graph mutation (addItem, addChild, assign, ...).
func (c *Collector) RecordMutation(operation string) {
	counter := c.getOrCreateCounter(&c.mutations, operation)
	atomic.AddUint64(counter, 1)

	if c.observer != nil {
		c.observer.RecordMutation(operation)
	}
}

// RecordSnapshotLoad records a snapshot load from the cache backend.
func (c *Collector) RecordSnapshotLoad() {
	atomic.AddUint64(&c.snapshotLoads, 1)
}

// RecordSnapshotRebuild records a snapshot rebuild from the database.
func (c *Collector) RecordSnapshotRebuild() {
	atomic.AddUint64(&c.snapshotRebuilds, 1)

	if c.observer != nil {
		c.observer.RecordSnapshotRebuild()
	}
}

// RecordInvalidation records a cache invalidation triggered by a mutation.
func (c *Collector) RecordInvalidation() {
	atomic.AddUint64(&c.invalidations, 1)

	if c.observer != nil {
		c.observer.RecordInvalidation()
	}
}

// GetCheckMetrics returns current access check metrics.
func (c *Collector) GetCheckMetrics() *CheckMetrics {
	result := &CheckMetrics{
		Allowed: atomic.LoadUint64(&c.checksAllowed),
		Denied:  atomic.LoadUint64(&c.checksDenied),
		Errors:  atomic.LoadUint64(&c.checkErrors),
	}

	c.checkDuration.mu.Lock()
	result.TotalDurationSeconds = c.checkDuration.totalSeconds
	c.checkDuration.mu.Unlock()

	return result
}

// GetMutationMetrics returns current mutation counts keyed by operation.
func (c *Collector) GetMutationMetrics() map[string]uint64 {
	result := make(map[string]uint64)
	c.mutations.Range(func(key, value interface{}) bool {
		operation := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result[operation] = count
		return true
	})
	return result
}

// GetSnapshotMetrics returns current snapshot lifecycle metrics.
func (c *Collector) GetSnapshotMetrics() *SnapshotMetrics {
	return &SnapshotMetrics{
		Loads:         atomic.LoadUint64(&c.snapshotLoads),
		Rebuilds:      atomic.LoadUint64(&c.snapshotRebuilds),
		Invalidations: atomic.LoadUint64(&c.invalidations),
	}
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	// Get current keys and memory if available
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
