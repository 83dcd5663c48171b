package authorization

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asakaida/yakuwari/internal/entities"
)

// snapshot is an in-memory materialization of the entire authorization
// graph: items and rules by name, plus parent names keyed by child name.
// It is immutable once built; the manager swaps the whole pointer under
// its lock so concurrent checkers never observe a partially built graph.
type snapshot struct {
	Items   map[string]*entities.Item `json:"items"`
	Rules   map[string]*entities.Rule `json:"rules"`
	Parents map[string][]string       `json:"parents"`
}

// currentSnapshot returns the resident snapshot, or nil when none is loaded
func (m *Manager) currentSnapshot() *snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// loadFromCache makes a snapshot resident. It is a no-op when caching is
// disabled or a snapshot is already loaded. On a cache hit the stored blob
// is decoded directly; on a miss the snapshot is rebuilt from the store
// with three full scans and written back with the configured TTL.
//
// Concurrent rebuilds are safe to race: they produce equivalent snapshots
// and the last cache write wins.
func (m *Manager) loadFromCache(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}

	m.mu.RLock()
	resident := m.snapshot != nil
	m.mu.RUnlock()
	if resident {
		return nil
	}

	if blob, found := m.cache.Get(ctx, m.cacheKey); found {
		var snap snapshot
		if err := json.Unmarshal(blob, &snap); err == nil {
			m.mu.Lock()
			m.snapshot = &snap
			m.mu.Unlock()
			if m.collector != nil {
				m.collector.RecordSnapshotLoad()
			}
			return nil
		}
		// A corrupt blob falls through to a rebuild
	}

	snap, err := m.buildSnapshot(ctx)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := m.cache.Set(ctx, m.cacheKey, blob, m.cacheTTL); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordSnapshotRebuild()
	}
	return nil
}

// buildSnapshot materializes the full graph from the store
func (m *Manager) buildSnapshot(ctx context.Context) (*snapshot, error) {
	items, err := m.items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for snapshot: %w", err)
	}

	rules, err := m.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for snapshot: %w", err)
	}

	parents, err := m.hierarchy.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges for snapshot: %w", err)
	}

	snap := &snapshot{
		Items:   make(map[string]*entities.Item, len(items)),
		Rules:   make(map[string]*entities.Rule, len(rules)),
		Parents: parents,
	}
	for _, item := range items {
		snap.Items[item.Name] = item
	}
	for _, rule := range rules {
		snap.Rules[rule.Name] = rule
	}
	return snap, nil
}

// invalidateCache clears the cache backend entry and drops the resident
// snapshot, forcing the next check to rebuild. Called by every mutating
// operation. Mutations written directly to the underlying tables bypass
// this; such callers must invalidate manually.
func (m *Manager) invalidateCache(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}

	if err := m.cache.Delete(ctx, m.cacheKey); err != nil {
		return fmt.Errorf("failed to invalidate snapshot cache: %w", err)
	}

	m.mu.Lock()
	m.snapshot = nil
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordInvalidation()
	}

	if m.invalidationHook != nil {
		if err := m.invalidationHook(ctx); err != nil {
			return fmt.Errorf("invalidation hook failed: %w", err)
		}
	}
	return nil
}
