package authorization

import (
	"context"
	"testing"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/infrastructure/metrics"
)

func TestManager_CollectorRecordsChecks(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	setupBlogGraph(t, m)

	collector := metrics.NewCollector()
	m.SetCollector(collector)

	allowed, err := m.CheckAccess(ctx, "alice", "editPost", nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Fatal("expected alice to be allowed editPost")
	}
	allowed, err = m.CheckAccess(ctx, "carol", "editPost", nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatal("expected carol to be denied editPost")
	}

	cm := collector.GetCheckMetrics()
	if cm.Allowed != 1 {
		t.Errorf("Allowed = %d, want 1", cm.Allowed)
	}
	if cm.Denied != 1 {
		t.Errorf("Denied = %d, want 1", cm.Denied)
	}
	if cm.Errors != 0 {
		t.Errorf("Errors = %d, want 0", cm.Errors)
	}
}

func TestManager_CollectorRecordsCheckErrors(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	setupBlogGraph(t, m)

	collector := metrics.NewCollector()
	m.SetCollector(collector)

	// A dangling rule reference is a configuration error, not a denial
	dangling := entities.NewPermission("dangling")
	dangling.RuleName = "noSuchRule"
	store.items["dangling"] = dangling

	if _, err := m.CheckAccess(ctx, "dangling-user-with-dangling-item", "dangling", nil); err == nil {
		t.Fatal("expected configuration error for dangling rule")
	}

	cm := collector.GetCheckMetrics()
	if cm.Errors != 1 {
		t.Errorf("Errors = %d, want 1", cm.Errors)
	}
	if cm.Allowed != 0 || cm.Denied != 0 {
		t.Errorf("Allowed = %d, Denied = %d, want 0, 0", cm.Allowed, cm.Denied)
	}
}

func TestManager_CollectorRecordsMutations(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	collector := metrics.NewCollector()
	m.SetCollector(collector)

	if err := m.AddItem(ctx, entities.NewRole("admin")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddItem(ctx, entities.NewPermission("editPost")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := m.AddChild(ctx, "admin", "editPost"); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}
	if _, err := m.Assign(ctx, "admin", "alice"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if _, err := m.Revoke(ctx, "admin", "alice"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	mm := collector.GetMutationMetrics()
	want := map[string]uint64{
		"addItem":  2,
		"addChild": 1,
		"assign":   1,
		"revoke":   1,
	}
	for operation, count := range want {
		if mm[operation] != count {
			t.Errorf("mutation %s = %d, want %d", operation, mm[operation], count)
		}
	}
}

func TestManager_CollectorRecordsSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newCachedTestManager(t)
	setupBlogGraph(t, m)

	collector := metrics.NewCollector()
	m.SetCollector(collector)

	// First check after the fixture mutations rebuilds the snapshot
	if _, err := m.CheckAccess(ctx, "alice", "editPost", nil); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	sm := collector.GetSnapshotMetrics()
	if sm.Rebuilds != 1 {
		t.Errorf("Rebuilds = %d, want 1", sm.Rebuilds)
	}

	// A mutation invalidates; the following check rebuilds again
	if _, err := m.Revoke(ctx, "admin", "alice"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := m.CheckAccess(ctx, "alice", "editPost", nil); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}

	sm = collector.GetSnapshotMetrics()
	if sm.Invalidations != 1 {
		t.Errorf("Invalidations = %d, want 1", sm.Invalidations)
	}
	if sm.Rebuilds != 2 {
		t.Errorf("Rebuilds = %d, want 2", sm.Rebuilds)
	}
}
