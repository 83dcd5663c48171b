package authorization

import (
	"context"
	"fmt"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
)

// maxHierarchyDepth bounds the recursion of an access check. The hierarchy
// is kept acyclic at write time, so hitting the bound indicates corrupted
// data underneath the manager.
const maxHierarchyDepth = 100

// CheckAccess reports whether the user holds the named permission, either
// through a direct assignment, a default role, or transitively through the
// hierarchy. Every item on a candidate path must pass its attached rule;
// a rule failure vetoes that path only, and other paths may still grant.
//
// Unknown users and unknown permissions yield (false, nil). Inconsistent
// authorization data such as a dangling rule reference yields an error.
func (m *Manager) CheckAccess(ctx context.Context, userID string, permissionName string, params map[string]interface{}) (bool, error) {
	start := time.Now()
	allowed, err := m.checkAccess(ctx, userID, permissionName, params)
	if m.collector != nil {
		if err != nil {
			m.collector.RecordCheckError()
		} else {
			m.collector.RecordCheck(allowed, time.Since(start).Seconds())
		}
	}
	return allowed, err
}

func (m *Manager) checkAccess(ctx context.Context, userID string, permissionName string, params map[string]interface{}) (bool, error) {
	// An empty user ID can still be granted through default roles, so the
	// assignment query is skipped rather than the whole check.
	assignments := map[string]*entities.Assignment{}
	if userID != "" {
		var err error
		assignments, err = m.assignments.ListByUser(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("failed to load assignments for user %s: %w", userID, err)
		}
	}

	if m.cache != nil {
		if err := m.loadFromCache(ctx); err != nil {
			return false, err
		}
		if snap := m.currentSnapshot(); snap != nil {
			return m.checkAccessFromSnapshot(ctx, userID, permissionName, params, assignments, snap, 0)
		}
	}

	return m.checkAccessRecursive(ctx, userID, permissionName, params, assignments, 0)
}

// checkAccessFromSnapshot walks the hierarchy entirely from the resident
// snapshot, touching the store only for the user's assignments
func (m *Manager) checkAccessFromSnapshot(
	ctx context.Context,
	userID string,
	itemName string,
	params map[string]interface{},
	assignments map[string]*entities.Assignment,
	snap *snapshot,
	depth int,
) (bool, error) {
	if depth > maxHierarchyDepth {
		return false, fmt.Errorf("hierarchy depth exceeded %d at item %s", maxHierarchyDepth, itemName)
	}

	item, ok := snap.Items[itemName]
	if !ok {
		return false, nil
	}

	allowed, err := m.executeRule(ctx, userID, item, params, snap)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	if _, assigned := assignments[itemName]; assigned {
		return true, nil
	}
	for _, role := range m.defaultRoles {
		if role == itemName {
			return true, nil
		}
	}

	for _, parent := range snap.Parents[itemName] {
		granted, err := m.checkAccessFromSnapshot(ctx, userID, parent, params, assignments, snap, depth+1)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// checkAccessRecursive walks the hierarchy with a parent query per level.
// It is the strategy when no snapshot cache is configured.
func (m *Manager) checkAccessRecursive(
	ctx context.Context,
	userID string,
	itemName string,
	params map[string]interface{},
	assignments map[string]*entities.Assignment,
	depth int,
) (bool, error) {
	if depth > maxHierarchyDepth {
		return false, fmt.Errorf("hierarchy depth exceeded %d at item %s", maxHierarchyDepth, itemName)
	}

	item, err := m.items.GetByName(ctx, itemName)
	if err != nil {
		return false, fmt.Errorf("failed to load item %s: %w", itemName, err)
	}
	if item == nil {
		return false, nil
	}

	allowed, err := m.executeRule(ctx, userID, item, params, nil)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	if _, assigned := assignments[itemName]; assigned {
		return true, nil
	}
	for _, role := range m.defaultRoles {
		if role == itemName {
			return true, nil
		}
	}

	parents, err := m.hierarchy.GetParents(ctx, itemName)
	if err != nil {
		return false, fmt.Errorf("failed to load parents of %s: %w", itemName, err)
	}
	for _, parent := range parents {
		granted, err := m.checkAccessRecursive(ctx, userID, parent.Name, params, assignments, depth+1)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}
