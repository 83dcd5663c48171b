package authorization

import (
	"context"
	"fmt"

	"github.com/asakaida/yakuwari/internal/entities"
)

// GetRolesByUser retrieves the roles a user holds, directly or through the
// hierarchy, keyed by name. Default roles are included; rules are not
// evaluated.
func (m *Manager) GetRolesByUser(ctx context.Context, userID string) (map[string]*entities.Item, error) {
	starts, err := m.userStartingItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	reachable, err := m.collectDescendants(ctx, starts)
	if err != nil {
		return nil, err
	}

	roles := make(map[string]*entities.Item)
	for name, item := range reachable {
		if item.IsRole() {
			roles[name] = item
		}
	}
	return roles, nil
}

// GetPermissionsByUser retrieves the permissions a user holds, directly or
// through the hierarchy, keyed by name. Rules are not evaluated; use
// CheckAccess for an authoritative decision on a single permission.
func (m *Manager) GetPermissionsByUser(ctx context.Context, userID string) (map[string]*entities.Item, error) {
	starts, err := m.userStartingItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	reachable, err := m.collectDescendants(ctx, starts)
	if err != nil {
		return nil, err
	}

	permissions := make(map[string]*entities.Item)
	for name, item := range reachable {
		if item.IsPermission() {
			permissions[name] = item
		}
	}
	return permissions, nil
}

// GetChildRoles retrieves a role and every role reachable beneath it,
// keyed by name. The named role must exist.
func (m *Manager) GetChildRoles(ctx context.Context, roleName string) (map[string]*entities.Item, error) {
	role, err := m.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role %s", ErrItemNotFound, roleName)
	}

	reachable, err := m.collectDescendants(ctx, []string{roleName})
	if err != nil {
		return nil, err
	}

	roles := make(map[string]*entities.Item)
	for name, item := range reachable {
		if item.IsRole() {
			roles[name] = item
		}
	}
	return roles, nil
}

// GetPermissionsByRole retrieves every permission reachable beneath a role,
// keyed by name. An unknown role yields an empty map.
func (m *Manager) GetPermissionsByRole(ctx context.Context, roleName string) (map[string]*entities.Item, error) {
	reachable, err := m.collectDescendants(ctx, []string{roleName})
	if err != nil {
		return nil, err
	}

	permissions := make(map[string]*entities.Item)
	for name, item := range reachable {
		if item.IsPermission() {
			permissions[name] = item
		}
	}
	return permissions, nil
}

// userStartingItems returns the names the descendant walk starts from for
// a user: directly assigned roles plus the default roles
func (m *Manager) userStartingItems(ctx context.Context, userID string) ([]string, error) {
	starts := make([]string, 0, len(m.defaultRoles))
	starts = append(starts, m.defaultRoles...)

	if userID != "" {
		assignments, err := m.assignments.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assignments for user %s: %w", userID, err)
		}
		for roleName := range assignments {
			starts = append(starts, roleName)
		}
	}
	return starts, nil
}

// collectDescendants walks parent -> child edges breadth-first from the
// given names and returns every reachable item, the starting items
// included, keyed by name
func (m *Manager) collectDescendants(ctx context.Context, names []string) (map[string]*entities.Item, error) {
	reachable := make(map[string]*entities.Item)
	visited := make(map[string]bool, len(names))
	queue := make([]string, 0, len(names))

	for _, name := range names {
		if !visited[name] {
			visited[name] = true
			queue = append(queue, name)

			item, err := m.items.GetByName(ctx, name)
			if err != nil {
				return nil, err
			}
			if item != nil {
				reachable[name] = item
			}
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := m.hierarchy.GetChildren(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to load children of %s: %w", current, err)
		}
		for _, child := range children {
			if visited[child.Name] {
				continue
			}
			visited[child.Name] = true
			reachable[child.Name] = child
			queue = append(queue, child.Name)
		}
	}
	return reachable, nil
}
