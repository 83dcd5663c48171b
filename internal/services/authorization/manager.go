package authorization

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/infrastructure/metrics"
	"github.com/asakaida/yakuwari/internal/repositories"
	"github.com/asakaida/yakuwari/pkg/cache"
)

// AccessChecker is the contract consumed by authorization filters
type AccessChecker interface {
	// CheckAccess reports whether the user holds the named permission.
	// Unknown users or permissions yield false, never an error.
	CheckAccess(ctx context.Context, userID string, permissionName string, params map[string]interface{}) (bool, error)
}

// Manager is the authorization graph manager. It owns the role/permission
// hierarchy, user assignments, rule resolution, and the cached snapshot of
// the persisted graph.
type Manager struct {
	items       repositories.ItemRepository
	hierarchy   repositories.HierarchyRepository
	rules       repositories.RuleRepository
	assignments repositories.AssignmentRepository

	registry *RuleRegistry

	cache    cache.Cache // Optional snapshot cache
	cacheKey string
	cacheTTL time.Duration

	collector *metrics.Collector // Optional metrics collector

	// invalidationHook, when set, is called after a mutation has cleared
	// the snapshot cache, so other processes can be told to do the same
	invalidationHook func(ctx context.Context) error

	defaultRoles []string

	mu       sync.RWMutex
	snapshot *snapshot // nil until loaded; swapped wholesale under mu
}

// DefaultCacheKey is the cache key used when none is configured
const DefaultCacheKey = "yakuwari:auth-graph"

// NewManager creates a new Manager without snapshot caching.
// Every access check queries the store directly.
func NewManager(
	items repositories.ItemRepository,
	hierarchy repositories.HierarchyRepository,
	rules repositories.RuleRepository,
	assignments repositories.AssignmentRepository,
) *Manager {
	return &Manager{
		items:       items,
		hierarchy:   hierarchy,
		rules:       rules,
		assignments: assignments,
		registry:    NewRuleRegistry(),
	}
}

// NewManagerWithCache creates a new Manager with snapshot caching enabled
func NewManagerWithCache(
	items repositories.ItemRepository,
	hierarchy repositories.HierarchyRepository,
	rules repositories.RuleRepository,
	assignments repositories.AssignmentRepository,
	c cache.Cache,
	cacheKey string,
	cacheTTL time.Duration,
) *Manager {
	if cacheKey == "" {
		cacheKey = DefaultCacheKey
	}
	m := NewManager(items, hierarchy, rules, assignments)
	m.cache = c
	m.cacheKey = cacheKey
	m.cacheTTL = cacheTTL
	return m
}

// Registry returns the rule registry for registering predicate factories
func (m *Manager) Registry() *RuleRegistry {
	return m.registry
}

// SetCollector sets an optional metrics collector
func (m *Manager) SetCollector(collector *metrics.Collector) {
	m.collector = collector
}

// SetInvalidationHook sets a callback invoked after every local cache
// invalidation, typically to broadcast the change to other processes
func (m *Manager) SetInvalidationHook(hook func(ctx context.Context) error) {
	m.invalidationHook = hook
}

// DropSnapshot discards the resident snapshot without touching the cache
// backend. Used when another process signals that the graph has changed.
func (m *Manager) DropSnapshot() {
	m.mu.Lock()
	m.snapshot = nil
	m.mu.Unlock()
}

// SetDefaultRoles sets the roles implicitly granted to every user
func (m *Manager) SetDefaultRoles(roles []string) {
	m.defaultRoles = roles
}

// DefaultRoles returns the configured default role names
func (m *Manager) DefaultRoles() []string {
	return m.defaultRoles
}

func (m *Manager) recordMutation(operation string) {
	if m.collector != nil {
		m.collector.RecordMutation(operation)
	}
}

// AddItem persists a transient item created via entities.NewRole or
// entities.NewPermission
func (m *Manager) AddItem(ctx context.Context, item *entities.Item) error {
	if err := m.items.Create(ctx, item); err != nil {
		return err
	}
	m.recordMutation("addItem")
	return m.invalidateCache(ctx)
}

// UpdateItem updates the item identified by oldName. A rename propagates
// to edges and assignments referencing the item; rule references are keyed
// by rule name and unaffected.
func (m *Manager) UpdateItem(ctx context.Context, oldName string, item *entities.Item) error {
	if err := m.items.Update(ctx, oldName, item); err != nil {
		return err
	}
	m.recordMutation("updateItem")
	return m.invalidateCache(ctx)
}

// RemoveItem deletes an item along with every edge and assignment
// referencing it
func (m *Manager) RemoveItem(ctx context.Context, name string) error {
	if err := m.items.Delete(ctx, name); err != nil {
		return err
	}
	m.recordMutation("removeItem")
	return m.invalidateCache(ctx)
}

// GetRole retrieves a role by name. Returns nil when absent or when the
// name belongs to a permission.
func (m *Manager) GetRole(ctx context.Context, name string) (*entities.Item, error) {
	return m.getItemOfType(ctx, name, entities.TypeRole)
}

// GetPermission retrieves a permission by name. Returns nil when absent or
// when the name belongs to a role.
func (m *Manager) GetPermission(ctx context.Context, name string) (*entities.Item, error) {
	return m.getItemOfType(ctx, name, entities.TypePermission)
}

func (m *Manager) getItemOfType(ctx context.Context, name string, itemType entities.ItemType) (*entities.Item, error) {
	item, err := m.items.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Type != itemType {
		return nil, nil
	}
	return item, nil
}

// GetRoles retrieves all roles keyed by name
func (m *Manager) GetRoles(ctx context.Context) (map[string]*entities.Item, error) {
	return m.listItemsOfType(ctx, entities.TypeRole)
}

// GetPermissions retrieves all permissions keyed by name
func (m *Manager) GetPermissions(ctx context.Context) (map[string]*entities.Item, error) {
	return m.listItemsOfType(ctx, entities.TypePermission)
}

func (m *Manager) listItemsOfType(ctx context.Context, itemType entities.ItemType) (map[string]*entities.Item, error) {
	items, err := m.items.ListByType(ctx, itemType)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*entities.Item, len(items))
	for _, item := range items {
		result[item.Name] = item
	}
	return result, nil
}

// AddRule persists a rule
func (m *Manager) AddRule(ctx context.Context, rule *entities.Rule) error {
	if err := m.rules.Create(ctx, rule); err != nil {
		return err
	}
	m.recordMutation("addRule")
	return m.invalidateCache(ctx)
}

// UpdateRule updates the rule identified by oldName. A rename propagates
// to items referencing the rule.
func (m *Manager) UpdateRule(ctx context.Context, oldName string, rule *entities.Rule) error {
	if err := m.rules.Update(ctx, oldName, rule); err != nil {
		return err
	}
	m.recordMutation("updateRule")
	return m.invalidateCache(ctx)
}

// RemoveRule deletes a rule. Items that referenced it lose the reference
// but are never deleted.
func (m *Manager) RemoveRule(ctx context.Context, name string) error {
	if err := m.rules.Delete(ctx, name); err != nil {
		return err
	}
	m.recordMutation("removeRule")
	return m.invalidateCache(ctx)
}

// GetRule retrieves a rule by name. Returns nil when absent.
func (m *Manager) GetRule(ctx context.Context, name string) (*entities.Rule, error) {
	return m.rules.GetByName(ctx, name)
}

// GetRules retrieves all rules keyed by name
func (m *Manager) GetRules(ctx context.Context) (map[string]*entities.Rule, error) {
	rules, err := m.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*entities.Rule, len(rules))
	for _, rule := range rules {
		result[rule.Name] = rule
	}
	return result, nil
}

// CanAddChild reports whether an edge from parent to child can be added
// without introducing a cycle
func (m *Manager) CanAddChild(ctx context.Context, parentName string, childName string) (bool, error) {
	if parentName == childName {
		return false, nil
	}
	cyclic, err := m.detectCycle(ctx, parentName, childName)
	if err != nil {
		return false, err
	}
	return !cyclic, nil
}

// AddChild inserts a parent -> child edge. It rejects self-loops, edges
// that would put a permission above a role, and edges that would create a
// cycle. Both items must exist.
func (m *Manager) AddChild(ctx context.Context, parentName string, childName string) error {
	parent, err := m.items.GetByName(ctx, parentName)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrItemNotFound, parentName)
	}

	child, err := m.items.GetByName(ctx, childName)
	if err != nil {
		return err
	}
	if child == nil {
		return fmt.Errorf("%w: %s", ErrItemNotFound, childName)
	}

	if parent.Name == child.Name {
		return fmt.Errorf("%w: %s", ErrSelfReference, parent.Name)
	}
	if parent.IsPermission() && child.IsRole() {
		return fmt.Errorf("%w: cannot add role %s as a child of permission %s", ErrPermissionAsParent, child.Name, parent.Name)
	}

	cyclic, err := m.detectCycle(ctx, parent.Name, child.Name)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("%w: %s is already an ancestor of %s", ErrCycleDetected, child.Name, parent.Name)
	}

	if err := m.hierarchy.AddChild(ctx, parent.Name, child.Name); err != nil {
		return err
	}
	m.recordMutation("addChild")
	return m.invalidateCache(ctx)
}

// detectCycle reports whether parentName is reachable as a descendant of
// childName. The walk is iterative with a visited set so depth is bounded
// even on malformed data.
func (m *Manager) detectCycle(ctx context.Context, parentName string, childName string) (bool, error) {
	visited := map[string]bool{childName: true}
	stack := []string{childName}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := m.hierarchy.GetChildren(ctx, current)
		if err != nil {
			return false, err
		}
		for _, child := range children {
			if child.Name == parentName {
				return true, nil
			}
			if !visited[child.Name] {
				visited[child.Name] = true
				stack = append(stack, child.Name)
			}
		}
	}
	return false, nil
}

// RemoveChild deletes a single edge. The items themselves are untouched.
// Returns false when no such edge existed.
func (m *Manager) RemoveChild(ctx context.Context, parentName string, childName string) (bool, error) {
	removed, err := m.hierarchy.RemoveChild(ctx, parentName, childName)
	if err != nil {
		return false, err
	}
	if removed {
		m.recordMutation("removeChild")
		if err := m.invalidateCache(ctx); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// RemoveChildren deletes all edges departing from parent.
// Returns false when the parent had no children.
func (m *Manager) RemoveChildren(ctx context.Context, parentName string) (bool, error) {
	removed, err := m.hierarchy.RemoveChildren(ctx, parentName)
	if err != nil {
		return false, err
	}
	if removed {
		m.recordMutation("removeChildren")
		if err := m.invalidateCache(ctx); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// HasChild checks for a direct parent -> child edge
func (m *Manager) HasChild(ctx context.Context, parentName string, childName string) (bool, error) {
	return m.hierarchy.HasChild(ctx, parentName, childName)
}

// GetChildren retrieves the direct children of an item, keyed by name
func (m *Manager) GetChildren(ctx context.Context, name string) (map[string]*entities.Item, error) {
	children, err := m.hierarchy.GetChildren(ctx, name)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*entities.Item, len(children))
	for _, child := range children {
		result[child.Name] = child
	}
	return result, nil
}

// Assign grants a role directly to a user. The role must exist; the store
// enforces at most one assignment per (user, role) pair.
func (m *Manager) Assign(ctx context.Context, roleName string, userID string) (*entities.Assignment, error) {
	item, err := m.items.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, roleName)
	}

	assignment := &entities.Assignment{
		UserID:   userID,
		RoleName: item.Name,
	}
	if err := m.assignments.Create(ctx, assignment); err != nil {
		return nil, err
	}
	m.recordMutation("assign")
	if err := m.invalidateCache(ctx); err != nil {
		return nil, err
	}
	return assignment, nil
}

// Revoke removes a single role assignment from a user.
// Returns false when the user did not hold the role.
func (m *Manager) Revoke(ctx context.Context, roleName string, userID string) (bool, error) {
	revoked, err := m.assignments.Delete(ctx, userID, roleName)
	if err != nil {
		return false, err
	}
	if revoked {
		m.recordMutation("revoke")
		if err := m.invalidateCache(ctx); err != nil {
			return false, err
		}
	}
	return revoked, nil
}

// RevokeAll removes every role assignment from a user.
// Returns false when the user held no roles.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (bool, error) {
	revoked, err := m.assignments.DeleteByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if revoked {
		m.recordMutation("revokeAll")
		if err := m.invalidateCache(ctx); err != nil {
			return false, err
		}
	}
	return revoked, nil
}

// GetAssignment retrieves the assignment of a role to a user.
// Returns nil when absent.
func (m *Manager) GetAssignment(ctx context.Context, roleName string, userID string) (*entities.Assignment, error) {
	return m.assignments.Get(ctx, userID, roleName)
}

// GetAssignments retrieves all assignments of a user, keyed by role name
func (m *Manager) GetAssignments(ctx context.Context, userID string) (map[string]*entities.Assignment, error) {
	return m.assignments.ListByUser(ctx, userID)
}

// GetUserIDsByRole retrieves the IDs of all users directly assigned a role
func (m *Manager) GetUserIDsByRole(ctx context.Context, roleName string) ([]string, error) {
	return m.assignments.ListUserIDsByRole(ctx, roleName)
}

// RemoveAllPermissions deletes every permission along with the edges and
// assignments referencing them
func (m *Manager) RemoveAllPermissions(ctx context.Context) error {
	if err := m.items.DeleteByType(ctx, entities.TypePermission); err != nil {
		return err
	}
	m.recordMutation("removeAllPermissions")
	return m.invalidateCache(ctx)
}

// RemoveAllRoles deletes every role along with the edges and assignments
// referencing them
func (m *Manager) RemoveAllRoles(ctx context.Context) error {
	if err := m.items.DeleteByType(ctx, entities.TypeRole); err != nil {
		return err
	}
	m.recordMutation("removeAllRoles")
	return m.invalidateCache(ctx)
}

// RemoveAllRules deletes every rule. Items that referenced a rule lose the
// reference but are never deleted.
func (m *Manager) RemoveAllRules(ctx context.Context) error {
	if err := m.rules.DeleteAll(ctx); err != nil {
		return err
	}
	m.recordMutation("removeAllRules")
	return m.invalidateCache(ctx)
}

// RemoveAllAssignments deletes every assignment for every user
func (m *Manager) RemoveAllAssignments(ctx context.Context) error {
	if err := m.assignments.DeleteAll(ctx); err != nil {
		return err
	}
	m.recordMutation("removeAllAssignments")
	return m.invalidateCache(ctx)
}

// RemoveAll wipes the whole authorization graph in dependency order:
// assignments, edges, items, rules
func (m *Manager) RemoveAll(ctx context.Context) error {
	if err := m.assignments.DeleteAll(ctx); err != nil {
		return err
	}
	if err := m.hierarchy.DeleteAll(ctx); err != nil {
		return err
	}
	if err := m.items.DeleteAll(ctx); err != nil {
		return err
	}
	if err := m.rules.DeleteAll(ctx); err != nil {
		return err
	}
	m.recordMutation("removeAll")
	return m.invalidateCache(ctx)
}
