package authorization

import (
	"context"
	"fmt"
	"sort"

	"github.com/asakaida/yakuwari/internal/entities"
)

// memoryStore is an in-memory stand-in for the Postgres repositories. A
// single store backs all four repository views so the referential behavior
// of the real schema (cascading renames and deletes, rule references
// cleared on rule deletion) can be reproduced.
type memoryStore struct {
	items       map[string]*entities.Item
	rules       map[string]*entities.Rule
	children    map[string]map[string]bool // parent -> child set
	assignments map[string]map[string]*entities.Assignment // userID -> roleName -> assignment
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:       make(map[string]*entities.Item),
		rules:       make(map[string]*entities.Rule),
		children:    make(map[string]map[string]bool),
		assignments: make(map[string]map[string]*entities.Assignment),
	}
}

func (s *memoryStore) itemRepo() *memoryItemRepo             { return &memoryItemRepo{s} }
func (s *memoryStore) hierarchyRepo() *memoryHierarchyRepo   { return &memoryHierarchyRepo{s} }
func (s *memoryStore) ruleRepo() *memoryRuleRepo             { return &memoryRuleRepo{s} }
func (s *memoryStore) assignmentRepo() *memoryAssignmentRepo { return &memoryAssignmentRepo{s} }

// dropItemReferences mirrors the ON DELETE CASCADE foreign keys: deleting
// an item removes its edges and assignments
func (s *memoryStore) dropItemReferences(name string) {
	delete(s.children, name)
	for parent := range s.children {
		delete(s.children[parent], name)
	}
	for userID := range s.assignments {
		delete(s.assignments[userID], name)
	}
}

// renameItemReferences mirrors the ON UPDATE CASCADE foreign keys
func (s *memoryStore) renameItemReferences(oldName, newName string) {
	if set, ok := s.children[oldName]; ok {
		delete(s.children, oldName)
		s.children[newName] = set
	}
	for parent, set := range s.children {
		if set[oldName] {
			delete(set, oldName)
			s.children[parent][newName] = true
		}
	}
	for userID, byRole := range s.assignments {
		if a, ok := byRole[oldName]; ok {
			delete(byRole, oldName)
			a.RoleName = newName
			s.assignments[userID][newName] = a
		}
	}
}

type memoryItemRepo struct{ s *memoryStore }

func (r *memoryItemRepo) Create(ctx context.Context, item *entities.Item) error {
	if _, exists := r.s.items[item.Name]; exists {
		return fmt.Errorf("item already exists: %s", item.Name)
	}
	copied := *item
	r.s.items[item.Name] = &copied
	return nil
}

func (r *memoryItemRepo) Update(ctx context.Context, oldName string, item *entities.Item) error {
	if _, exists := r.s.items[oldName]; !exists {
		return fmt.Errorf("item not found: %s", oldName)
	}
	if oldName != item.Name {
		delete(r.s.items, oldName)
		r.s.renameItemReferences(oldName, item.Name)
	}
	copied := *item
	r.s.items[item.Name] = &copied
	return nil
}

func (r *memoryItemRepo) Delete(ctx context.Context, name string) error {
	if _, exists := r.s.items[name]; !exists {
		return fmt.Errorf("item not found: %s", name)
	}
	delete(r.s.items, name)
	r.s.dropItemReferences(name)
	return nil
}

func (r *memoryItemRepo) GetByName(ctx context.Context, name string) (*entities.Item, error) {
	item, ok := r.s.items[name]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *memoryItemRepo) ListByType(ctx context.Context, itemType entities.ItemType) ([]*entities.Item, error) {
	var result []*entities.Item
	for _, item := range r.s.items {
		if item.Type == itemType {
			copied := *item
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *memoryItemRepo) ListAll(ctx context.Context) ([]*entities.Item, error) {
	var result []*entities.Item
	for _, item := range r.s.items {
		copied := *item
		result = append(result, &copied)
	}
	return result, nil
}

func (r *memoryItemRepo) DeleteByType(ctx context.Context, itemType entities.ItemType) error {
	for name, item := range r.s.items {
		if item.Type == itemType {
			delete(r.s.items, name)
			r.s.dropItemReferences(name)
		}
	}
	return nil
}

func (r *memoryItemRepo) DeleteAll(ctx context.Context) error {
	for name := range r.s.items {
		delete(r.s.items, name)
		r.s.dropItemReferences(name)
	}
	return nil
}

type memoryHierarchyRepo struct{ s *memoryStore }

func (r *memoryHierarchyRepo) AddChild(ctx context.Context, parent string, child string) error {
	if r.s.children[parent] == nil {
		r.s.children[parent] = make(map[string]bool)
	}
	if r.s.children[parent][child] {
		return fmt.Errorf("edge already exists: %s -> %s", parent, child)
	}
	r.s.children[parent][child] = true
	return nil
}

func (r *memoryHierarchyRepo) RemoveChild(ctx context.Context, parent string, child string) (bool, error) {
	if !r.s.children[parent][child] {
		return false, nil
	}
	delete(r.s.children[parent], child)
	return true, nil
}

func (r *memoryHierarchyRepo) RemoveChildren(ctx context.Context, parent string) (bool, error) {
	if len(r.s.children[parent]) == 0 {
		return false, nil
	}
	delete(r.s.children, parent)
	return true, nil
}

func (r *memoryHierarchyRepo) HasChild(ctx context.Context, parent string, child string) (bool, error) {
	return r.s.children[parent][child], nil
}

func (r *memoryHierarchyRepo) GetChildren(ctx context.Context, parent string) ([]*entities.Item, error) {
	names := make([]string, 0, len(r.s.children[parent]))
	for child := range r.s.children[parent] {
		names = append(names, child)
	}
	sort.Strings(names)

	var result []*entities.Item
	for _, name := range names {
		if item, ok := r.s.items[name]; ok {
			copied := *item
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *memoryHierarchyRepo) GetParents(ctx context.Context, child string) ([]*entities.Item, error) {
	var names []string
	for parent, set := range r.s.children {
		if set[child] {
			names = append(names, parent)
		}
	}
	sort.Strings(names)

	var result []*entities.Item
	for _, name := range names {
		if item, ok := r.s.items[name]; ok {
			copied := *item
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *memoryHierarchyRepo) ListEdges(ctx context.Context) (map[string][]string, error) {
	parents := make(map[string][]string)
	for parent, set := range r.s.children {
		for child := range set {
			parents[child] = append(parents[child], parent)
		}
	}
	for child := range parents {
		sort.Strings(parents[child])
	}
	return parents, nil
}

func (r *memoryHierarchyRepo) DeleteAll(ctx context.Context) error {
	r.s.children = make(map[string]map[string]bool)
	return nil
}

type memoryRuleRepo struct{ s *memoryStore }

func (r *memoryRuleRepo) Create(ctx context.Context, rule *entities.Rule) error {
	if _, exists := r.s.rules[rule.Name]; exists {
		return fmt.Errorf("rule already exists: %s", rule.Name)
	}
	copied := *rule
	r.s.rules[rule.Name] = &copied
	return nil
}

func (r *memoryRuleRepo) Update(ctx context.Context, oldName string, rule *entities.Rule) error {
	if _, exists := r.s.rules[oldName]; !exists {
		return fmt.Errorf("rule not found: %s", oldName)
	}
	if oldName != rule.Name {
		delete(r.s.rules, oldName)
		for _, item := range r.s.items {
			if item.RuleName == oldName {
				item.RuleName = rule.Name
			}
		}
	}
	copied := *rule
	r.s.rules[rule.Name] = &copied
	return nil
}

func (r *memoryRuleRepo) Delete(ctx context.Context, name string) error {
	if _, exists := r.s.rules[name]; !exists {
		return fmt.Errorf("rule not found: %s", name)
	}
	delete(r.s.rules, name)
	// ON DELETE SET NULL on the item rule reference
	for _, item := range r.s.items {
		if item.RuleName == name {
			item.RuleName = ""
		}
	}
	return nil
}

func (r *memoryRuleRepo) GetByName(ctx context.Context, name string) (*entities.Rule, error) {
	rule, ok := r.s.rules[name]
	if !ok {
		return nil, nil
	}
	copied := *rule
	return &copied, nil
}

func (r *memoryRuleRepo) List(ctx context.Context) ([]*entities.Rule, error) {
	var result []*entities.Rule
	for _, rule := range r.s.rules {
		copied := *rule
		result = append(result, &copied)
	}
	return result, nil
}

func (r *memoryRuleRepo) DeleteAll(ctx context.Context) error {
	for name := range r.s.rules {
		delete(r.s.rules, name)
	}
	for _, item := range r.s.items {
		item.RuleName = ""
	}
	return nil
}

type memoryAssignmentRepo struct{ s *memoryStore }

func (r *memoryAssignmentRepo) Create(ctx context.Context, assignment *entities.Assignment) error {
	if r.s.assignments[assignment.UserID] == nil {
		r.s.assignments[assignment.UserID] = make(map[string]*entities.Assignment)
	}
	if _, exists := r.s.assignments[assignment.UserID][assignment.RoleName]; exists {
		return fmt.Errorf("assignment already exists: %s", assignment)
	}
	copied := *assignment
	r.s.assignments[assignment.UserID][assignment.RoleName] = &copied
	return nil
}

func (r *memoryAssignmentRepo) Get(ctx context.Context, userID string, roleName string) (*entities.Assignment, error) {
	assignment, ok := r.s.assignments[userID][roleName]
	if !ok {
		return nil, nil
	}
	copied := *assignment
	return &copied, nil
}

func (r *memoryAssignmentRepo) ListByUser(ctx context.Context, userID string) (map[string]*entities.Assignment, error) {
	result := make(map[string]*entities.Assignment, len(r.s.assignments[userID]))
	for roleName, assignment := range r.s.assignments[userID] {
		copied := *assignment
		result[roleName] = &copied
	}
	return result, nil
}

func (r *memoryAssignmentRepo) ListUserIDsByRole(ctx context.Context, roleName string) ([]string, error) {
	var userIDs []string
	for userID, byRole := range r.s.assignments {
		if _, ok := byRole[roleName]; ok {
			userIDs = append(userIDs, userID)
		}
	}
	sort.Strings(userIDs)
	return userIDs, nil
}

func (r *memoryAssignmentRepo) Delete(ctx context.Context, userID string, roleName string) (bool, error) {
	if _, ok := r.s.assignments[userID][roleName]; !ok {
		return false, nil
	}
	delete(r.s.assignments[userID], roleName)
	return true, nil
}

func (r *memoryAssignmentRepo) DeleteByUser(ctx context.Context, userID string) (bool, error) {
	if len(r.s.assignments[userID]) == 0 {
		return false, nil
	}
	delete(r.s.assignments, userID)
	return true, nil
}

func (r *memoryAssignmentRepo) DeleteAll(ctx context.Context) error {
	r.s.assignments = make(map[string]map[string]*entities.Assignment)
	return nil
}

// newTestManager wires a Manager to a fresh in-memory store
func newTestManager() (*Manager, *memoryStore) {
	store := newMemoryStore()
	m := NewManager(store.itemRepo(), store.hierarchyRepo(), store.ruleRepo(), store.assignmentRepo())
	return m, store
}
