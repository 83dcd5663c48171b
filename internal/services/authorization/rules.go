package authorization

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/asakaida/yakuwari/internal/entities"
)

// Predicate is the executable form of a rule: a named condition evaluated
// against a user, the item carrying the rule, and caller-supplied params.
type Predicate interface {
	// Evaluate returns whether the condition holds. A false result vetoes
	// the item's branch of the hierarchy for the current check path.
	Evaluate(ctx context.Context, userID string, item *entities.Item, params map[string]interface{}) (bool, error)
}

// PredicateFactory builds a predicate from the config payload of a
// persisted rule spec.
type PredicateFactory func(config json.RawMessage) (Predicate, error)

// RuleRegistry maps rule kinds to predicate factories. Rules are persisted
// as (kind, config) pairs; the registry turns them back into executable
// predicates at check time.
type RuleRegistry struct {
	mu        sync.RWMutex
	factories map[string]PredicateFactory
}

// NewRuleRegistry creates an empty rule registry
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{
		factories: make(map[string]PredicateFactory),
	}
}

// Register registers a predicate factory for a rule kind.
// Registering the same kind twice replaces the factory.
func (r *RuleRegistry) Register(kind string, factory PredicateFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds returns the registered rule kinds
func (r *RuleRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Build constructs the predicate for a persisted rule spec.
// An unknown kind or unsupported spec version is a configuration error.
func (r *RuleRegistry) Build(spec *entities.RuleSpec) (Predicate, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule spec: %w", err)
	}

	r.mu.RLock()
	factory, ok := r.factories[spec.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleKindUnknown, spec.Kind)
	}

	predicate, err := factory(spec.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build predicate for kind %s: %w", spec.Kind, err)
	}
	return predicate, nil
}

// executeRule evaluates the rule attached to an item, if any.
// An item with no rule grants unconditionally (subject to the hierarchy and
// assignment checks). A dangling rule reference is a configuration error,
// not a denial. When snap is non-nil the rule is resolved from the cached
// snapshot; otherwise it is loaded from the rule repository.
func (m *Manager) executeRule(
	ctx context.Context,
	userID string,
	item *entities.Item,
	params map[string]interface{},
	snap *snapshot,
) (bool, error) {
	if item.RuleName == "" {
		return true, nil
	}

	var rule *entities.Rule
	if snap != nil {
		rule = snap.Rules[item.RuleName]
	} else {
		var err error
		rule, err = m.rules.GetByName(ctx, item.RuleName)
		if err != nil {
			return false, fmt.Errorf("failed to load rule %s: %w", item.RuleName, err)
		}
	}

	if rule == nil {
		return false, fmt.Errorf("%w: %s (referenced by item %s)", ErrRuleNotFound, item.RuleName, item.Name)
	}

	predicate, err := m.registry.Build(&rule.Spec)
	if err != nil {
		return false, err
	}

	allowed, err := predicate.Evaluate(ctx, userID, item, params)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule %s: %w", rule.Name, err)
	}
	return allowed, nil
}
