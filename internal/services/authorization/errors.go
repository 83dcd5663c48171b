package authorization

import "errors"

// Hierarchy invariant violations, raised by AddChild and never observed
// during access checks.
var (
	// ErrSelfReference is returned when an item is added as a child of itself
	ErrSelfReference = errors.New("cannot add an item as a child of itself")

	// ErrPermissionAsParent is returned when a permission is added as a parent of a role
	ErrPermissionAsParent = errors.New("a permission cannot be a parent of a role")

	// ErrCycleDetected is returned when an edge would make an item its own ancestor
	ErrCycleDetected = errors.New("adding this child would create a cycle in the hierarchy")
)

// ErrItemNotFound is returned by mutations referencing an unknown item name
var ErrItemNotFound = errors.New("auth item not found")

// Configuration errors, raised at check time when the authorization data is
// internally inconsistent. These are distinct from an access denial and are
// never folded into a false decision.
var (
	// ErrRuleNotFound is returned when an item references a rule that does not exist
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleKindUnknown is returned when a persisted rule spec names a kind
	// with no registered predicate factory
	ErrRuleKindUnknown = errors.New("rule kind not registered")
)
