package repositories

import (
	"context"

	"github.com/asakaida/yakuwari/internal/entities"
)

// HierarchyRepository defines the interface for parent-child edge data access.
// Edges are pure data here; acyclicity and type ordering are enforced by the
// authorization manager before any write reaches this layer.
type HierarchyRepository interface {
	// AddChild inserts a parent -> child edge
	AddChild(ctx context.Context, parent string, child string) error

	// RemoveChild deletes a single edge. Items are untouched.
	RemoveChild(ctx context.Context, parent string, child string) (bool, error)

	// RemoveChildren deletes all edges departing from parent
	RemoveChildren(ctx context.Context, parent string) (bool, error)

	// HasChild checks for a direct edge
	HasChild(ctx context.Context, parent string, child string) (bool, error)

	// GetChildren retrieves the direct children of parent
	GetChildren(ctx context.Context, parent string) ([]*entities.Item, error)

	// GetParents retrieves the direct parents of child
	GetParents(ctx context.Context, child string) ([]*entities.Item, error)

	// ListEdges retrieves every edge as a parents-by-child map,
	// used to materialize the cached snapshot
	ListEdges(ctx context.Context) (map[string][]string, error)

	// DeleteAll removes every edge
	DeleteAll(ctx context.Context) error
}
