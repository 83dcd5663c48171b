package repositories

import (
	"context"

	"github.com/asakaida/yakuwari/internal/entities"
)

// ItemRepository defines the interface for auth item data access
type ItemRepository interface {
	// Create inserts a new item row
	Create(ctx context.Context, item *entities.Item) error

	// Update updates the item identified by oldName. Renames propagate to
	// edges and assignments through the store's foreign keys.
	Update(ctx context.Context, oldName string, item *entities.Item) error

	// Delete removes the item row and, via the store's cascading foreign
	// keys, every edge and assignment referencing it
	Delete(ctx context.Context, name string) error

	// GetByName retrieves an item by name. Returns nil (no error) when absent.
	GetByName(ctx context.Context, name string) (*entities.Item, error)

	// ListByType retrieves all items of the given type
	ListByType(ctx context.Context, itemType entities.ItemType) ([]*entities.Item, error)

	// ListAll retrieves every item regardless of type
	ListAll(ctx context.Context) ([]*entities.Item, error)

	// DeleteByType removes all items of the given type
	DeleteByType(ctx context.Context, itemType entities.ItemType) error

	// DeleteAll removes every item
	DeleteAll(ctx context.Context) error
}
