package repositories

import (
	"context"

	"github.com/asakaida/yakuwari/internal/entities"
)

// RuleRepository defines the interface for rule data access
type RuleRepository interface {
	// Create inserts a new rule row
	Create(ctx context.Context, rule *entities.Rule) error

	// Update updates the rule identified by oldName. Renames propagate to
	// item rule references through the store's foreign keys.
	Update(ctx context.Context, oldName string, rule *entities.Rule) error

	// Delete removes the rule row; the store clears rule references on
	// items that used it
	Delete(ctx context.Context, name string) error

	// GetByName retrieves a rule by name. Returns nil (no error) when absent.
	GetByName(ctx context.Context, name string) (*entities.Rule, error)

	// List retrieves every rule
	List(ctx context.Context) ([]*entities.Rule, error)

	// DeleteAll removes every rule
	DeleteAll(ctx context.Context) error
}
