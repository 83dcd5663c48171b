package repositories

import (
	"context"

	"github.com/asakaida/yakuwari/internal/entities"
)

// AssignmentRepository defines the interface for user-role assignment data access
type AssignmentRepository interface {
	// Create inserts a new assignment row
	Create(ctx context.Context, assignment *entities.Assignment) error

	// Get retrieves the assignment for a (userID, roleName) pair.
	// Returns nil (no error) when absent.
	Get(ctx context.Context, userID string, roleName string) (*entities.Assignment, error)

	// ListByUser retrieves all assignments of a user, keyed by role name
	ListByUser(ctx context.Context, userID string) (map[string]*entities.Assignment, error)

	// ListUserIDsByRole retrieves the IDs of all users directly assigned a role
	ListUserIDsByRole(ctx context.Context, roleName string) ([]string, error)

	// Delete removes a single assignment. Returns false when no row matched.
	Delete(ctx context.Context, userID string, roleName string) (bool, error)

	// DeleteByUser removes all assignments of a user
	DeleteByUser(ctx context.Context, userID string) (bool, error)

	// DeleteAll removes every assignment
	DeleteAll(ctx context.Context) error
}
