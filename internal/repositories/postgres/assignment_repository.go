package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/repositories"
)

// PostgresAssignmentRepository implements AssignmentRepository using PostgreSQL
type PostgresAssignmentRepository struct {
	db *sql.DB
}

// NewPostgresAssignmentRepository creates a new PostgreSQL assignment repository
func NewPostgresAssignmentRepository(db *sql.DB) repositories.AssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

// Create inserts a new assignment row
func (r *PostgresAssignmentRepository) Create(ctx context.Context, assignment *entities.Assignment) error {
	if err := assignment.Validate(); err != nil {
		return fmt.Errorf("invalid assignment: %w", err)
	}

	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO auth_assignment (user_id, item_name, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, assignment.UserID, assignment.RoleName, assignment.CreatedAt); err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// Get retrieves the assignment for a (userID, roleName) pair. Returns nil when absent.
func (r *PostgresAssignmentRepository) Get(ctx context.Context, userID string, roleName string) (*entities.Assignment, error) {
	query := `
		SELECT user_id, item_name, created_at
		FROM auth_assignment
		WHERE user_id = $1 AND item_name = $2
	`
	var assignment entities.Assignment
	err := r.db.QueryRowContext(ctx, query, userID, roleName).
		Scan(&assignment.UserID, &assignment.RoleName, &assignment.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

// ListByUser retrieves all assignments of a user, keyed by role name
func (r *PostgresAssignmentRepository) ListByUser(ctx context.Context, userID string) (map[string]*entities.Assignment, error) {
	query := `
		SELECT user_id, item_name, created_at
		FROM auth_assignment
		WHERE user_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]*entities.Assignment)
	for rows.Next() {
		var assignment entities.Assignment
		if err := rows.Scan(&assignment.UserID, &assignment.RoleName, &assignment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments[assignment.RoleName] = &assignment
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return assignments, nil
}

// ListUserIDsByRole retrieves the IDs of all users directly assigned a role
func (r *PostgresAssignmentRepository) ListUserIDsByRole(ctx context.Context, roleName string) ([]string, error) {
	query := `
		SELECT user_id
		FROM auth_assignment
		WHERE item_name = $1
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to list user IDs: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user IDs: %w", err)
	}
	return userIDs, nil
}

// Delete removes a single assignment. Returns false when no row matched.
func (r *PostgresAssignmentRepository) Delete(ctx context.Context, userID string, roleName string) (bool, error) {
	query := `DELETE FROM auth_assignment WHERE user_id = $1 AND item_name = $2`
	result, err := r.db.ExecContext(ctx, query, userID, roleName)
	if err != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByUser removes all assignments of a user
func (r *PostgresAssignmentRepository) DeleteByUser(ctx context.Context, userID string) (bool, error) {
	query := `DELETE FROM auth_assignment WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete assignments: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteAll removes every assignment
func (r *PostgresAssignmentRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_assignment`); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}
