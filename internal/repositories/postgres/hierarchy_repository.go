package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/repositories"
)

// PostgresHierarchyRepository implements HierarchyRepository using PostgreSQL
type PostgresHierarchyRepository struct {
	db *sql.DB
}

// NewPostgresHierarchyRepository creates a new PostgreSQL hierarchy repository
func NewPostgresHierarchyRepository(db *sql.DB) repositories.HierarchyRepository {
	return &PostgresHierarchyRepository{db: db}
}

// AddChild inserts a parent -> child edge
func (r *PostgresHierarchyRepository) AddChild(ctx context.Context, parent string, child string) error {
	query := `INSERT INTO auth_item_child (parent, child) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, parent, child); err != nil {
		return fmt.Errorf("failed to add child: %w", err)
	}
	return nil
}

// RemoveChild deletes a single edge
func (r *PostgresHierarchyRepository) RemoveChild(ctx context.Context, parent string, child string) (bool, error) {
	query := `DELETE FROM auth_item_child WHERE parent = $1 AND child = $2`
	result, err := r.db.ExecContext(ctx, query, parent, child)
	if err != nil {
		return false, fmt.Errorf("failed to remove child: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RemoveChildren deletes all edges departing from parent
func (r *PostgresHierarchyRepository) RemoveChildren(ctx context.Context, parent string) (bool, error) {
	query := `DELETE FROM auth_item_child WHERE parent = $1`
	result, err := r.db.ExecContext(ctx, query, parent)
	if err != nil {
		return false, fmt.Errorf("failed to remove children: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// HasChild checks for a direct edge
func (r *PostgresHierarchyRepository) HasChild(ctx context.Context, parent string, child string) (bool, error) {
	query := `SELECT 1 FROM auth_item_child WHERE parent = $1 AND child = $2`
	var exists int
	err := r.db.QueryRowContext(ctx, query, parent, child).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check child: %w", err)
	}
	return true, nil
}

// GetChildren retrieves the direct children of parent
func (r *PostgresHierarchyRepository) GetChildren(ctx context.Context, parent string) ([]*entities.Item, error) {
	query := `
		SELECT i.name, i.item_type, i.description, i.rule_name, i.data, i.created_at, i.updated_at
		FROM auth_item i
		JOIN auth_item_child ic ON i.name = ic.child
		WHERE ic.parent = $1
		ORDER BY i.name
	`
	rows, err := r.db.QueryContext(ctx, query, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// GetParents retrieves the direct parents of child
func (r *PostgresHierarchyRepository) GetParents(ctx context.Context, child string) ([]*entities.Item, error) {
	query := `
		SELECT i.name, i.item_type, i.description, i.rule_name, i.data, i.created_at, i.updated_at
		FROM auth_item i
		JOIN auth_item_child ic ON i.name = ic.parent
		WHERE ic.child = $1
		ORDER BY i.name
	`
	rows, err := r.db.QueryContext(ctx, query, child)
	if err != nil {
		return nil, fmt.Errorf("failed to get parents: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListEdges retrieves every edge as a parents-by-child map
func (r *PostgresHierarchyRepository) ListEdges(ctx context.Context) (map[string][]string, error) {
	query := `SELECT parent, child FROM auth_item_child`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges[child] = append(edges[child], parent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return edges, nil
}

// DeleteAll removes every edge
func (r *PostgresHierarchyRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_item_child`); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	return nil
}
