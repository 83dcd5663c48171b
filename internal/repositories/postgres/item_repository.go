package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/repositories"
)

// PostgresItemRepository implements ItemRepository using PostgreSQL
type PostgresItemRepository struct {
	db *sql.DB
}

// NewPostgresItemRepository creates a new PostgreSQL item repository
func NewPostgresItemRepository(db *sql.DB) repositories.ItemRepository {
	return &PostgresItemRepository{db: db}
}

// Create inserts a new item row.
// CreatedAt/UpdatedAt are set to the current time when unset.
func (r *PostgresItemRepository) Create(ctx context.Context, item *entities.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}

	query := `
		INSERT INTO auth_item (name, item_type, description, rule_name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.Name,
		int(item.Type),
		nullString(item.Description),
		nullString(item.RuleName),
		nullBytes(item.Data),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Update updates the item identified by oldName.
// Renames cascade to auth_item_child and auth_assignment via foreign keys.
func (r *PostgresItemRepository) Update(ctx context.Context, oldName string, item *entities.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	item.UpdatedAt = time.Now()

	query := `
		UPDATE auth_item
		SET name = $1, item_type = $2, description = $3, rule_name = $4, data = $5, updated_at = $6
		WHERE name = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		item.Name,
		int(item.Type),
		nullString(item.Description),
		nullString(item.RuleName),
		nullBytes(item.Data),
		item.UpdatedAt,
		oldName,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item not found: %s", oldName)
	}

	return nil
}

// Delete removes the item row. Edges and assignments referencing the item
// are removed by the store's cascading foreign keys.
func (r *PostgresItemRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM auth_item WHERE name = $1`
	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item not found: %s", name)
	}

	return nil
}

// GetByName retrieves an item by name. Returns nil when absent.
func (r *PostgresItemRepository) GetByName(ctx context.Context, name string) (*entities.Item, error) {
	query := `
		SELECT name, item_type, description, rule_name, data, created_at, updated_at
		FROM auth_item
		WHERE name = $1
	`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// ListByType retrieves all items of the given type
func (r *PostgresItemRepository) ListByType(ctx context.Context, itemType entities.ItemType) ([]*entities.Item, error) {
	query := `
		SELECT name, item_type, description, rule_name, data, created_at, updated_at
		FROM auth_item
		WHERE item_type = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, int(itemType))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListAll retrieves every item regardless of type
func (r *PostgresItemRepository) ListAll(ctx context.Context) ([]*entities.Item, error) {
	query := `
		SELECT name, item_type, description, rule_name, data, created_at, updated_at
		FROM auth_item
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// DeleteByType removes all items of the given type
func (r *PostgresItemRepository) DeleteByType(ctx context.Context, itemType entities.ItemType) error {
	query := `DELETE FROM auth_item WHERE item_type = $1`
	if _, err := r.db.ExecContext(ctx, query, int(itemType)); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// DeleteAll removes every item
func (r *PostgresItemRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_item`); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanItem scans a single auth_item row
func scanItem(row rowScanner) (*entities.Item, error) {
	var item entities.Item
	var itemType int
	var description, ruleName sql.NullString
	var data []byte

	err := row.Scan(&item.Name, &itemType, &description, &ruleName, &data, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Type = entities.ItemType(itemType)
	item.Description = description.String
	item.RuleName = ruleName.String
	if len(data) > 0 {
		item.Data = data
	}

	return &item, nil
}

// collectItems scans all auth_item rows from a query result
func collectItems(rows *sql.Rows) ([]*entities.Item, error) {
	var items []*entities.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// nullString converts an empty string to a SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullBytes converts an empty byte slice to a SQL NULL
func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
