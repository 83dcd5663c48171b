package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asakaida/yakuwari/internal/entities"
	"github.com/asakaida/yakuwari/internal/repositories"
)

// PostgresRuleRepository implements RuleRepository using PostgreSQL.
// Rule specs are persisted as versioned JSON, not a language-native
// serialization, so rows stay portable across implementations.
type PostgresRuleRepository struct {
	db *sql.DB
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository
func NewPostgresRuleRepository(db *sql.DB) repositories.RuleRepository {
	return &PostgresRuleRepository{db: db}
}

// Create inserts a new rule row
func (r *PostgresRuleRepository) Create(ctx context.Context, rule *entities.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	data, err := json.Marshal(&rule.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal rule spec: %w", err)
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	query := `
		INSERT INTO auth_rule (name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, rule.Name, data, rule.CreatedAt, rule.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update updates the rule identified by oldName.
// Renames cascade to auth_item.rule_name via foreign keys.
func (r *PostgresRuleRepository) Update(ctx context.Context, oldName string, rule *entities.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	data, err := json.Marshal(&rule.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal rule spec: %w", err)
	}

	rule.UpdatedAt = time.Now()

	query := `
		UPDATE auth_rule
		SET name = $1, data = $2, updated_at = $3
		WHERE name = $4
	`
	result, err := r.db.ExecContext(ctx, query, rule.Name, data, rule.UpdatedAt, oldName)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule not found: %s", oldName)
	}

	return nil
}

// Delete removes the rule row. Items referencing the rule get their
// rule_name cleared by the store's ON DELETE SET NULL foreign key.
func (r *PostgresRuleRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM auth_rule WHERE name = $1`
	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule not found: %s", name)
	}

	return nil
}

// GetByName retrieves a rule by name. Returns nil when absent.
func (r *PostgresRuleRepository) GetByName(ctx context.Context, name string) (*entities.Rule, error) {
	query := `
		SELECT name, data, created_at, updated_at
		FROM auth_rule
		WHERE name = $1
	`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List retrieves every rule
func (r *PostgresRuleRepository) List(ctx context.Context) ([]*entities.Rule, error) {
	query := `
		SELECT name, data, created_at, updated_at
		FROM auth_rule
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entities.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// DeleteAll removes every rule
func (r *PostgresRuleRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_rule`); err != nil {
		return fmt.Errorf("failed to delete rules: %w", err)
	}
	return nil
}

// scanRule scans a single auth_rule row and decodes its spec
func scanRule(row rowScanner) (*entities.Rule, error) {
	var rule entities.Rule
	var data []byte

	if err := row.Scan(&rule.Name, &data, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &rule.Spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule spec for %s: %w", rule.Name, err)
	}

	return &rule, nil
}
