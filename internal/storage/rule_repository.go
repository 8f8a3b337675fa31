package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

const ruleColumns = `
	id, name, priority, media_type, model_pattern, max_cost, region,
	action, target_account_id, enabled, created_at, updated_at
`

// RuleRepository handles routing rule database operations
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoutingRule, error) {
	var rule models.RoutingRule
	query := fmt.Sprintf(`SELECT %s FROM routing_rules WHERE id = $1`, ruleColumns)

	err := r.db.conn.GetContext(ctx, &rule, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return &rule, nil
}

// List returns all rules in evaluation order (ascending priority)
func (r *RuleRepository) List(ctx context.Context) ([]*models.RoutingRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM routing_rules ORDER BY priority, name`, ruleColumns)

	var rules []*models.RoutingRule
	if err := r.db.conn.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return rules, nil
}

// ListEnabled returns enabled rules in evaluation order
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]*models.RoutingRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM routing_rules WHERE enabled ORDER BY priority, name`, ruleColumns)

	var rules []*models.RoutingRule
	if err := r.db.conn.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}

	return rules, nil
}

// Create creates a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.RoutingRule) error {
	query := `
		INSERT INTO routing_rules (id, name, priority, media_type, model_pattern,
		                           max_cost, region, action, target_account_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		rule.ID, rule.Name, rule.Priority, rule.MediaType, rule.ModelPattern,
		rule.MaxCost, rule.Region, rule.Action, rule.TargetAccountID, rule.Enabled,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

// Update updates an existing rule
func (r *RuleRepository) Update(ctx context.Context, rule *models.RoutingRule) error {
	query := `
		UPDATE routing_rules
		SET name = $2, priority = $3, media_type = $4, model_pattern = $5,
		    max_cost = $6, region = $7, action = $8, target_account_id = $9, enabled = $10
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		rule.ID, rule.Name, rule.Priority, rule.MediaType, rule.ModelPattern,
		rule.MaxCost, rule.Region, rule.Action, rule.TargetAccountID, rule.Enabled,
	).Scan(&rule.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrRuleNotFound
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete deletes a rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM routing_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkAffected(result, ErrRuleNotFound)
}
