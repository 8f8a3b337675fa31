package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

const thresholdColumns = `
	id, name, scope, limit_amount, currency, enabled, created_at, updated_at
`

// ThresholdRepository handles cost threshold database operations
type ThresholdRepository struct {
	db *DB
}

// NewThresholdRepository creates a new threshold repository
func NewThresholdRepository(db *DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// GetByID retrieves a threshold by ID
func (r *ThresholdRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CostThreshold, error) {
	var threshold models.CostThreshold
	query := fmt.Sprintf(`SELECT %s FROM cost_thresholds WHERE id = $1`, thresholdColumns)

	err := r.db.conn.GetContext(ctx, &threshold, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrThresholdNotFound
		}
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}

	return &threshold, nil
}

// List returns all thresholds ordered by name
func (r *ThresholdRepository) List(ctx context.Context) ([]*models.CostThreshold, error) {
	query := fmt.Sprintf(`SELECT %s FROM cost_thresholds ORDER BY name`, thresholdColumns)

	var thresholds []*models.CostThreshold
	if err := r.db.conn.SelectContext(ctx, &thresholds, query); err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}

	return thresholds, nil
}

// ListEnabled returns enabled thresholds ordered by name
func (r *ThresholdRepository) ListEnabled(ctx context.Context) ([]*models.CostThreshold, error) {
	query := fmt.Sprintf(`SELECT %s FROM cost_thresholds WHERE enabled ORDER BY name`, thresholdColumns)

	var thresholds []*models.CostThreshold
	if err := r.db.conn.SelectContext(ctx, &thresholds, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled thresholds: %w", err)
	}

	return thresholds, nil
}

// Create creates a new threshold
func (r *ThresholdRepository) Create(ctx context.Context, threshold *models.CostThreshold) error {
	query := `
		INSERT INTO cost_thresholds (id, name, scope, limit_amount, currency, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	if threshold.ID == uuid.Nil {
		threshold.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		threshold.ID, threshold.Name, threshold.Scope, threshold.LimitAmount,
		threshold.Currency, threshold.Enabled,
	).Scan(&threshold.CreatedAt, &threshold.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create threshold: %w", err)
	}

	return nil
}

// Update updates an existing threshold
func (r *ThresholdRepository) Update(ctx context.Context, threshold *models.CostThreshold) error {
	query := `
		UPDATE cost_thresholds
		SET name = $2, scope = $3, limit_amount = $4, currency = $5, enabled = $6
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		threshold.ID, threshold.Name, threshold.Scope, threshold.LimitAmount,
		threshold.Currency, threshold.Enabled,
	).Scan(&threshold.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrThresholdNotFound
		}
		return fmt.Errorf("failed to update threshold: %w", err)
	}

	return nil
}

// Delete deletes a threshold
func (r *ThresholdRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM cost_thresholds WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete threshold: %w", err)
	}
	return checkAffected(result, ErrThresholdNotFound)
}
