package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

const bindingColumns = `
	id, model_name, media_type, account_ids, cost_per_call, enabled,
	created_at, updated_at
`

// BindingRepository handles model binding database operations
type BindingRepository struct {
	db *DB
}

// NewBindingRepository creates a new binding repository
func NewBindingRepository(db *DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// GetByID retrieves a binding by ID
func (r *BindingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelBinding, error) {
	var binding models.ModelBinding
	query := fmt.Sprintf(`SELECT %s FROM model_bindings WHERE id = $1`, bindingColumns)

	err := r.db.conn.GetContext(ctx, &binding, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	return &binding, nil
}

// GetByModel retrieves the enabled binding for a (model name, media type)
// pair. Results are cached briefly since this lookup sits on the routing
// hot path.
func (r *BindingRepository) GetByModel(ctx context.Context, modelName string, mediaType models.MediaType) (*models.ModelBinding, error) {
	cacheKey := modelName + "|" + string(mediaType)
	if cached, ok := r.db.bindingCache.Get(cacheKey); ok {
		return cached.(*models.ModelBinding), nil
	}

	var binding models.ModelBinding
	query := fmt.Sprintf(`
		SELECT %s FROM model_bindings
		WHERE model_name = $1 AND media_type = $2 AND enabled
	`, bindingColumns)

	err := r.db.conn.GetContext(ctx, &binding, query, modelName, mediaType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	r.db.bindingCache.Set(cacheKey, &binding)
	return &binding, nil
}

// List returns all bindings ordered by model name
func (r *BindingRepository) List(ctx context.Context) ([]*models.ModelBinding, error) {
	query := fmt.Sprintf(`SELECT %s FROM model_bindings ORDER BY model_name, media_type`, bindingColumns)

	var bindings []*models.ModelBinding
	if err := r.db.conn.SelectContext(ctx, &bindings, query); err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}

	return bindings, nil
}

// ListByAccount returns all bindings that include the given account as a
// candidate.
func (r *BindingRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.ModelBinding, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM model_bindings
		WHERE $1 = ANY(account_ids)
		ORDER BY model_name, media_type
	`, bindingColumns)

	var bindings []*models.ModelBinding
	if err := r.db.conn.SelectContext(ctx, &bindings, query, accountID.String()); err != nil {
		return nil, fmt.Errorf("failed to list bindings for account: %w", err)
	}

	return bindings, nil
}

// Create creates a new binding
func (r *BindingRepository) Create(ctx context.Context, binding *models.ModelBinding) error {
	query := `
		INSERT INTO model_bindings (id, model_name, media_type, account_ids, cost_per_call, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		binding.ID, binding.ModelName, binding.MediaType, binding.AccountIDs,
		binding.CostPerCall, binding.Enabled,
	).Scan(&binding.CreatedAt, &binding.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create binding: %w", err)
	}

	return nil
}

// Update updates an existing binding and invalidates its cache entry
func (r *BindingRepository) Update(ctx context.Context, binding *models.ModelBinding) error {
	query := `
		UPDATE model_bindings
		SET model_name = $2, media_type = $3, account_ids = $4, cost_per_call = $5, enabled = $6
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		binding.ID, binding.ModelName, binding.MediaType, binding.AccountIDs,
		binding.CostPerCall, binding.Enabled,
	).Scan(&binding.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrBindingNotFound
		}
		return fmt.Errorf("failed to update binding: %w", err)
	}

	r.db.bindingCache.Delete(binding.ModelName + "|" + string(binding.MediaType))
	return nil
}

// Delete deletes a binding
func (r *BindingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	binding, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM model_bindings WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}

	r.db.bindingCache.Delete(binding.ModelName + "|" + string(binding.MediaType))
	return checkAffected(result, ErrBindingNotFound)
}
