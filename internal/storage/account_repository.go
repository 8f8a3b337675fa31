package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

const accountColumns = `
	id, name, display_name, provider_tag, base_url, encrypted_credential,
	enabled, priority, region, capabilities, rate_limits, health_status,
	failover_excluded, created_at, updated_at
`

// AccountRepository handles proxy account database operations
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ProxyAccount, error) {
	var account models.ProxyAccount
	query := fmt.Sprintf(`SELECT %s FROM proxy_accounts WHERE id = $1`, accountColumns)

	err := r.db.conn.GetContext(ctx, &account, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetByName retrieves an account by its unique name
func (r *AccountRepository) GetByName(ctx context.Context, name string) (*models.ProxyAccount, error) {
	var account models.ProxyAccount
	query := fmt.Sprintf(`SELECT %s FROM proxy_accounts WHERE name = $1`, accountColumns)

	err := r.db.conn.GetContext(ctx, &account, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// AccountListFilters contains filter parameters for listing accounts
type AccountListFilters struct {
	Search      string
	EnabledOnly *bool
	ProviderTag string
	Region      string
	Page        int
	PageSize    int
}

// AccountListResult contains paginated account list results
type AccountListResult struct {
	Accounts   []*models.ProxyAccount
	TotalCount int
	Page       int
	PageSize   int
}

// List returns all accounts ordered by priority, then name
func (r *AccountRepository) List(ctx context.Context) ([]*models.ProxyAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM proxy_accounts ORDER BY priority, name`, accountColumns)

	var accounts []*models.ProxyAccount
	if err := r.db.conn.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// ListEnabled returns all enabled accounts ordered by priority
func (r *AccountRepository) ListEnabled(ctx context.Context) ([]*models.ProxyAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM proxy_accounts WHERE enabled ORDER BY priority, name`, accountColumns)

	var accounts []*models.ProxyAccount
	if err := r.db.conn.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled accounts: %w", err)
	}

	return accounts, nil
}

// ListWithFilters returns accounts with filtering and pagination
func (r *AccountRepository) ListWithFilters(ctx context.Context, filters AccountListFilters) (*AccountListResult, error) {
	var whereClauses []string
	var args []interface{}
	argCount := 1

	if filters.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("(name ILIKE $%d OR display_name ILIKE $%d)", argCount, argCount))
		args = append(args, "%"+filters.Search+"%")
		argCount++
	}

	if filters.EnabledOnly != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("enabled = $%d", argCount))
		args = append(args, *filters.EnabledOnly)
		argCount++
	}

	if filters.ProviderTag != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("provider_tag = $%d", argCount))
		args = append(args, filters.ProviderTag)
		argCount++
	}

	if filters.Region != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("region = $%d", argCount))
		args = append(args, filters.Region)
		argCount++
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + whereClauses[0]
		for i := 1; i < len(whereClauses); i++ {
			whereClause += " AND " + whereClauses[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM proxy_accounts %s", whereClause)
	var totalCount int
	if err := r.db.conn.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	dataQuery := fmt.Sprintf(`
		SELECT %s FROM proxy_accounts
		%s
		ORDER BY priority, name
		LIMIT $%d OFFSET $%d
	`, accountColumns, whereClause, argCount, argCount+1)

	args = append(args, filters.PageSize, offset)

	var accounts []*models.ProxyAccount
	if err := r.db.conn.SelectContext(ctx, &accounts, dataQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return &AccountListResult{
		Accounts:   accounts,
		TotalCount: totalCount,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	}, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.ProxyAccount) error {
	query := `
		INSERT INTO proxy_accounts (id, name, display_name, provider_tag, base_url,
		                            encrypted_credential, enabled, priority, region,
		                            capabilities, rate_limits, health_status, failover_excluded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.HealthStatus == "" {
		account.HealthStatus = models.HealthUnknown
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		account.ID, account.Name, account.DisplayName, account.ProviderTag, account.BaseURL,
		account.EncryptedCredential, account.Enabled, account.Priority, account.Region,
		account.Capabilities, account.RateLimits, account.HealthStatus, account.FailoverExcluded,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// Update updates an existing account
func (r *AccountRepository) Update(ctx context.Context, account *models.ProxyAccount) error {
	query := `
		UPDATE proxy_accounts
		SET name = $2, display_name = $3, provider_tag = $4, base_url = $5,
		    encrypted_credential = $6, enabled = $7, priority = $8, region = $9,
		    capabilities = $10, rate_limits = $11
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		account.ID, account.Name, account.DisplayName, account.ProviderTag, account.BaseURL,
		account.EncryptedCredential, account.Enabled, account.Priority, account.Region,
		account.Capabilities, account.RateLimits,
	).Scan(&account.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	return nil
}

// SetHealthStatus persists the monitored health state for an account.
// Written only by the health monitor.
func (r *AccountRepository) SetHealthStatus(ctx context.Context, id uuid.UUID, status models.HealthStatus) error {
	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE proxy_accounts SET health_status = $2 WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to set health status: %w", err)
	}
	return checkAffected(result, ErrAccountNotFound)
}

// SetFailoverExcluded toggles the failover eligibility flag.
// Written only by the failover manager.
func (r *AccountRepository) SetFailoverExcluded(ctx context.Context, id uuid.UUID, excluded bool) error {
	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE proxy_accounts SET failover_excluded = $2 WHERE id = $1", id, excluded)
	if err != nil {
		return fmt.Errorf("failed to set failover exclusion: %w", err)
	}
	return checkAffected(result, ErrAccountNotFound)
}

// Delete deletes an account
func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM proxy_accounts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return checkAffected(result, ErrAccountNotFound)
}

func checkAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
