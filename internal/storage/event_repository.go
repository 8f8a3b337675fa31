package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

const eventColumns = `
	id, account_id, reason, triggered_by, created_at, resolved_at
`

// EventRepository handles the immutable failover event log
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByID retrieves an event by ID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FailoverEvent, error) {
	var event models.FailoverEvent
	query := fmt.Sprintf(`SELECT %s FROM failover_events WHERE id = $1`, eventColumns)

	err := r.db.conn.GetContext(ctx, &event, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

// GetOpenByAccount retrieves the open (unresolved) event for an account,
// or ErrEventNotFound when the account has no failover in progress.
func (r *EventRepository) GetOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.FailoverEvent, error) {
	var event models.FailoverEvent
	query := fmt.Sprintf(`
		SELECT %s FROM failover_events
		WHERE account_id = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, eventColumns)

	err := r.db.conn.GetContext(ctx, &event, query, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get open event: %w", err)
	}

	return &event, nil
}

// ListByAccount returns an account's failover history, newest first.
func (r *EventRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.FailoverEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM failover_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, eventColumns)

	var events []*models.FailoverEvent
	if err := r.db.conn.SelectContext(ctx, &events, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}

// ListOpen returns all currently open events, oldest first.
func (r *EventRepository) ListOpen(ctx context.Context) ([]*models.FailoverEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM failover_events
		WHERE resolved_at IS NULL
		ORDER BY created_at
	`, eventColumns)

	var events []*models.FailoverEvent
	if err := r.db.conn.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("failed to list open events: %w", err)
	}

	return events, nil
}

// CountOpen returns the number of currently open events ("active failovers").
func (r *EventRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.conn.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM failover_events WHERE resolved_at IS NULL")
	if err != nil {
		return 0, fmt.Errorf("failed to count open events: %w", err)
	}
	return count, nil
}

// CountTotal returns the total number of recorded events.
func (r *EventRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	err := r.db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM failover_events")
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Create appends a new event to the log
func (r *EventRepository) Create(ctx context.Context, event *models.FailoverEvent) error {
	query := `
		INSERT INTO failover_events (id, account_id, reason, triggered_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		event.ID, event.AccountID, event.Reason, event.TriggeredBy,
	).Scan(&event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// Resolve marks an open event as resolved. Events are otherwise immutable.
func (r *EventRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE failover_events SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to resolve event: %w", err)
	}
	return checkAffected(result, ErrEventNotFound)
}
