package storage

import (
	"context"
	"fmt"
	"time"
)

// SpendSnapshot is a periodic copy of a Redis spend counter, kept in
// Postgres so dashboard reporting survives Redis restarts.
type SpendSnapshot struct {
	ScopeKey   string    `db:"scope_key" json:"scope_key"` // e.g. "daily:2026-08-29"
	Amount     float64   `db:"amount" json:"amount"`
	Currency   string    `db:"currency" json:"currency"`
	SnapshotAt time.Time `db:"snapshot_at" json:"snapshot_at"`
}

// SpendRepository persists spend counter snapshots
type SpendRepository struct {
	db *DB
}

// NewSpendRepository creates a new spend repository
func NewSpendRepository(db *DB) *SpendRepository {
	return &SpendRepository{db: db}
}

// Upsert writes or refreshes the snapshot for a scope key
func (r *SpendRepository) Upsert(ctx context.Context, snapshot *SpendSnapshot) error {
	query := `
		INSERT INTO spend_snapshots (scope_key, amount, currency, snapshot_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope_key)
		DO UPDATE SET amount = EXCLUDED.amount, snapshot_at = NOW()
	`

	if _, err := r.db.conn.ExecContext(ctx, query, snapshot.ScopeKey, snapshot.Amount, snapshot.Currency); err != nil {
		return fmt.Errorf("failed to upsert spend snapshot: %w", err)
	}
	return nil
}

// List returns all snapshots, newest first
func (r *SpendRepository) List(ctx context.Context) ([]*SpendSnapshot, error) {
	var snapshots []*SpendSnapshot
	query := `SELECT scope_key, amount, currency, snapshot_at FROM spend_snapshots ORDER BY snapshot_at DESC`

	if err := r.db.conn.SelectContext(ctx, &snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to list spend snapshots: %w", err)
	}
	return snapshots, nil
}
