package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ModelBinding maps a logical (model name, media type) pair to an ordered
// list of candidate proxy accounts: the primary first, then fallbacks in
// significant order.
type ModelBinding struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	ModelName   string         `db:"model_name" json:"model_name"`
	MediaType   MediaType      `db:"media_type" json:"media_type"`
	AccountIDs  pq.StringArray `db:"account_ids" json:"account_ids"` // primary first
	CostPerCall float64        `db:"cost_per_call" json:"cost_per_call"`
	Enabled     bool           `db:"enabled" json:"enabled"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// PrimaryAccountID returns the first candidate, or uuid.Nil when the
// binding is empty.
func (b *ModelBinding) PrimaryAccountID() uuid.UUID {
	if len(b.AccountIDs) == 0 {
		return uuid.Nil
	}
	id, err := uuid.Parse(b.AccountIDs[0])
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Candidates returns the candidate account ids as parsed UUIDs, skipping
// malformed entries.
func (b *ModelBinding) Candidates() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(b.AccountIDs))
	for _, s := range b.AccountIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
