package models

import (
	"time"

	"github.com/google/uuid"
)

// FailoverTrigger records whether a failover event was opened by the
// automatic monitor or by an operator.
type FailoverTrigger string

const (
	TriggerAutomatic FailoverTrigger = "automatic"
	TriggerManual    FailoverTrigger = "manual"
)

// FailoverState enumerates the per-account failover state machine.
type FailoverState string

const (
	FailoverActive      FailoverState = "active"
	FailoverSuspected   FailoverState = "suspected"
	FailoverFailingOver FailoverState = "failing_over"
	FailoverFailedOver  FailoverState = "failed_over"
	FailoverRecovering  FailoverState = "recovering"
)

// FailoverEvent is an immutable audit entry for one failover episode.
// An event with a nil ResolvedAt is still open ("active failover").
type FailoverEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	AccountID   uuid.UUID       `db:"account_id" json:"account_id"`
	Reason      string          `db:"reason" json:"reason"`
	TriggeredBy FailoverTrigger `db:"triggered_by" json:"triggered_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Open reports whether the event has not been resolved yet.
func (e *FailoverEvent) Open() bool {
	return e.ResolvedAt == nil
}
