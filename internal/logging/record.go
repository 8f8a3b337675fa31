package logging

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one routing or failover fact, written as a JSON line.
type AuditRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"` // "decision", "attempt", "failover", "recovery"
	RequestID   string    `json:"request_id,omitempty"`
	ModelName   string    `json:"model_name,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	AccountID   uuid.UUID `json:"account_id,omitempty"`
	AccountName string    `json:"account_name,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	LatencyMs   int64     `json:"latency_ms,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TaskID      string    `json:"task_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Sink receives audit records from the coordinator and failover manager.
type Sink interface {
	Record(rec AuditRecord)
}

// NoopSink discards records. Used when auditing is disabled and in tests.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) Record(rec AuditRecord) {}
