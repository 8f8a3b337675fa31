package models

import (
	"time"

	"github.com/google/uuid"
)

// ThresholdScope enumerates the accrual windows a cost threshold applies to.
type ThresholdScope string

const (
	ScopeDaily   ThresholdScope = "daily"
	ScopeWeekly  ThresholdScope = "weekly"
	ScopeMonthly ThresholdScope = "monthly"
	ScopePerTask ThresholdScope = "per_task"
	ScopePerUser ThresholdScope = "per_user"
)

// ValidThresholdScope reports whether s is a recognized scope.
func ValidThresholdScope(s string) bool {
	switch ThresholdScope(s) {
	case ScopeDaily, ScopeWeekly, ScopeMonthly, ScopePerTask, ScopePerUser:
		return true
	}
	return false
}

// CostThreshold is a named spending limit consulted at routing time.
// It is a soft constraint: candidates that would breach it are rejected or
// down-ranked, but accrual is not transactional.
type CostThreshold struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Scope       ThresholdScope `db:"scope" json:"scope"`
	LimitAmount float64        `db:"limit_amount" json:"limit_amount"`
	Currency    string         `db:"currency" json:"currency"`
	Enabled     bool           `db:"enabled" json:"enabled"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
