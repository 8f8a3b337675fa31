package models

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// RuleAction enumerates what a matching routing rule does.
type RuleAction string

const (
	RuleActionRouteTo RuleAction = "route_to"
	RuleActionBlock   RuleAction = "block"
	RuleActionNone    RuleAction = "none"
)

// RoutingRule is a priority-ordered predicate over request attributes.
// Rules are evaluated strictly by ascending Priority; the first enabled
// match wins.
type RoutingRule struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Priority        int        `db:"priority" json:"priority"`
	MediaType       *MediaType `db:"media_type" json:"media_type,omitempty"`       // nil = any
	ModelPattern    string     `db:"model_pattern" json:"model_pattern,omitempty"` // glob, "" = any
	MaxCost         *float64   `db:"max_cost" json:"max_cost,omitempty"`
	Region          string     `db:"region" json:"region,omitempty"`
	Action          RuleAction `db:"action" json:"action"`
	TargetAccountID *uuid.UUID `db:"target_account_id" json:"target_account_id,omitempty"`
	Enabled         bool       `db:"enabled" json:"enabled"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Matches reports whether the rule's conditions all hold for the given
// request attributes. Unset conditions always hold.
func (r *RoutingRule) Matches(media MediaType, model string, cost float64, region string) bool {
	if r.MediaType != nil && *r.MediaType != media {
		return false
	}
	if r.ModelPattern != "" {
		ok, err := path.Match(r.ModelPattern, model)
		if err != nil || !ok {
			return false
		}
	}
	if r.MaxCost != nil && cost > *r.MaxCost {
		return false
	}
	if r.Region != "" && r.Region != region {
		return false
	}
	return true
}
