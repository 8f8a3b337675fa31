package routing

import (
	"time"

	"github.com/google/uuid"

	"genproxy/internal/models"
)

// Criteria describes one request's routing requirements.
type Criteria struct {
	MediaType models.MediaType `json:"media_type"`
	ModelName string           `json:"model_name"`
	MaxCost   *float64         `json:"max_cost,omitempty"`
	Region    string           `json:"region,omitempty"`
	Priority  string           `json:"priority,omitempty"` // request priority label, carried into audit
	TaskID    string           `json:"task_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
}

// Candidate is one ranked account in a decision.
type Candidate struct {
	AccountID uuid.UUID           `json:"account_id"`
	Name      string              `json:"name"`
	Priority  int                 `json:"priority"`
	Health    models.HealthStatus `json:"health"`
}

// Decision is the router's answer for one request.
type Decision struct {
	SelectedAccount       *models.ProxyAccount `json:"-"`
	SelectedAccountID     uuid.UUID            `json:"selected_account_id"`
	SelectedAccountName   string               `json:"selected_account_name"`
	SelectedModel         string               `json:"selected_model"`
	EstimatedCost         float64              `json:"estimated_cost"`
	EstimatedResponseTime time.Duration        `json:"estimated_response_time"`
	RoutingReason         string               `json:"routing_reason"`
	Alternatives          []Candidate          `json:"alternatives"` // next-ranked, best first
	DecidedAt             time.Time            `json:"decided_at"`
}
