package routing

import (
	"fmt"

	"genproxy/internal/models"
)

// NoAvailableProxyError is returned when no candidate survives filtering.
type NoAvailableProxyError struct {
	ModelName string
	MediaType models.MediaType
	Reason    string
}

func (e *NoAvailableProxyError) Error() string {
	return fmt.Sprintf("no available proxy for model %q (%s): %s", e.ModelName, e.MediaType, e.Reason)
}

// PolicyBlockedError is returned when a routing rule explicitly blocks the
// request.
type PolicyBlockedError struct {
	RuleName string
}

func (e *PolicyBlockedError) Error() string {
	return fmt.Sprintf("request blocked by routing rule %q", e.RuleName)
}

// CostExceededError is returned when a cost constraint empties the
// candidate set. The constraint fails loudly instead of being silently
// ignored.
type CostExceededError struct {
	DeclaredCost float64
	MaxCost      float64
	Threshold    string // set when a configured threshold, not the request, imposed the limit
}

func (e *CostExceededError) Error() string {
	if e.Threshold != "" {
		return fmt.Sprintf("cost threshold %q would be breached by a %.4f call", e.Threshold, e.DeclaredCost)
	}
	return fmt.Sprintf("declared cost %.4f exceeds request limit %.4f", e.DeclaredCost, e.MaxCost)
}
