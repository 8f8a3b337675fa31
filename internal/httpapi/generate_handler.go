package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"genproxy/internal/coordinator"
	"genproxy/internal/models"
	"genproxy/internal/routing"
	"genproxy/internal/utils"
)

// GenerateRequest is the body for /v1/generate and /v1/route.
type GenerateRequest struct {
	Model     string         `json:"model"`
	MediaType string         `json:"media_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	MaxCost   *float64       `json:"max_cost,omitempty"`
	Region    string         `json:"region,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}

// GenerateResponse wraps the upstream answer with routing metadata.
type GenerateResponse struct {
	RequestID   string          `json:"request_id"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Model       string          `json:"model"`
	Attempts    int             `json:"attempts"`
	FailedOver  bool            `json:"failed_over"`
	Response    json.RawMessage `json:"response"`
}

// GenerationCoordinator runs a request end to end. Implemented by
// coordinator.Coordinator.
type GenerationCoordinator interface {
	ExecuteWithFailover(ctx context.Context, criteria routing.Criteria, payload map[string]any) (*coordinator.Outcome, error)
}

// DecisionSource produces a dry-run routing decision. Implemented by
// routing.Router.
type DecisionSource interface {
	SelectOptimalProxy(ctx context.Context, criteria routing.Criteria) (*routing.Decision, error)
}

// GenerateHandler serves generation traffic through the coordinator.
type GenerateHandler struct {
	coordinator GenerationCoordinator
	router      DecisionSource
}

// NewGenerateHandler creates a new generate handler
func NewGenerateHandler(coord GenerationCoordinator, router DecisionSource) *GenerateHandler {
	return &GenerateHandler{coordinator: coord, router: router}
}

func (req *GenerateRequest) criteria() (routing.Criteria, string) {
	if req.Model == "" {
		return routing.Criteria{}, "Model is required"
	}
	if req.MediaType == "" {
		req.MediaType = string(models.MediaText)
	}
	if !models.ValidMediaType(req.MediaType) {
		return routing.Criteria{}, "Unrecognized media type"
	}
	return routing.Criteria{
		MediaType: models.MediaType(req.MediaType),
		ModelName: req.Model,
		MaxCost:   req.MaxCost,
		Region:    req.Region,
		Priority:  req.Priority,
		TaskID:    req.TaskID,
		UserID:    req.UserID,
	}, ""
}

// Generate handles POST /v1/generate
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	criteria, problem := req.criteria()
	if problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	outcome, err := h.coordinator.ExecuteWithFailover(r.Context(), criteria, req.Payload)
	if err != nil {
		respondRoutingError(w, err)
		return
	}

	if outcome.Result.StatusCode >= 400 {
		// relay the upstream's terminal client error as-is
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(outcome.Result.StatusCode)
		w.Write(outcome.Result.Body)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, GenerateResponse{
		RequestID:   outcome.RequestID,
		AccountID:   outcome.AccountID.String(),
		AccountName: outcome.AccountName,
		Model:       outcome.Decision.SelectedModel,
		Attempts:    outcome.Attempts,
		FailedOver:  outcome.FailedOver,
		Response:    json.RawMessage(outcome.Result.Body),
	})
}

// Route handles POST /v1/route - a dry-run decision without execution
func (h *GenerateHandler) Route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	criteria, problem := req.criteria()
	if problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	decision, err := h.router.SelectOptimalProxy(r.Context(), criteria)
	if err != nil {
		respondRoutingError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, decision)
}

// respondRoutingError maps routing and execution errors to HTTP statuses.
func respondRoutingError(w http.ResponseWriter, err error) {
	var noProxy *routing.NoAvailableProxyError
	var blocked *routing.PolicyBlockedError
	var costErr *routing.CostExceededError

	switch {
	case errors.As(err, &noProxy):
		utils.RespondWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &blocked):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &costErr):
		utils.RespondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, coordinator.ErrAllAttemptsFailed):
		utils.RespondWithError(w, http.StatusBadGateway, err.Error())
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
