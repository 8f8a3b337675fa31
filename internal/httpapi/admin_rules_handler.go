package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"genproxy/internal/models"
	"genproxy/internal/registry"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// AdminRulesHandler handles routing rule management endpoints
type AdminRulesHandler struct {
	db       *storage.DB
	registry *registry.Registry
}

// NewAdminRulesHandler creates a new admin rules handler
func NewAdminRulesHandler(db *storage.DB, reg *registry.Registry) *AdminRulesHandler {
	return &AdminRulesHandler{db: db, registry: reg}
}

// RuleRequest represents the request to create or replace a routing rule
type RuleRequest struct {
	Name            string   `json:"name"`
	Priority        int      `json:"priority"`
	MediaType       *string  `json:"media_type,omitempty"`
	ModelPattern    string   `json:"model_pattern,omitempty"`
	MaxCost         *float64 `json:"max_cost,omitempty"`
	Region          string   `json:"region,omitempty"`
	Action          string   `json:"action"`
	TargetAccountID *string  `json:"target_account_id,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
}

func (req *RuleRequest) validate() string {
	if req.Name == "" {
		return "Name is required"
	}
	switch models.RuleAction(req.Action) {
	case models.RuleActionRouteTo:
		if req.TargetAccountID == nil {
			return "Target account ID is required for route_to rules"
		}
	case models.RuleActionBlock, models.RuleActionNone:
	default:
		return "Unrecognized action"
	}
	if req.MediaType != nil && !models.ValidMediaType(*req.MediaType) {
		return "Unrecognized media type"
	}
	if req.ModelPattern != "" {
		if _, err := path.Match(req.ModelPattern, "probe"); err != nil {
			return "Invalid model pattern"
		}
	}
	return ""
}

func (req *RuleRequest) apply(rule *models.RoutingRule) error {
	rule.Name = req.Name
	rule.Priority = req.Priority
	rule.ModelPattern = req.ModelPattern
	rule.MaxCost = req.MaxCost
	rule.Region = req.Region
	rule.Action = models.RuleAction(req.Action)

	rule.MediaType = nil
	if req.MediaType != nil {
		media := models.MediaType(*req.MediaType)
		rule.MediaType = &media
	}

	rule.TargetAccountID = nil
	if req.TargetAccountID != nil {
		targetID, err := uuid.Parse(*req.TargetAccountID)
		if err != nil {
			return err
		}
		rule.TargetAccountID = &targetID
	}

	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	return nil
}

// Collection handles /admin/rules (GET list, POST create)
func (h *AdminRulesHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item handles /admin/rules/:id (GET, PUT, DELETE)
func (h *AdminRulesHandler) Item(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Rule ID is required")
		return
	}
	ruleID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid rule ID format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, ruleID)
	case http.MethodPut:
		h.update(w, r, ruleID)
	case http.MethodDelete:
		h.delete(w, r, ruleID)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AdminRulesHandler) list(w http.ResponseWriter, r *http.Request) {
	repo := storage.NewRuleRepository(h.db)
	rules, err := repo.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": rules,
		"count": len(rules),
	})
}

func (h *AdminRulesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem := req.validate(); problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	rule := &models.RoutingRule{
		ID:      uuid.New(),
		Enabled: true,
	}
	if err := req.apply(rule); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid target account ID format")
		return
	}

	repo := storage.NewRuleRepository(h.db)
	if err := repo.Create(r.Context(), rule); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusCreated, rule)
}

func (h *AdminRulesHandler) get(w http.ResponseWriter, r *http.Request, ruleID uuid.UUID) {
	repo := storage.NewRuleRepository(h.db)
	rule, err := repo.GetByID(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get rule")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, rule)
}

func (h *AdminRulesHandler) update(w http.ResponseWriter, r *http.Request, ruleID uuid.UUID) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem := req.validate(); problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	repo := storage.NewRuleRepository(h.db)
	rule, err := repo.GetByID(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get rule")
		return
	}

	if err := req.apply(rule); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid target account ID format")
		return
	}

	if err := repo.Update(r.Context(), rule); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, rule)
}

func (h *AdminRulesHandler) delete(w http.ResponseWriter, r *http.Request, ruleID uuid.UUID) {
	repo := storage.NewRuleRepository(h.db)
	if err := repo.Delete(r.Context(), ruleID); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Rule deleted",
	})
}

func (h *AdminRulesHandler) reloadRegistry(r *http.Request) {
	if h.registry == nil {
		return
	}
	_ = h.registry.Reload(r.Context())
}
