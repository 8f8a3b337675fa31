package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"genproxy/internal/models"
	"genproxy/internal/registry"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// AdminThresholdsHandler handles cost threshold management endpoints
type AdminThresholdsHandler struct {
	db       *storage.DB
	registry *registry.Registry
}

// NewAdminThresholdsHandler creates a new admin thresholds handler
func NewAdminThresholdsHandler(db *storage.DB, reg *registry.Registry) *AdminThresholdsHandler {
	return &AdminThresholdsHandler{db: db, registry: reg}
}

// ThresholdRequest represents the request to create or replace a threshold
type ThresholdRequest struct {
	Name        string  `json:"name"`
	Scope       string  `json:"scope"`
	LimitAmount float64 `json:"limit_amount"`
	Currency    string  `json:"currency,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

func (req *ThresholdRequest) validate() string {
	if req.Name == "" {
		return "Name is required"
	}
	if !models.ValidThresholdScope(req.Scope) {
		return "Unrecognized scope"
	}
	if req.LimitAmount <= 0 {
		return "Limit amount must be positive"
	}
	return ""
}

// Collection handles /admin/thresholds (GET list, POST create)
func (h *AdminThresholdsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item handles /admin/thresholds/:id (GET, PUT, DELETE)
func (h *AdminThresholdsHandler) Item(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Threshold ID is required")
		return
	}
	thresholdID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid threshold ID format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, thresholdID)
	case http.MethodPut:
		h.update(w, r, thresholdID)
	case http.MethodDelete:
		h.delete(w, r, thresholdID)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AdminThresholdsHandler) list(w http.ResponseWriter, r *http.Request) {
	repo := storage.NewThresholdRepository(h.db)
	thresholds, err := repo.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list thresholds")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": thresholds,
		"count": len(thresholds),
	})
}

func (h *AdminThresholdsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem := req.validate(); problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	threshold := &models.CostThreshold{
		ID:          uuid.New(),
		Name:        req.Name,
		Scope:       models.ThresholdScope(req.Scope),
		LimitAmount: req.LimitAmount,
		Currency:    currency,
		Enabled:     enabled,
	}

	repo := storage.NewThresholdRepository(h.db)
	if err := repo.Create(r.Context(), threshold); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create threshold")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusCreated, threshold)
}

func (h *AdminThresholdsHandler) get(w http.ResponseWriter, r *http.Request, thresholdID uuid.UUID) {
	repo := storage.NewThresholdRepository(h.db)
	threshold, err := repo.GetByID(r.Context(), thresholdID)
	if err != nil {
		if errors.Is(err, storage.ErrThresholdNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Threshold not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get threshold")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, threshold)
}

func (h *AdminThresholdsHandler) update(w http.ResponseWriter, r *http.Request, thresholdID uuid.UUID) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem := req.validate(); problem != "" {
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	repo := storage.NewThresholdRepository(h.db)
	threshold, err := repo.GetByID(r.Context(), thresholdID)
	if err != nil {
		if errors.Is(err, storage.ErrThresholdNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Threshold not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get threshold")
		return
	}

	threshold.Name = req.Name
	threshold.Scope = models.ThresholdScope(req.Scope)
	threshold.LimitAmount = req.LimitAmount
	if req.Currency != "" {
		threshold.Currency = req.Currency
	}
	if req.Enabled != nil {
		threshold.Enabled = *req.Enabled
	}

	if err := repo.Update(r.Context(), threshold); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update threshold")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, threshold)
}

func (h *AdminThresholdsHandler) delete(w http.ResponseWriter, r *http.Request, thresholdID uuid.UUID) {
	repo := storage.NewThresholdRepository(h.db)
	if err := repo.Delete(r.Context(), thresholdID); err != nil {
		if errors.Is(err, storage.ErrThresholdNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Threshold not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete threshold")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Threshold deleted",
	})
}

func (h *AdminThresholdsHandler) reloadRegistry(r *http.Request) {
	if h.registry == nil {
		return
	}
	_ = h.registry.Reload(r.Context())
}
