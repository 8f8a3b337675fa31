package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"genproxy/internal/models"
	"genproxy/internal/registry"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// AdminBindingsHandler handles model binding management endpoints
type AdminBindingsHandler struct {
	db       *storage.DB
	registry *registry.Registry
}

// NewAdminBindingsHandler creates a new admin bindings handler
func NewAdminBindingsHandler(db *storage.DB, reg *registry.Registry) *AdminBindingsHandler {
	return &AdminBindingsHandler{db: db, registry: reg}
}

// BindingRequest represents the request to create or replace a binding
type BindingRequest struct {
	ModelName   string   `json:"model_name"`
	MediaType   string   `json:"media_type"`
	AccountIDs  []string `json:"account_ids"` // primary first
	CostPerCall float64  `json:"cost_per_call"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

func (req *BindingRequest) validate(r *http.Request, db *storage.DB) (string, error) {
	if req.ModelName == "" {
		return "Model name is required", nil
	}
	if !models.ValidMediaType(req.MediaType) {
		return "Unrecognized media type", nil
	}
	if len(req.AccountIDs) == 0 {
		return "At least one account ID is required", nil
	}
	if req.CostPerCall < 0 {
		return "Cost per call must not be negative", nil
	}

	// every referenced account must exist
	accountRepo := storage.NewAccountRepository(db)
	for _, idStr := range req.AccountIDs {
		accountID, err := uuid.Parse(idStr)
		if err != nil {
			return "Invalid account ID format: " + idStr, nil
		}
		if _, err := accountRepo.GetByID(r.Context(), accountID); err != nil {
			if errors.Is(err, storage.ErrAccountNotFound) {
				return "Account not found: " + idStr, nil
			}
			return "", err
		}
	}
	return "", nil
}

// Collection handles /admin/bindings (GET list, POST create)
func (h *AdminBindingsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item handles /admin/bindings/:id (GET, PUT, DELETE)
func (h *AdminBindingsHandler) Item(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Binding ID is required")
		return
	}
	bindingID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid binding ID format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, bindingID)
	case http.MethodPut:
		h.update(w, r, bindingID)
	case http.MethodDelete:
		h.delete(w, r, bindingID)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AdminBindingsHandler) list(w http.ResponseWriter, r *http.Request) {
	repo := storage.NewBindingRepository(h.db)
	bindings, err := repo.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": bindings,
		"count": len(bindings),
	})
}

func (h *AdminBindingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req BindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem, err := req.validate(r, h.db); problem != "" || err != nil {
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to validate binding")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	binding := &models.ModelBinding{
		ID:          uuid.New(),
		ModelName:   req.ModelName,
		MediaType:   models.MediaType(req.MediaType),
		AccountIDs:  pq.StringArray(req.AccountIDs),
		CostPerCall: req.CostPerCall,
		Enabled:     enabled,
	}

	repo := storage.NewBindingRepository(h.db)
	if err := repo.Create(r.Context(), binding); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusCreated, binding)
}

func (h *AdminBindingsHandler) get(w http.ResponseWriter, r *http.Request, bindingID uuid.UUID) {
	repo := storage.NewBindingRepository(h.db)
	binding, err := repo.GetByID(r.Context(), bindingID)
	if err != nil {
		if errors.Is(err, storage.ErrBindingNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Binding not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, binding)
}

func (h *AdminBindingsHandler) update(w http.ResponseWriter, r *http.Request, bindingID uuid.UUID) {
	var req BindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if problem, err := req.validate(r, h.db); problem != "" || err != nil {
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to validate binding")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, problem)
		return
	}

	repo := storage.NewBindingRepository(h.db)
	binding, err := repo.GetByID(r.Context(), bindingID)
	if err != nil {
		if errors.Is(err, storage.ErrBindingNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Binding not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	binding.ModelName = req.ModelName
	binding.MediaType = models.MediaType(req.MediaType)
	binding.AccountIDs = pq.StringArray(req.AccountIDs)
	binding.CostPerCall = req.CostPerCall
	if req.Enabled != nil {
		binding.Enabled = *req.Enabled
	}

	if err := repo.Update(r.Context(), binding); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, binding)
}

func (h *AdminBindingsHandler) delete(w http.ResponseWriter, r *http.Request, bindingID uuid.UUID) {
	repo := storage.NewBindingRepository(h.db)
	if err := repo.Delete(r.Context(), bindingID); err != nil {
		if errors.Is(err, storage.ErrBindingNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Binding not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Binding deleted",
	})
}

func (h *AdminBindingsHandler) reloadRegistry(r *http.Request) {
	if h.registry == nil {
		return
	}
	_ = h.registry.Reload(r.Context())
}
