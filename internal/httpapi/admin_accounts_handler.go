package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"genproxy/internal/models"
	"genproxy/internal/registry"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// AdminAccountsHandler handles proxy account management endpoints
type AdminAccountsHandler struct {
	db       *storage.DB
	cipher   *storage.CredentialCipher
	registry *registry.Registry
}

// NewAdminAccountsHandler creates a new admin accounts handler
func NewAdminAccountsHandler(db *storage.DB, cipher *storage.CredentialCipher, reg *registry.Registry) *AdminAccountsHandler {
	return &AdminAccountsHandler{db: db, cipher: cipher, registry: reg}
}

// CreateAccountRequest represents the request to register a proxy account
type CreateAccountRequest struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name,omitempty"`
	ProviderTag  string         `json:"provider_tag"`
	BaseURL      string         `json:"base_url"`
	Credential   string         `json:"credential"`
	Enabled      *bool          `json:"enabled,omitempty"`
	Priority     int            `json:"priority,omitempty"`
	Region       string         `json:"region,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	RateLimits   map[string]any `json:"rate_limits,omitempty"`
}

// UpdateAccountRequest carries the mutable account fields. Pointer fields
// distinguish "not sent" from zero values.
type UpdateAccountRequest struct {
	DisplayName  *string        `json:"display_name,omitempty"`
	BaseURL      *string        `json:"base_url,omitempty"`
	Credential   *string        `json:"credential,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
	Priority     *int           `json:"priority,omitempty"`
	Region       *string        `json:"region,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	RateLimits   map[string]any `json:"rate_limits,omitempty"`
}

// Collection handles /admin/accounts (GET list, POST create)
func (h *AdminAccountsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Item handles /admin/accounts/:id (GET, PUT, DELETE)
func (h *AdminAccountsHandler) Item(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Account ID is required")
		return
	}
	accountID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid account ID format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, accountID)
	case http.MethodPut:
		h.update(w, r, accountID)
	case http.MethodDelete:
		h.delete(w, r, accountID)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *AdminAccountsHandler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := storage.AccountListFilters{
		Search:      query.Get("search"),
		ProviderTag: query.Get("provider_tag"),
		Region:      query.Get("region"),
		Page:        1,
		PageSize:    20,
	}
	if enabledStr := query.Get("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filters.EnabledOnly = &enabled
	}
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			filters.Page = p
		}
	}
	if pageSizeStr := query.Get("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			filters.PageSize = ps
		}
	}

	repo := storage.NewAccountRepository(h.db)
	result, err := repo.ListWithFilters(r.Context(), filters)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       result.Accounts,
		"total_count": result.TotalCount,
		"page":        result.Page,
		"page_size":   result.PageSize,
	})
}

func (h *AdminAccountsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.ProviderTag == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider tag is required")
		return
	}
	if req.BaseURL == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Base URL is required")
		return
	}
	if req.Credential == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Credential is required")
		return
	}
	for _, capability := range req.Capabilities {
		if !models.ValidMediaType(capability) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unrecognized capability: "+capability)
			return
		}
	}
	if err := models.ValidateRateLimits(req.RateLimits); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	encrypted, err := h.cipher.Seal(req.Credential)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	account := &models.ProxyAccount{
		ID:                  uuid.New(),
		Name:                req.Name,
		DisplayName:         req.DisplayName,
		ProviderTag:         req.ProviderTag,
		BaseURL:             req.BaseURL,
		EncryptedCredential: encrypted,
		Enabled:             enabled,
		Priority:            req.Priority,
		Region:              req.Region,
		Capabilities:        pq.StringArray(req.Capabilities),
		RateLimits:          models.JSONB(req.RateLimits),
		HealthStatus:        models.HealthUnknown,
	}

	repo := storage.NewAccountRepository(h.db)
	if err := repo.Create(r.Context(), account); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusCreated, account)
}

func (h *AdminAccountsHandler) get(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	repo := storage.NewAccountRepository(h.db)
	account, err := repo.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, account)
}

func (h *AdminAccountsHandler) update(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	repo := storage.NewAccountRepository(h.db)
	account, err := repo.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}

	if req.DisplayName != nil {
		account.DisplayName = *req.DisplayName
	}
	if req.BaseURL != nil {
		account.BaseURL = *req.BaseURL
	}
	if req.Credential != nil {
		encrypted, err := h.cipher.Seal(*req.Credential)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
			return
		}
		account.EncryptedCredential = encrypted
	}
	if req.Enabled != nil {
		account.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		account.Priority = *req.Priority
	}
	if req.Region != nil {
		account.Region = *req.Region
	}
	if req.Capabilities != nil {
		for _, capability := range req.Capabilities {
			if !models.ValidMediaType(capability) {
				utils.RespondWithError(w, http.StatusBadRequest, "Unrecognized capability: "+capability)
				return
			}
		}
		account.Capabilities = pq.StringArray(req.Capabilities)
	}
	if req.RateLimits != nil {
		if err := models.ValidateRateLimits(req.RateLimits); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		account.RateLimits = models.JSONB(req.RateLimits)
	}

	if err := repo.Update(r.Context(), account); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update account")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, account)
}

func (h *AdminAccountsHandler) delete(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	repo := storage.NewAccountRepository(h.db)
	if err := repo.Delete(r.Context(), accountID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	h.reloadRegistry(r)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Account deleted",
	})
}

// reloadRegistry refreshes the routing snapshot after an admin mutation so
// changes take effect without waiting for the periodic reload.
func (h *AdminAccountsHandler) reloadRegistry(r *http.Request) {
	if h.registry == nil {
		return
	}
	_ = h.registry.Reload(r.Context())
}
