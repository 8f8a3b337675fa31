package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"genproxy/internal/failover"
	"genproxy/internal/utils"
)

// FailoverHandler exposes failover stats and manual failover control.
type FailoverHandler struct {
	manager *failover.Manager
}

// NewFailoverHandler creates a new failover handler
func NewFailoverHandler(manager *failover.Manager) *FailoverHandler {
	return &FailoverHandler{manager: manager}
}

// Stats handles GET /v1/failover/stats
func (h *FailoverHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.manager.GetFailoverStats(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load failover stats")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, stats)
}

// History handles GET /v1/proxies/:id/failover/history
func (h *FailoverHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /v1/proxies/{id}/failover/history
	accountID, ok := proxyIDFromPath(w, r.URL.Path, 5)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.manager.GetProxyFailoverHistory(r.Context(), accountID, limit)
	if err != nil {
		if errors.Is(err, failover.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Proxy not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load failover history")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// TriggerRequest is the body for a manual failover.
type TriggerRequest struct {
	Reason string `json:"reason"`
}

// Trigger handles POST /v1/proxies/:id/failover
func (h *FailoverHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /v1/proxies/{id}/failover
	accountID, ok := proxyIDFromPath(w, r.URL.Path, 4)
	if !ok {
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Reason is required")
		return
	}

	event, err := h.manager.TriggerManualFailover(r.Context(), accountID, req.Reason)
	if err != nil {
		if errors.Is(err, failover.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Proxy not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to trigger failover")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, event)
}

// Recover handles POST /v1/proxies/:id/recover
func (h *FailoverHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /v1/proxies/{id}/recover
	accountID, ok := proxyIDFromPath(w, r.URL.Path, 4)
	if !ok {
		return
	}

	if err := h.manager.ManualRecovery(r.Context(), accountID); err != nil {
		if errors.Is(err, failover.ErrAccountNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Proxy not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to recover proxy")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Proxy recovered",
	})
}

// proxyIDFromPath extracts the account id from /v1/proxies/{id}/... paths.
// wantParts is the expected segment count after trimming.
func proxyIDFromPath(w http.ResponseWriter, urlPath string, wantParts int) (uuid.UUID, bool) {
	pathParts := strings.Split(strings.Trim(urlPath, "/"), "/")
	if len(pathParts) < wantParts {
		utils.RespondWithError(w, http.StatusBadRequest, "Proxy ID is required")
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid proxy ID format")
		return uuid.Nil, false
	}
	return accountID, true
}
