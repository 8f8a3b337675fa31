package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"genproxy/internal/health"
	"genproxy/internal/utils"
)

// HealthHandler exposes the health monitor's view of the account pool.
type HealthHandler struct {
	monitor *health.Monitor
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// List handles GET /v1/proxies/health - health of every monitored account
func (h *HealthHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records := h.monitor.AllProxyHealth()
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"proxies": records,
		"count":   len(records),
	})
}

// History handles GET /v1/proxies/:id/health/history
func (h *HealthHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /v1/proxies/{id}/health/history
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 5 {
		utils.RespondWithError(w, http.StatusBadRequest, "Proxy ID is required")
		return
	}
	accountID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid proxy ID format")
		return
	}

	record, ok := h.monitor.ProxyHealthHistory(accountID)
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "Proxy not monitored")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, record)
}

// TriggerCheck handles POST /v1/proxies/health/check - run a probe cycle now
func (h *HealthHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.monitor.TriggerManualCheck(r.Context())

	records := h.monitor.AllProxyHealth()
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Health check completed",
		"proxies": records,
	})
}
