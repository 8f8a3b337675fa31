package httpapi

import (
	"net/http"

	"genproxy/internal/perf"
	"genproxy/internal/registry"
	"genproxy/internal/utils"
)

// SnapshotSource provides the current account pool. Implemented by
// registry.Registry.
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// PerfHandler exposes per-account performance metrics.
type PerfHandler struct {
	tracker  *perf.Tracker
	registry SnapshotSource
}

// NewPerfHandler creates a new performance handler
func NewPerfHandler(tracker *perf.Tracker, reg SnapshotSource) *PerfHandler {
	return &PerfHandler{tracker: tracker, registry: reg}
}

// AccountMetrics pairs an account with its tracked metrics.
type AccountMetrics struct {
	AccountID   string       `json:"account_id"`
	AccountName string       `json:"account_name"`
	Metrics     perf.Metrics `json:"metrics"`
}

// List handles GET /v1/proxies/performance
func (h *PerfHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap := h.registry.Snapshot()
	all := h.tracker.SnapshotAll()

	items := make([]AccountMetrics, 0, len(snap.Accounts))
	for id, account := range snap.Accounts {
		metrics, ok := all[id]
		if !ok {
			metrics = h.tracker.Snapshot(id)
		}
		items = append(items, AccountMetrics{
			AccountID:   id.String(),
			AccountName: account.Name,
			Metrics:     metrics,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"proxies": items,
		"count":   len(items),
	})
}
