package metrics

import "net/http"

// Metrics serves the orchestrator's /metrics endpoint. Implementations can
// back it with a Prometheus registry; the orchestrator only needs the
// handler.
type Metrics interface {
	HTTPHandler() http.Handler
}

// NoopMetrics reserves the /metrics route without exporting anything. Used
// until a real exporter is configured.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
