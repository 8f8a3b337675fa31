package perf

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metrics is one account's telemetry as the router consumes it.
type Metrics struct {
	TotalRequests   int64         `json:"total_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"` // percent, 100 when no traffic yet
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastUpdated     time.Time     `json:"last_updated"`
}

type outcome struct {
	success bool
	ms      float64
}

// accountMetrics holds one account's counters behind its own lock so
// unrelated accounts never contend.
type accountMetrics struct {
	mu     sync.Mutex
	total  int64
	failed int64
	ewmaMs float64

	// bounded recent window, active only when the tracker is windowed
	window []outcome
	next   int
	filled bool

	lastUpdated time.Time
}

// Tracker accumulates response-time and success-rate telemetry per proxy
// account, fed by both probes and real traffic.
type Tracker struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*accountMetrics

	// windowSize bounds the recent-outcome window; 0 keeps cumulative
	// counters with no decay.
	windowSize int
	// alpha weights the response-time EWMA in cumulative mode.
	alpha float64
}

// Config holds tracker tuning constants
type Config struct {
	WindowSize int
	EWMAAlpha  float64
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	alpha := cfg.EWMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &Tracker{
		accounts:   make(map[uuid.UUID]*accountMetrics),
		windowSize: cfg.WindowSize,
		alpha:      alpha,
	}
}

// RecordOutcome records one completed request or probe for an account.
// Safe under concurrent invocation from many in-flight requests.
func (t *Tracker) RecordOutcome(accountID uuid.UUID, responseTime time.Duration, success bool) {
	am := t.metricsFor(accountID)

	am.mu.Lock()
	defer am.mu.Unlock()

	ms := float64(responseTime.Milliseconds())

	am.total++
	if !success {
		am.failed++
	}

	if am.total == 1 {
		am.ewmaMs = ms
	} else {
		am.ewmaMs = t.alpha*ms + (1-t.alpha)*am.ewmaMs
	}

	if t.windowSize > 0 {
		if am.window == nil {
			am.window = make([]outcome, t.windowSize)
		}
		am.window[am.next] = outcome{success: success, ms: ms}
		am.next = (am.next + 1) % t.windowSize
		if am.next == 0 {
			am.filled = true
		}
	}

	am.lastUpdated = time.Now()
}

// Snapshot returns an account's current metrics. An account with no traffic
// reports a 100% success rate.
func (t *Tracker) Snapshot(accountID uuid.UUID) Metrics {
	t.mu.RLock()
	am, ok := t.accounts[accountID]
	t.mu.RUnlock()

	if !ok {
		return Metrics{SuccessRate: 100}
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	return t.computeLocked(am)
}

// SnapshotAll returns metrics for every account seen so far.
func (t *Tracker) SnapshotAll() map[uuid.UUID]Metrics {
	t.mu.RLock()
	ids := make([]uuid.UUID, 0, len(t.accounts))
	for id := range t.accounts {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make(map[uuid.UUID]Metrics, len(ids))
	for _, id := range ids {
		out[id] = t.Snapshot(id)
	}
	return out
}

func (t *Tracker) computeLocked(am *accountMetrics) Metrics {
	m := Metrics{
		TotalRequests:  am.total,
		FailedRequests: am.failed,
		LastUpdated:    am.lastUpdated,
	}

	if t.windowSize > 0 && (am.filled || am.next > 0) {
		n := t.windowSize
		if !am.filled {
			n = am.next
		}
		var failed int64
		var sumMs float64
		for i := 0; i < n; i++ {
			if !am.window[i].success {
				failed++
			}
			sumMs += am.window[i].ms
		}
		m.SuccessRate = float64(int64(n)-failed) / float64(n) * 100
		m.AvgResponseTime = time.Duration(sumMs/float64(n)) * time.Millisecond
		return m
	}

	if am.total == 0 {
		m.SuccessRate = 100
	} else {
		m.SuccessRate = float64(am.total-am.failed) / float64(am.total) * 100
	}
	m.AvgResponseTime = time.Duration(am.ewmaMs) * time.Millisecond
	return m
}

func (t *Tracker) metricsFor(accountID uuid.UUID) *accountMetrics {
	t.mu.RLock()
	am, ok := t.accounts[accountID]
	t.mu.RUnlock()
	if ok {
		return am
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if am, ok = t.accounts[accountID]; ok {
		return am
	}
	am = &accountMetrics{}
	t.accounts[accountID] = am
	return am
}
