package health

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"genproxy/internal/config"
	"genproxy/internal/models"
	"genproxy/internal/perf"
	"genproxy/internal/providers"
	"genproxy/internal/utils"
)

// Prober issues one capability probe against an account. Implemented by
// providers.Factory in production and by fakes in tests.
type Prober interface {
	ProbeAccount(ctx context.Context, account *models.ProxyAccount) providers.ProbeOutcome
}

// Notifier receives unhealthy transitions. Implemented by failover.Manager.
type Notifier interface {
	NotifyUnhealthy(ctx context.Context, accountID uuid.UUID, status models.HealthStatus)
}

// Directory lists the accounts to probe and receives status transitions.
// Implemented by registry.Registry.
type Directory interface {
	EnabledAccounts() []*models.ProxyAccount
	SetHealthStatus(ctx context.Context, id uuid.UUID, status models.HealthStatus) error
}

// Record is one account's monitored health state.
type Record struct {
	AccountID           uuid.UUID                `json:"account_id"`
	Status              models.HealthStatus      `json:"status"`
	LastCheck           time.Time                `json:"last_check"`
	ConsecutiveFailures int                      `json:"consecutive_failures"`
	ConsecutiveSuccess  int                      `json:"consecutive_success"`
	History             []providers.ProbeOutcome `json:"history"` // newest last, bounded
}

// Monitor keeps a slightly-lagging view of each enabled account's
// reachability. Probes for distinct accounts run concurrently, each with
// its own deadline, so one unreachable account never delays the cycle.
type Monitor struct {
	registry Directory
	prober   Prober
	tracker  *perf.Tracker
	cfg      config.HealthConfig
	logger   *utils.Logger
	notifier Notifier

	mu      sync.RWMutex // guards records
	records map[uuid.UUID]*Record

	runMu   sync.Mutex // guards the schedule lifecycle
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a health monitor.
func NewMonitor(reg Directory, prober Prober, tracker *perf.Tracker, cfg config.HealthConfig) *Monitor {
	return &Monitor{
		registry: reg,
		prober:   prober,
		tracker:  tracker,
		cfg:      cfg,
		logger:   utils.NewLogger("health-monitor"),
		records:  make(map[uuid.UUID]*Record),
	}
}

// SetNotifier registers the unhealthy-transition hook. Must be called
// before Start.
func (m *Monitor) SetNotifier(n Notifier) {
	m.notifier = n
}

// Start begins the periodic probe schedule. Idempotent.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh)
	m.logger.Info("Health monitoring started", "interval", m.cfg.ProbeInterval)
}

// Stop halts the schedule. Idempotent.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.runMu.Unlock()

	close(stopCh)
	<-doneCh
	m.logger.Info("Health monitoring stopped")
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.RunProbeCycle(context.Background())
		}
	}
}

// RunProbeCycle probes every enabled account once. Probes run concurrently
// and are individually timed out; the cycle returns when all have reported.
func (m *Monitor) RunProbeCycle(ctx context.Context) {
	accounts := m.registry.EnabledAccounts()
	if len(accounts) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(account *models.ProxyAccount) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			defer cancel()

			outcome := m.prober.ProbeAccount(probeCtx, account)
			m.commit(ctx, account, outcome)
		}(account)
	}
	wg.Wait()
}

// TriggerManualCheck runs one probe cycle immediately. The background
// ticker keeps its own schedule; this cycle runs outside it.
func (m *Monitor) TriggerManualCheck(ctx context.Context) {
	m.logger.Info("Manual health check triggered")
	m.RunProbeCycle(ctx)
}

// commit folds one probe outcome into the account's record and publishes
// any status transition to the registry.
func (m *Monitor) commit(ctx context.Context, account *models.ProxyAccount, outcome providers.ProbeOutcome) {
	m.tracker.RecordOutcome(account.ID, outcome.ResponseTime, outcome.Success)

	m.mu.Lock()
	record, ok := m.records[account.ID]
	if !ok {
		record = &Record{
			AccountID: account.ID,
			Status:    models.HealthUnknown,
		}
		m.records[account.ID] = record
	}

	record.LastCheck = outcome.CheckedAt
	record.History = append(record.History, outcome)
	if len(record.History) > m.cfg.HistorySize {
		record.History = record.History[len(record.History)-m.cfg.HistorySize:]
	}

	previous := record.Status
	if outcome.Success {
		record.ConsecutiveSuccess++
		record.ConsecutiveFailures = 0
		if record.ConsecutiveSuccess >= m.cfg.HealthyThreshold {
			record.Status = models.HealthHealthy
		}
	} else {
		record.ConsecutiveFailures++
		record.ConsecutiveSuccess = 0
		switch {
		case record.ConsecutiveFailures >= m.cfg.UnhealthyThreshold:
			record.Status = models.HealthUnhealthy
		case previous == models.HealthHealthy:
			// early warning without full demotion
			record.Status = models.HealthDegraded
		}
	}
	status := record.Status
	m.mu.Unlock()

	if status != previous {
		m.logger.Warn("Account health transition",
			"account", account.Name, "from", previous, "to", status)
		if err := m.registry.SetHealthStatus(ctx, account.ID, status); err != nil {
			m.logger.Error("Failed to publish health status",
				"account", account.Name, "error", err)
		}
		if status == models.HealthUnhealthy && m.notifier != nil {
			m.notifier.NotifyUnhealthy(ctx, account.ID, status)
		}
	}
}

// AllProxyHealth returns a copy of every account's current record. Never
// blocks on an in-flight probe cycle.
func (m *Monitor) AllProxyHealth() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, copyRecord(record))
	}
	return out
}

// ProxyHealthHistory returns one account's record including its bounded
// probe history, and false when the account has never been probed.
func (m *Monitor) ProxyHealthHistory(accountID uuid.UUID) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[accountID]
	if !ok {
		return Record{}, false
	}
	return copyRecord(record), true
}

// Status returns the current status for an account, HealthUnknown when it
// has never been probed.
func (m *Monitor) Status(accountID uuid.UUID) models.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if record, ok := m.records[accountID]; ok {
		return record.Status
	}
	return models.HealthUnknown
}

func copyRecord(record *Record) Record {
	out := *record
	out.History = make([]providers.ProbeOutcome, len(record.History))
	copy(out.History, record.History)
	return out
}
