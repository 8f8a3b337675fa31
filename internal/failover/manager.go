package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"genproxy/internal/config"
	"genproxy/internal/models"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// ErrAccountNotFound is returned by manual operations targeting an unknown
// account.
var ErrAccountNotFound = errors.New("failover: account not found")

// HealthSource reports the monitored status of an account. Implemented by
// health.Monitor.
type HealthSource interface {
	Status(accountID uuid.UUID) models.HealthStatus
}

// EventStore persists failover events. Implemented by
// storage.EventRepository.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.FailoverEvent, error)
	ListOpen(ctx context.Context) ([]*models.FailoverEvent, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.FailoverEvent, error)
	CountOpen(ctx context.Context) (int, error)
	CountTotal(ctx context.Context) (int, error)
	Create(ctx context.Context, event *models.FailoverEvent) error
	Resolve(ctx context.Context, id uuid.UUID) error
}

// AccountDirectory is the registry surface the manager needs: account
// lookups and eligibility flips.
type AccountDirectory interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*models.ProxyAccount, error)
	SetFailoverExcluded(ctx context.Context, id uuid.UUID, excluded bool) error
}

// Stats aggregates the failover event log.
type Stats struct {
	ActiveFailovers int                             `json:"active_failovers"`
	TotalEvents     int                             `json:"total_events"`
	AccountStates   map[string]models.FailoverState `json:"account_states"`
}

// accountState tracks one account's position in the failover state machine.
// Transitions for an account are serialized on its own lock so two
// concurrent failure reports cannot open duplicate events.
type accountState struct {
	mu                  sync.Mutex
	state               models.FailoverState
	consecutiveFailures int
	healthySince        time.Time
	openEventID         uuid.UUID
}

// Manager demotes degraded accounts out of routing eligibility and restores
// them after recovery, automatically or on operator command.
type Manager struct {
	registry AccountDirectory
	events   EventStore
	health   HealthSource
	cfg      config.FailoverConfig
	logger   *utils.Logger

	mu     sync.Mutex // guards the states map itself
	states map[uuid.UUID]*accountState

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a failover manager and restores open-event state from
// the event log, so a restart does not forget in-progress failovers.
func NewManager(ctx context.Context, reg AccountDirectory, events EventStore, health HealthSource, cfg config.FailoverConfig) (*Manager, error) {
	m := &Manager{
		registry: reg,
		events:   events,
		health:   health,
		cfg:      cfg,
		logger:   utils.NewLogger("failover-manager"),
		states:   make(map[uuid.UUID]*accountState),
	}

	open, err := events.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore open failover events: %w", err)
	}
	for _, event := range open {
		state := m.stateFor(event.AccountID)
		state.state = models.FailoverFailedOver
		state.openEventID = event.ID
	}

	return m, nil
}

// RecordFailure reports one retryable real-traffic failure for an account.
// Crossing the configured threshold opens an automatic failover.
func (m *Manager) RecordFailure(ctx context.Context, accountID uuid.UUID, reason string) {
	state := m.stateFor(accountID)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFailures++
	if state.state == models.FailoverActive && state.consecutiveFailures > 0 {
		state.state = models.FailoverSuspected
	}

	if state.consecutiveFailures < m.cfg.FailureThreshold {
		return
	}

	m.failOverLocked(ctx, accountID, state,
		fmt.Sprintf("%d consecutive failures: %s", state.consecutiveFailures, reason),
		models.TriggerAutomatic)
}

// RecordSuccess resets an account's consecutive failure counter.
func (m *Manager) RecordSuccess(accountID uuid.UUID) {
	state := m.stateFor(accountID)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.consecutiveFailures = 0
	if state.state == models.FailoverSuspected {
		state.state = models.FailoverActive
	}
}

// NotifyUnhealthy reports a health-monitor demotion for an account. The
// account becomes suspected; an unhealthy report opens a failover.
func (m *Manager) NotifyUnhealthy(ctx context.Context, accountID uuid.UUID, status models.HealthStatus) {
	state := m.stateFor(accountID)

	state.mu.Lock()
	defer state.mu.Unlock()

	switch status {
	case models.HealthDegraded:
		if state.state == models.FailoverActive {
			state.state = models.FailoverSuspected
		}
	case models.HealthUnhealthy:
		m.failOverLocked(ctx, accountID, state, "health monitor reported unhealthy", models.TriggerAutomatic)
	}
}

// TriggerManualFailover forces an account out of routing eligibility
// regardless of monitor state. Idempotent: an account with an open event
// keeps it rather than gaining a second one.
func (m *Manager) TriggerManualFailover(ctx context.Context, accountID uuid.UUID, reason string) (*models.FailoverEvent, error) {
	if _, err := m.registry.AccountByID(ctx, accountID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	state := m.stateFor(accountID)
	state.mu.Lock()
	defer state.mu.Unlock()

	m.failOverLocked(ctx, accountID, state, reason, models.TriggerManual)

	if state.openEventID == uuid.Nil {
		return nil, fmt.Errorf("failed to open failover event for account %s", accountID)
	}
	return m.events.GetByID(ctx, state.openEventID)
}

// ManualRecovery restores an account immediately, short-circuiting the
// sustained-healthy requirement, and resolves its open event.
func (m *Manager) ManualRecovery(ctx context.Context, accountID uuid.UUID) error {
	if _, err := m.registry.AccountByID(ctx, accountID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	state := m.stateFor(accountID)
	state.mu.Lock()
	defer state.mu.Unlock()

	return m.recoverLocked(ctx, accountID, state)
}

// failOverLocked performs suspected → failing_over → failed_over under the
// account lock. The dedup check comes first: an already failed-over account
// is left untouched.
func (m *Manager) failOverLocked(ctx context.Context, accountID uuid.UUID, state *accountState, reason string, trigger models.FailoverTrigger) {
	if state.state == models.FailoverFailedOver || state.state == models.FailoverRecovering {
		return
	}

	state.state = models.FailoverFailingOver

	event := &models.FailoverEvent{
		AccountID:   accountID,
		Reason:      reason,
		TriggeredBy: trigger,
	}
	if err := m.events.Create(ctx, event); err != nil {
		m.logger.Error("Failed to record failover event", "account", accountID, "error", err)
		state.state = models.FailoverSuspected
		return
	}

	if err := m.registry.SetFailoverExcluded(ctx, accountID, true); err != nil {
		m.logger.Error("Failed to exclude account from routing", "account", accountID, "error", err)
	}

	state.state = models.FailoverFailedOver
	state.openEventID = event.ID
	state.healthySince = time.Time{}

	m.logger.Warn("Account failed over",
		"account", accountID, "trigger", trigger, "reason", reason)
}

// recoverLocked resolves the open event and restores eligibility.
func (m *Manager) recoverLocked(ctx context.Context, accountID uuid.UUID, state *accountState) error {
	if state.openEventID != uuid.Nil {
		if err := m.events.Resolve(ctx, state.openEventID); err != nil && !errors.Is(err, storage.ErrEventNotFound) {
			return fmt.Errorf("failed to resolve failover event: %w", err)
		}
	}

	if err := m.registry.SetFailoverExcluded(ctx, accountID, false); err != nil {
		return fmt.Errorf("failed to restore routing eligibility: %w", err)
	}

	state.state = models.FailoverActive
	state.consecutiveFailures = 0
	state.openEventID = uuid.Nil
	state.healthySince = time.Time{}

	m.logger.Info("Account recovered", "account", accountID)
	return nil
}

// Start begins the automatic recovery loop. Idempotent.
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh)
	m.logger.Info("Failover monitoring started", "interval", m.cfg.CheckInterval)
}

// Stop halts the recovery loop. Idempotent.
func (m *Manager) Stop() {
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
	m.logger.Info("Failover monitoring stopped")
}

func (m *Manager) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			m.checkRecovery(ctx)
			cancel()
		}
	}
}

// checkRecovery walks failed-over accounts and recovers any that have been
// healthy for the full recovery window. Probing never stopped for them:
// failover removes eligibility, not monitoring.
func (m *Manager) checkRecovery(ctx context.Context) {
	for accountID, state := range m.statesCopy() {
		state.mu.Lock()

		switch state.state {
		case models.FailoverFailedOver, models.FailoverRecovering:
		default:
			state.mu.Unlock()
			continue
		}

		if m.health.Status(accountID) != models.HealthHealthy {
			// reset the sustained window on any non-healthy observation
			state.state = models.FailoverFailedOver
			state.healthySince = time.Time{}
			state.mu.Unlock()
			continue
		}

		if state.healthySince.IsZero() {
			state.state = models.FailoverRecovering
			state.healthySince = time.Now()
			state.mu.Unlock()
			continue
		}

		if time.Since(state.healthySince) >= m.cfg.RecoveryWindow {
			if err := m.recoverLocked(ctx, accountID, state); err != nil {
				m.logger.Error("Automatic recovery failed", "account", accountID, "error", err)
			}
		}
		state.mu.Unlock()
	}
}

// GetFailoverStats aggregates the event log and in-memory states.
func (m *Manager) GetFailoverStats(ctx context.Context) (*Stats, error) {
	active, err := m.events.CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	total, err := m.events.CountTotal(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ActiveFailovers: active,
		TotalEvents:     total,
		AccountStates:   make(map[string]models.FailoverState),
	}
	for accountID, state := range m.statesCopy() {
		state.mu.Lock()
		stats.AccountStates[accountID.String()] = state.state
		state.mu.Unlock()
	}
	return stats, nil
}

// GetProxyFailoverHistory returns an account's event history, newest first.
func (m *Manager) GetProxyFailoverHistory(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.FailoverEvent, error) {
	if _, err := m.registry.AccountByID(ctx, accountID); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return m.events.ListByAccount(ctx, accountID, limit)
}

// State reports an account's current failover state.
func (m *Manager) State(accountID uuid.UUID) models.FailoverState {
	m.mu.Lock()
	state, ok := m.states[accountID]
	m.mu.Unlock()
	if !ok {
		return models.FailoverActive
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.state
}

func (m *Manager) stateFor(accountID uuid.UUID) *accountState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[accountID]
	if !ok {
		state = &accountState{state: models.FailoverActive}
		m.states[accountID] = state
	}
	return state
}

func (m *Manager) statesCopy() map[uuid.UUID]*accountState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uuid.UUID]*accountState, len(m.states))
	for id, state := range m.states {
		out[id] = state
	}
	return out
}
