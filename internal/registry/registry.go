package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"genproxy/internal/models"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// Snapshot is one atomically-published view of the registry. Readers hold a
// snapshot for the duration of a routing decision so the decision stays
// consistent even while a reload is in flight.
type Snapshot struct {
	Accounts   map[uuid.UUID]*models.ProxyAccount
	Bindings   map[string]*models.ModelBinding // keyed model|media
	Rules      []*models.RoutingRule           // ascending priority
	Thresholds []*models.CostThreshold
	LoadedAt   time.Time
}

// Account looks up an account by id.
func (s *Snapshot) Account(id uuid.UUID) (*models.ProxyAccount, bool) {
	a, ok := s.Accounts[id]
	return a, ok
}

// Binding looks up the binding for a (model, media) pair.
func (s *Snapshot) Binding(modelName string, media models.MediaType) (*models.ModelBinding, bool) {
	b, ok := s.Bindings[bindingKey(modelName, media)]
	return b, ok
}

func bindingKey(modelName string, media models.MediaType) string {
	return modelName + "|" + string(media)
}

// Registry holds the configured proxy accounts, bindings, rules and
// thresholds as an in-memory snapshot backed by Postgres. One instance is
// constructed at startup and passed by reference everywhere; there are no
// package-level globals.
type Registry struct {
	accounts   *storage.AccountRepository
	bindings   *storage.BindingRepository
	rules      *storage.RuleRepository
	thresholds *storage.ThresholdRepository

	reloadInterval time.Duration
	logger         *utils.Logger

	snapshot atomic.Pointer[Snapshot]

	mu      sync.Mutex // serializes reloads and write-throughs
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds registry construction parameters
type Config struct {
	DB             *storage.DB
	ReloadInterval time.Duration
}

// New creates a registry and performs the initial load.
func New(ctx context.Context, cfg Config) (*Registry, error) {
	r := &Registry{
		accounts:       storage.NewAccountRepository(cfg.DB),
		bindings:       storage.NewBindingRepository(cfg.DB),
		rules:          storage.NewRuleRepository(cfg.DB),
		thresholds:     storage.NewThresholdRepository(cfg.DB),
		reloadInterval: cfg.ReloadInterval,
		logger:         utils.NewLogger("registry"),
	}

	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial registry load failed: %w", err)
	}

	return r, nil
}

// Snapshot returns the last committed view. Never nil after New succeeds.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Reload loads all registry entities from storage and swaps the snapshot.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	bindings, err := r.bindings.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bindings: %w", err)
	}

	rules, err := r.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	thresholds, err := r.thresholds.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load thresholds: %w", err)
	}

	snap := &Snapshot{
		Accounts:   make(map[uuid.UUID]*models.ProxyAccount, len(accounts)),
		Bindings:   make(map[string]*models.ModelBinding, len(bindings)),
		Rules:      rules,
		Thresholds: thresholds,
		LoadedAt:   time.Now(),
	}

	for _, a := range accounts {
		snap.Accounts[a.ID] = a
	}
	for _, b := range bindings {
		if b.Enabled {
			snap.Bindings[bindingKey(b.ModelName, b.MediaType)] = b
		}
	}
	sort.SliceStable(snap.Rules, func(i, j int) bool {
		return snap.Rules[i].Priority < snap.Rules[j].Priority
	})

	r.snapshot.Store(snap)
	r.logger.Debug("Registry reloaded",
		"accounts", len(accounts), "bindings", len(bindings), "rules", len(rules))
	return nil
}

// Start begins periodic snapshot reloads. Idempotent.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.reloadLoop(r.stopCh, r.doneCh)
}

// Stop halts periodic reloads. Idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (r *Registry) reloadLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("Registry reload failed", "error", err)
			}
			cancel()
		}
	}
}

// SetHealthStatus persists a monitored health state and patches the live
// snapshot so the router sees it without waiting for a reload.
func (r *Registry) SetHealthStatus(ctx context.Context, id uuid.UUID, status models.HealthStatus) error {
	if err := r.accounts.SetHealthStatus(ctx, id, status); err != nil {
		return err
	}
	r.patchAccount(id, func(a *models.ProxyAccount) {
		a.HealthStatus = status
	})
	return nil
}

// SetFailoverExcluded toggles routing eligibility for an account, again
// write-through to both storage and the live snapshot.
func (r *Registry) SetFailoverExcluded(ctx context.Context, id uuid.UUID, excluded bool) error {
	if err := r.accounts.SetFailoverExcluded(ctx, id, excluded); err != nil {
		return err
	}
	r.patchAccount(id, func(a *models.ProxyAccount) {
		a.FailoverExcluded = excluded
	})
	return nil
}

// patchAccount applies fn to a copy of one account and republishes the
// snapshot. Readers keep seeing either the old or the new view, never a
// half-written one.
func (r *Registry) patchAccount(id uuid.UUID, fn func(*models.ProxyAccount)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snapshot.Load()
	account, ok := old.Accounts[id]
	if !ok {
		return
	}

	updated := *account
	fn(&updated)

	accounts := make(map[uuid.UUID]*models.ProxyAccount, len(old.Accounts))
	for k, v := range old.Accounts {
		accounts[k] = v
	}
	accounts[id] = &updated

	snap := *old
	snap.Accounts = accounts
	r.snapshot.Store(&snap)
}

// AccountByID fetches an account from the snapshot, falling back to storage
// for accounts created since the last reload.
func (r *Registry) AccountByID(ctx context.Context, id uuid.UUID) (*models.ProxyAccount, error) {
	if a, ok := r.Snapshot().Account(id); ok {
		return a, nil
	}
	return r.accounts.GetByID(ctx, id)
}

// EnabledAccounts lists the enabled accounts in the current snapshot,
// ordered by priority for stable iteration.
func (r *Registry) EnabledAccounts() []*models.ProxyAccount {
	snap := r.Snapshot()
	out := make([]*models.ProxyAccount, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}
