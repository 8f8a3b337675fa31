package spend

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"genproxy/internal/models"
	"genproxy/internal/routing"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// counter TTLs: calendar scopes keep two windows of history, per-task and
// per-user scopes expire after a week of inactivity.
const (
	dailyTTL   = 2 * 24 * 60 * 60
	weeklyTTL  = 2 * 7 * 24 * 60 * 60
	monthlyTTL = 62 * 24 * 60 * 60
	adhocTTL   = 7 * 24 * 60 * 60
)

// accrueScript adds cost to a scope counter and refreshes its TTL in one
// round trip.
var accrueScript = redis.NewScript(`
	local key = KEYS[1]
	local cost = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key)) or 0
	local new_total = current + cost

	redis.call('SET', key, new_total, 'EX', ttl)
	return tostring(new_total)
`)

// Service tracks declared call costs in Redis and answers threshold checks
// at routing time. Accrual is advisory, not transactional: a Redis outage
// degrades to allowing traffic rather than blocking it.
type Service struct {
	redis    *redis.Client
	repo     *storage.SpendRepository
	currency string
	logger   *utils.Logger

	syncInterval time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewService creates a spend service. Call Start to run the Postgres
// snapshot worker; repo may be nil when snapshots are not wanted (tests).
func NewService(redisClient *redis.Client, repo *storage.SpendRepository, currency string, syncInterval time.Duration) *Service {
	return &Service{
		redis:        redisClient,
		repo:         repo,
		currency:     currency,
		logger:       utils.NewLogger("spend"),
		syncInterval: syncInterval,
	}
}

// WithinThresholds reports whether adding cost to the accrued totals stays
// inside every enabled threshold. The first breached threshold's name is
// returned for the error message.
func (s *Service) WithinThresholds(ctx context.Context, thresholds []*models.CostThreshold, criteria routing.Criteria, cost float64) (bool, string) {
	now := time.Now()
	for _, threshold := range thresholds {
		if !threshold.Enabled {
			continue
		}
		key, ok := s.scopeKey(threshold.Scope, criteria, now)
		if !ok {
			// per-task/per-user thresholds only bind requests that carry the id
			continue
		}

		accrued, err := s.accrued(ctx, key)
		if err != nil {
			s.logger.Warn("Spend lookup failed, allowing request", "key", key, "error", err)
			continue
		}
		if accrued+cost > threshold.LimitAmount {
			return false, threshold.Name
		}
	}
	return true, ""
}

// AddUsage accrues a completed call's declared cost into every scope the
// request belongs to.
func (s *Service) AddUsage(ctx context.Context, criteria routing.Criteria, cost float64) error {
	if cost <= 0 {
		return nil
	}

	now := time.Now()
	for scope, ttl := range map[models.ThresholdScope]int{
		models.ScopeDaily:   dailyTTL,
		models.ScopeWeekly:  weeklyTTL,
		models.ScopeMonthly: monthlyTTL,
		models.ScopePerTask: adhocTTL,
		models.ScopePerUser: adhocTTL,
	} {
		key, ok := s.scopeKey(scope, criteria, now)
		if !ok {
			continue
		}
		if _, err := accrueScript.Run(ctx, s.redis, []string{key}, cost, ttl).Result(); err != nil {
			return fmt.Errorf("failed to accrue spend for %s: %w", key, err)
		}
	}
	return nil
}

// Accrued returns the current total for a scope, resolving the key against
// the given criteria. Used by the performance and admin handlers.
func (s *Service) Accrued(ctx context.Context, scope models.ThresholdScope, criteria routing.Criteria) (float64, error) {
	key, ok := s.scopeKey(scope, criteria, time.Now())
	if !ok {
		return 0, fmt.Errorf("scope %s needs a task or user id", scope)
	}
	return s.accrued(ctx, key)
}

func (s *Service) accrued(ctx context.Context, key string) (float64, error) {
	val, err := s.redis.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get accrued spend: %w", err)
	}
	return val, nil
}

// scopeKey builds the Redis key for a scope. Calendar scopes key on the
// current window, ad-hoc scopes on the request's task or user id.
func (s *Service) scopeKey(scope models.ThresholdScope, criteria routing.Criteria, now time.Time) (string, bool) {
	switch scope {
	case models.ScopeDaily:
		return fmt.Sprintf("spend:daily:%s", now.Format("2006-01-02")), true
	case models.ScopeWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("spend:weekly:%d-W%02d", year, week), true
	case models.ScopeMonthly:
		return fmt.Sprintf("spend:monthly:%s", now.Format("2006-01")), true
	case models.ScopePerTask:
		if criteria.TaskID == "" {
			return "", false
		}
		return fmt.Sprintf("spend:task:%s", criteria.TaskID), true
	case models.ScopePerUser:
		if criteria.UserID == "" {
			return "", false
		}
		return fmt.Sprintf("spend:user:%s", criteria.UserID), true
	default:
		return "", false
	}
}

// Start launches the Redis -> Postgres snapshot worker. Idempotent per
// service instance; no-op without a repository.
func (s *Service) Start() {
	if s.repo == nil || s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.syncWorker(s.stopCh, s.doneCh)
	s.logger.Info("Spend snapshot worker started", "interval", s.syncInterval)
}

// Stop halts the snapshot worker after a final sync.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.logger.Info("Spend snapshot worker stopped")
}

func (s *Service) syncWorker(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.syncToDatabase(ctx); err != nil {
				s.logger.Error("Final spend sync failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.syncToDatabase(ctx); err != nil {
				s.logger.Error("Spend sync failed", "error", err)
			}
			cancel()
		}
	}
}

// syncToDatabase copies every spend counter into Postgres so reporting
// survives a Redis restart.
func (s *Service) syncToDatabase(ctx context.Context) error {
	var cursor uint64
	for {
		keys, nextCursor, err := s.redis.Scan(ctx, cursor, "spend:*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan spend keys: %w", err)
		}

		for _, key := range keys {
			amount, err := s.accrued(ctx, key)
			if err != nil {
				s.logger.Warn("Failed to read spend key during sync", "key", key, "error", err)
				continue
			}
			snapshot := &storage.SpendSnapshot{
				ScopeKey: key[len("spend:"):],
				Amount:   amount,
				Currency: s.currency,
			}
			if err := s.repo.Upsert(ctx, snapshot); err != nil {
				s.logger.Warn("Failed to snapshot spend key", "key", key, "error", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}
