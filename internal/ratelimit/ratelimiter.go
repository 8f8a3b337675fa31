package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"genproxy/internal/models"
	"genproxy/internal/utils"
)

// AccountLimiter throttles traffic per proxy account using the vendor's
// advertised requests-per-minute hint. Distributed via Redis so every
// orchestrator node counts against the same window. Fail-open: a Redis
// error lets the request through rather than idling a healthy account.
type AccountLimiter struct {
	client *redis.Client
	logger *utils.Logger
}

// NewAccountLimiter creates a limiter backed by the shared Redis.
func NewAccountLimiter(client *redis.Client) *AccountLimiter {
	return &AccountLimiter{
		client: client,
		logger: utils.NewLogger("ratelimit"),
	}
}

// AllowAccount reports whether the account has sliding-window budget left
// for one more request. Accounts without a hint are never throttled.
func (rl *AccountLimiter) AllowAccount(ctx context.Context, account *models.ProxyAccount) bool {
	limit := account.RateLimitHints().RequestsPerMinute
	if limit <= 0 {
		return true
	}

	allowed, err := rl.allow(ctx, account.ID.String(), limit)
	if err != nil {
		rl.logger.Warn("Rate limit check failed, allowing request", "account", account.Name, "error", err)
		return true
	}
	return allowed
}

// allow runs the sliding-window check on a per-minute sorted set.
func (rl *AccountLimiter) allow(ctx context.Context, accountID string, limit int) (bool, error) {
	key := fmt.Sprintf("ratelimit:account:%s", accountID)
	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	pipe := rl.client.Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d:%d", now.UnixMilli(), now.Nanosecond()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	// countCmd saw the window before this request was added
	return int(countCmd.Val()) < limit, nil
}

// Usage returns the current request count in the account's window.
func (rl *AccountLimiter) Usage(ctx context.Context, accountID string) (int64, error) {
	key := fmt.Sprintf("ratelimit:account:%s", accountID)
	windowStart := time.Now().Add(-1 * time.Minute)

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}
	return count, nil
}

// Reset clears the account's window. Admin use.
func (rl *AccountLimiter) Reset(ctx context.Context, accountID string) error {
	key := fmt.Sprintf("ratelimit:account:%s", accountID)
	return rl.client.Del(ctx, key).Err()
}
