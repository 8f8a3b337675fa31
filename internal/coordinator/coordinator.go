package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genproxy/internal/config"
	"genproxy/internal/logging"
	"genproxy/internal/models"
	"genproxy/internal/perf"
	"genproxy/internal/providers"
	"genproxy/internal/routing"
	"genproxy/internal/utils"
)

// ErrAllAttemptsFailed is returned when the selected account and every tried
// alternative failed with retryable errors.
var ErrAllAttemptsFailed = errors.New("coordinator: all candidate accounts failed")

// DecisionSource produces a routing decision for a request. Implemented by
// routing.Router.
type DecisionSource interface {
	SelectOptimalProxy(ctx context.Context, criteria routing.Criteria) (*routing.Decision, error)
}

// Executor performs one upstream call against an account. Implemented by
// providers.Factory.
type Executor interface {
	ExecuteAccount(ctx context.Context, account *models.ProxyAccount, model string, payload map[string]any) (*providers.Result, error)
}

// AccountSource resolves accounts when the coordinator retries against a
// decision's alternatives. Implemented by registry.Registry.
type AccountSource interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*models.ProxyAccount, error)
}

// FailoverReporter receives real-traffic outcomes. Implemented by
// failover.Manager.
type FailoverReporter interface {
	RecordFailure(ctx context.Context, accountID uuid.UUID, reason string)
	RecordSuccess(accountID uuid.UUID)
}

// UsageRecorder accrues cost for a completed request. Implemented by
// spend.Service.
type UsageRecorder interface {
	AddUsage(ctx context.Context, criteria routing.Criteria, cost float64) error
}

// AccountLimiter throttles per-account traffic. Implemented by
// ratelimit.AccountLimiter.
type AccountLimiter interface {
	AllowAccount(ctx context.Context, account *models.ProxyAccount) bool
}

// Outcome reports how a request was ultimately served.
type Outcome struct {
	RequestID   string            `json:"request_id"`
	Decision    *routing.Decision `json:"decision"`
	Result      *providers.Result `json:"-"`
	AccountID   uuid.UUID         `json:"account_id"`
	AccountName string            `json:"account_name"`
	Attempts    int               `json:"attempts"`
	FailedOver  bool              `json:"failed_over"`
}

// Coordinator drives a request through routing, execution, and failover:
// one decision, one attempt against the selected account, and on retryable
// failure up to MaxRetries attempts against the decision's alternatives.
type Coordinator struct {
	router   DecisionSource
	executor Executor
	accounts AccountSource
	tracker  *perf.Tracker
	failover FailoverReporter
	spend    UsageRecorder
	limiter  AccountLimiter
	audit    logging.Sink
	cfg      config.ExecutorConfig
	logger   *utils.Logger
}

// New assembles a coordinator. A nil audit sink is replaced with a noop;
// a nil limiter disables per-account throttling.
func New(router DecisionSource, executor Executor, accounts AccountSource, tracker *perf.Tracker, failover FailoverReporter, spend UsageRecorder, limiter AccountLimiter, audit logging.Sink, cfg config.ExecutorConfig) *Coordinator {
	if audit == nil {
		audit = logging.NewNoopSink()
	}
	return &Coordinator{
		router:   router,
		executor: executor,
		accounts: accounts,
		tracker:  tracker,
		failover: failover,
		spend:    spend,
		limiter:  limiter,
		audit:    audit,
		cfg:      cfg,
		logger:   utils.NewLogger("coordinator"),
	}
}

// ExecuteWithFailover routes the request, executes it, and retries failed
// attempts against the original decision's alternatives. Routing errors
// (no candidates, policy block, budget) are terminal and returned as-is.
func (c *Coordinator) ExecuteWithFailover(ctx context.Context, criteria routing.Criteria, payload map[string]any) (*Outcome, error) {
	requestID := uuid.NewString()

	decision, err := c.router.SelectOptimalProxy(ctx, criteria)
	if err != nil {
		return nil, err
	}

	c.audit.Record(logging.AuditRecord{
		Kind:        "decision",
		RequestID:   requestID,
		ModelName:   criteria.ModelName,
		MediaType:   string(criteria.MediaType),
		AccountID:   decision.SelectedAccountID,
		AccountName: decision.SelectedAccountName,
		Success:     true,
		CostUSD:     decision.EstimatedCost,
		Reason:      decision.RoutingReason,
		TaskID:      criteria.TaskID,
		UserID:      criteria.UserID,
	})

	outcome := &Outcome{
		RequestID: requestID,
		Decision:  decision,
	}

	var lastErr error
	for attempt, account := range c.attemptPlan(ctx, decision) {
		if c.limiter != nil && !c.limiter.AllowAccount(ctx, account) {
			c.logger.Warn("Account at rate limit, skipping", "request", requestID, "account", account.Name)
			c.audit.Record(logging.AuditRecord{
				Kind:        "attempt",
				RequestID:   requestID,
				AccountID:   account.ID,
				AccountName: account.Name,
				Attempt:     attempt + 1,
				Error:       "rate limit reached",
			})
			lastErr = fmt.Errorf("account %s at rate limit", account.Name)
			continue
		}

		outcome.Attempts = attempt + 1
		outcome.AccountID = account.ID
		outcome.AccountName = account.Name
		outcome.FailedOver = attempt > 0

		result, execErr := c.attempt(ctx, account, decision.SelectedModel, payload)
		retryable, reason := classify(result, execErr)

		c.recordAttempt(ctx, requestID, criteria, account, attempt, result, execErr, retryable)

		if execErr == nil && result != nil && result.StatusCode < 400 {
			outcome.Result = result
			if err := c.spend.AddUsage(ctx, criteria, decision.EstimatedCost); err != nil {
				c.logger.Warn("Failed to accrue spend", "request", requestID, "error", err)
			}
			return outcome, nil
		}

		if !retryable {
			// the request itself is bad; another account would answer the
			// same. Relay the upstream response verbatim when there is one.
			outcome.Result = result
			if result == nil {
				if execErr != nil {
					return outcome, execErr
				}
				return outcome, fmt.Errorf("executor returned no result for account %s", account.Name)
			}
			return outcome, nil
		}

		lastErr = execErr
		if lastErr == nil {
			lastErr = fmt.Errorf("upstream returned status %d", result.StatusCode)
		}
		c.logger.Warn("Attempt failed, considering failover",
			"request", requestID, "account", account.Name, "attempt", attempt+1, "reason", reason)
	}

	return outcome, fmt.Errorf("%w: %v", ErrAllAttemptsFailed, lastErr)
}

// attemptPlan returns the selected account followed by the decision's
// alternatives, bounded by MaxRetries. Alternatives that have dropped out of
// rotation since the decision was made are skipped.
func (c *Coordinator) attemptPlan(ctx context.Context, decision *routing.Decision) []*models.ProxyAccount {
	plan := []*models.ProxyAccount{decision.SelectedAccount}
	if !c.cfg.EnableFailover {
		return plan
	}

	for _, alt := range decision.Alternatives {
		if len(plan) > c.cfg.MaxRetries {
			break
		}
		account, err := c.accounts.AccountByID(ctx, alt.AccountID)
		if err != nil || !account.Routable() {
			continue
		}
		plan = append(plan, account)
	}
	return plan
}

func (c *Coordinator) attempt(ctx context.Context, account *models.ProxyAccount, model string, payload map[string]any) (*providers.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	return c.executor.ExecuteAccount(attemptCtx, account, model, payload)
}

// recordAttempt feeds perf and failover tracking and audits the attempt.
// Only retryable failures count toward failover; a 4xx caused by the caller
// still lowers the account's success rate but never demotes it.
func (c *Coordinator) recordAttempt(ctx context.Context, requestID string, criteria routing.Criteria, account *models.ProxyAccount, attempt int, result *providers.Result, execErr error, retryable bool) {
	var statusCode int
	var latency time.Duration
	if result != nil {
		statusCode = result.StatusCode
		latency = result.Latency
	}

	success := execErr == nil && result != nil && statusCode < 400
	c.tracker.RecordOutcome(account.ID, latency, success)

	rec := logging.AuditRecord{
		Kind:        "attempt",
		RequestID:   requestID,
		ModelName:   criteria.ModelName,
		MediaType:   string(criteria.MediaType),
		AccountID:   account.ID,
		AccountName: account.Name,
		Attempt:     attempt + 1,
		Success:     success,
		StatusCode:  statusCode,
		LatencyMs:   latency.Milliseconds(),
		TaskID:      criteria.TaskID,
		UserID:      criteria.UserID,
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	c.audit.Record(rec)

	switch {
	case success:
		c.failover.RecordSuccess(account.ID)
	case retryable:
		reason := fmt.Sprintf("status %d", statusCode)
		if execErr != nil {
			reason = execErr.Error()
		}
		c.failover.RecordFailure(ctx, account.ID, reason)
	}
}

// classify decides whether a failed attempt is worth retrying elsewhere.
// Provider families return a populated Result alongside an error for non-2xx
// upstream responses, so a status code on the result outranks the error.
func classify(result *providers.Result, execErr error) (retryable bool, reason string) {
	if result != nil && result.StatusCode >= 400 {
		if utils.IsRetryableStatus(result.StatusCode) {
			return true, fmt.Sprintf("status %d", result.StatusCode)
		}
		return false, fmt.Sprintf("status %d", result.StatusCode)
	}
	if execErr != nil {
		if utils.IsRetryableError(execErr) {
			return true, execErr.Error()
		}
		return false, execErr.Error()
	}
	if result == nil {
		return false, "no result"
	}
	return false, ""
}
