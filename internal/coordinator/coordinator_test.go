package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genproxy/internal/config"
	"genproxy/internal/models"
	"genproxy/internal/perf"
	"genproxy/internal/providers"
	"genproxy/internal/routing"
	"genproxy/internal/storage"
)

type fakeRouter struct {
	decision *routing.Decision
	err      error
}

func (f *fakeRouter) SelectOptimalProxy(ctx context.Context, criteria routing.Criteria) (*routing.Decision, error) {
	return f.decision, f.err
}

// fakeExecutor maps account name to a scripted response.
type fakeExecutor struct {
	results map[string]*providers.Result
	errs    map[string]error
	calls   []string
}

func (f *fakeExecutor) ExecuteAccount(ctx context.Context, account *models.ProxyAccount, model string, payload map[string]any) (*providers.Result, error) {
	f.calls = append(f.calls, account.Name)
	if err, ok := f.errs[account.Name]; ok {
		return nil, err
	}
	return f.results[account.Name], nil
}

type fakeAccounts struct {
	accounts map[uuid.UUID]*models.ProxyAccount
}

func (f *fakeAccounts) AccountByID(ctx context.Context, id uuid.UUID) (*models.ProxyAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return account, nil
}

type fakeFailover struct {
	failures  []uuid.UUID
	successes []uuid.UUID
}

func (f *fakeFailover) RecordFailure(ctx context.Context, accountID uuid.UUID, reason string) {
	f.failures = append(f.failures, accountID)
}

func (f *fakeFailover) RecordSuccess(accountID uuid.UUID) {
	f.successes = append(f.successes, accountID)
}

type fakeSpend struct {
	total float64
	calls int
}

func (f *fakeSpend) AddUsage(ctx context.Context, criteria routing.Criteria, cost float64) error {
	f.total += cost
	f.calls++
	return nil
}

func testAccount(name string) *models.ProxyAccount {
	return &models.ProxyAccount{
		ID:      uuid.New(),
		Name:    name,
		Enabled: true,
	}
}

type fixture struct {
	primary   *models.ProxyAccount
	secondary *models.ProxyAccount
	executor  *fakeExecutor
	failover  *fakeFailover
	spend     *fakeSpend
	coord     *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	primary := testAccount("primary")
	secondary := testAccount("secondary")

	decision := &routing.Decision{
		SelectedAccount:     primary,
		SelectedAccountID:   primary.ID,
		SelectedAccountName: primary.Name,
		SelectedModel:       "claude-sonnet",
		EstimatedCost:       0.25,
		Alternatives: []routing.Candidate{
			{AccountID: secondary.ID, Name: secondary.Name},
		},
		DecidedAt: time.Now(),
	}

	executor := &fakeExecutor{results: map[string]*providers.Result{}, errs: map[string]error{}}
	failover := &fakeFailover{}
	spend := &fakeSpend{}

	coord := New(
		&fakeRouter{decision: decision},
		executor,
		&fakeAccounts{accounts: map[uuid.UUID]*models.ProxyAccount{
			primary.ID:   primary,
			secondary.ID: secondary,
		}},
		perf.NewTracker(perf.Config{EWMAAlpha: 0.3}),
		failover,
		spend,
		nil,
		nil,
		config.ExecutorConfig{
			RequestTimeout: time.Second,
			MaxRetries:     1,
			EnableFailover: true,
		},
	)

	return &fixture{
		primary:   primary,
		secondary: secondary,
		executor:  executor,
		failover:  failover,
		spend:     spend,
		coord:     coord,
	}
}

func TestExecuteWithFailover_FirstAttemptSucceeds(t *testing.T) {
	f := newFixture(t)
	f.executor.results["primary"] = &providers.Result{StatusCode: 200, Latency: 100 * time.Millisecond}

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{ModelName: "claude-sonnet"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Attempts)
	assert.False(t, outcome.FailedOver)
	assert.Equal(t, f.primary.ID, outcome.AccountID)
	assert.Equal(t, []string{"primary"}, f.executor.calls)
	assert.Equal(t, []uuid.UUID{f.primary.ID}, f.failover.successes)
	assert.InDelta(t, 0.25, f.spend.total, 0.0001)
}

func TestExecuteWithFailover_RetriesAlternativeOn503(t *testing.T) {
	f := newFixture(t)
	f.executor.results["primary"] = &providers.Result{StatusCode: 503}
	f.executor.results["secondary"] = &providers.Result{StatusCode: 200, Latency: 80 * time.Millisecond}

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{ModelName: "claude-sonnet"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Attempts)
	assert.True(t, outcome.FailedOver)
	assert.Equal(t, f.secondary.ID, outcome.AccountID)
	assert.Equal(t, []string{"primary", "secondary"}, f.executor.calls)

	// the failed primary counts toward failover, the secondary resets
	assert.Equal(t, []uuid.UUID{f.primary.ID}, f.failover.failures)
	assert.Equal(t, []uuid.UUID{f.secondary.ID}, f.failover.successes)
}

func TestExecuteWithFailover_RetriesOnTransportTimeout(t *testing.T) {
	f := newFixture(t)
	f.executor.errs["primary"] = &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	f.executor.results["secondary"] = &providers.Result{StatusCode: 200}

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.NoError(t, err)
	assert.Equal(t, f.secondary.ID, outcome.AccountID)
}

func TestExecuteWithFailover_ClientErrorIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.executor.results["primary"] = &providers.Result{StatusCode: 422}

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.NoError(t, err)

	// the upstream's own 422 is relayed, no retry happens
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 422, outcome.Result.StatusCode)
	assert.Equal(t, []string{"primary"}, f.executor.calls)

	// a caller mistake never counts toward failover
	assert.Empty(t, f.failover.failures)
	assert.Zero(t, f.spend.calls)
}

func TestExecuteWithFailover_AllAttemptsFail(t *testing.T) {
	f := newFixture(t)
	f.executor.results["primary"] = &providers.Result{StatusCode: 500}
	f.executor.results["secondary"] = &providers.Result{StatusCode: 502}

	_, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllAttemptsFailed)
	assert.Equal(t, []string{"primary", "secondary"}, f.executor.calls)
	assert.Len(t, f.failover.failures, 2)
}

func TestExecuteWithFailover_RoutingErrorIsTerminal(t *testing.T) {
	routingErr := &routing.NoAvailableProxyError{ModelName: "claude-sonnet"}
	coord := New(
		&fakeRouter{err: routingErr},
		&fakeExecutor{},
		&fakeAccounts{},
		perf.NewTracker(perf.Config{EWMAAlpha: 0.3}),
		&fakeFailover{},
		&fakeSpend{},
		nil,
		nil,
		config.ExecutorConfig{RequestTimeout: time.Second, MaxRetries: 1, EnableFailover: true},
	)

	_, err := coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	var npe *routing.NoAvailableProxyError
	assert.ErrorAs(t, err, &npe)
}

func TestExecuteWithFailover_FailoverDisabled(t *testing.T) {
	f := newFixture(t)
	f.coord.cfg.EnableFailover = false
	f.executor.results["primary"] = &providers.Result{StatusCode: 503}

	_, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"primary"}, f.executor.calls)
}

func TestExecuteWithFailover_SkipsUnroutableAlternative(t *testing.T) {
	f := newFixture(t)
	f.secondary.FailoverExcluded = true
	f.executor.results["primary"] = &providers.Result{StatusCode: 503}

	_, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"primary"}, f.executor.calls)
}

type denyLimiter struct{}

func (denyLimiter) AllowAccount(ctx context.Context, account *models.ProxyAccount) bool {
	return account.Name != "primary"
}

func TestExecuteWithFailover_ThrottledPrimarySkipped(t *testing.T) {
	f := newFixture(t)
	f.coord.limiter = denyLimiter{}
	f.executor.results["secondary"] = &providers.Result{StatusCode: 200}

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.NoError(t, err)
	assert.Equal(t, f.secondary.ID, outcome.AccountID)
	assert.Equal(t, []string{"secondary"}, f.executor.calls)
}

// A family that answers non-2xx returns both the result and an error; the
// status code must still drive the retry decision end to end.
func TestExecuteWithFailover_UpstreamErrorThroughProviderFamily(t *testing.T) {
	key := make([]byte, 32)
	cipher, err := storage.NewCredentialCipher(key)
	require.NoError(t, err)
	sealed, err := cipher.Seal("sk-test")
	require.NoError(t, err)

	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer primarySrv.Close()
	secondarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer secondarySrv.Close()

	newAccount := func(name, baseURL string) *models.ProxyAccount {
		return &models.ProxyAccount{
			ID:                  uuid.New(),
			Name:                name,
			ProviderTag:         "openai",
			BaseURL:             baseURL,
			EncryptedCredential: sealed,
			Enabled:             true,
		}
	}
	primary := newAccount("primary", primarySrv.URL)
	secondary := newAccount("secondary", secondarySrv.URL)

	factory := providers.NewFactory(cipher)
	factory.Register(providers.NewOpenAIFamily(&http.Client{Timeout: time.Second}))

	decision := &routing.Decision{
		SelectedAccount:     primary,
		SelectedAccountID:   primary.ID,
		SelectedAccountName: primary.Name,
		SelectedModel:       "gpt-4o",
		EstimatedCost:       0.25,
		Alternatives:        []routing.Candidate{{AccountID: secondary.ID, Name: secondary.Name}},
		DecidedAt:           time.Now(),
	}
	failover := &fakeFailover{}
	coord := New(
		&fakeRouter{decision: decision},
		factory,
		&fakeAccounts{accounts: map[uuid.UUID]*models.ProxyAccount{
			primary.ID:   primary,
			secondary.ID: secondary,
		}},
		perf.NewTracker(perf.Config{EWMAAlpha: 0.3}),
		failover,
		&fakeSpend{},
		nil,
		nil,
		config.ExecutorConfig{RequestTimeout: time.Second, MaxRetries: 1, EnableFailover: true},
	)

	outcome, err := coord.ExecuteWithFailover(context.Background(),
		routing.Criteria{ModelName: "gpt-4o"}, map[string]any{"messages": []any{}})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Attempts)
	assert.True(t, outcome.FailedOver)
	assert.Equal(t, secondary.ID, outcome.AccountID)
	assert.Equal(t, http.StatusOK, outcome.Result.StatusCode)
	assert.Equal(t, []uuid.UUID{primary.ID}, failover.failures)
	assert.Equal(t, []uuid.UUID{secondary.ID}, failover.successes)
}

func TestExecuteWithFailover_NilResultFromExecutor(t *testing.T) {
	f := newFixture(t)
	// nothing scripted for "primary", so the executor answers (nil, nil)

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, []string{"primary"}, f.executor.calls)
	assert.Empty(t, f.failover.failures)
	assert.Empty(t, f.failover.successes)
}

// Mimics the family contract for a terminal status: result and error both
// returned.
type terminalExecutor struct {
	result *providers.Result
	calls  int
}

func (e *terminalExecutor) ExecuteAccount(ctx context.Context, account *models.ProxyAccount, model string, payload map[string]any) (*providers.Result, error) {
	e.calls++
	return e.result, fmt.Errorf("provider returned status %d", e.result.StatusCode)
}

func TestExecuteWithFailover_ClientErrorWithErrorStillRelays(t *testing.T) {
	f := newFixture(t)
	exec := &terminalExecutor{result: &providers.Result{StatusCode: 422, Body: []byte(`{"error":"bad prompt"}`)}}
	f.coord.executor = exec

	outcome, err := f.coord.ExecuteWithFailover(context.Background(), routing.Criteria{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 422, outcome.Result.StatusCode)
	assert.JSONEq(t, `{"error":"bad prompt"}`, string(outcome.Result.Body))
	assert.Empty(t, f.failover.failures)
}
