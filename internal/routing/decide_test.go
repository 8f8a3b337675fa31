package routing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genproxy/internal/models"
	"genproxy/internal/perf"
	"genproxy/internal/registry"
)

func testAccount(name string, priority int, health models.HealthStatus) *models.ProxyAccount {
	return &models.ProxyAccount{
		ID:           uuid.New(),
		Name:         name,
		Enabled:      true,
		Priority:     priority,
		HealthStatus: health,
		Capabilities: pq.StringArray{"text", "image"},
	}
}

func testSnapshot(binding *models.ModelBinding, accounts ...*models.ProxyAccount) *registry.Snapshot {
	snap := &registry.Snapshot{
		Accounts: make(map[uuid.UUID]*models.ProxyAccount, len(accounts)),
		Bindings: make(map[string]*models.ModelBinding),
		LoadedAt: time.Now(),
	}
	for _, a := range accounts {
		snap.Accounts[a.ID] = a
	}
	if binding != nil {
		snap.Bindings[binding.ModelName+"|"+string(binding.MediaType)] = binding
	}
	return snap
}

func testBinding(model string, cost float64, accounts ...*models.ProxyAccount) *models.ModelBinding {
	ids := make(pq.StringArray, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID.String())
	}
	return &models.ModelBinding{
		ID:          uuid.New(),
		ModelName:   model,
		MediaType:   models.MediaText,
		AccountIDs:  ids,
		CostPerCall: cost,
		Enabled:     true,
	}
}

func textCriteria(model string) Criteria {
	return Criteria{ModelName: model, MediaType: models.MediaText}
}

func TestDecideNoBinding(t *testing.T) {
	snap := testSnapshot(nil)

	_, err := Decide(snap, nil, textCriteria("gpt-4o"))

	var noProxy *NoAvailableProxyError
	require.ErrorAs(t, err, &noProxy)
	assert.Equal(t, "gpt-4o", noProxy.ModelName)
}

func TestDecideRequestCostCeiling(t *testing.T) {
	a := testAccount("alpha", 1, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.05, a), a)

	maxCost := 0.01
	criteria := textCriteria("gpt-4o")
	criteria.MaxCost = &maxCost

	_, err := Decide(snap, nil, criteria)

	var costErr *CostExceededError
	require.ErrorAs(t, err, &costErr)
	assert.Equal(t, 0.05, costErr.DeclaredCost)
	assert.Equal(t, 0.01, costErr.MaxCost)
}

func TestDecideFiltersUnroutableCandidates(t *testing.T) {
	disabled := testAccount("disabled", 1, models.HealthHealthy)
	disabled.Enabled = false
	failedOver := testAccount("failed-over", 1, models.HealthHealthy)
	failedOver.FailoverExcluded = true
	textOnly := testAccount("text-only", 1, models.HealthHealthy)
	textOnly.Capabilities = pq.StringArray{"text"}

	snap := testSnapshot(testBinding("sdxl", 0.02, disabled, failedOver, textOnly), disabled, failedOver, textOnly)
	binding := snap.Bindings["sdxl|text"]
	delete(snap.Bindings, "sdxl|text")
	binding.MediaType = models.MediaImage
	snap.Bindings["sdxl|image"] = binding

	_, err := Decide(snap, nil, Criteria{ModelName: "sdxl", MediaType: models.MediaImage})

	var noProxy *NoAvailableProxyError
	require.ErrorAs(t, err, &noProxy)
}

func TestDecidePrefersLowerPriority(t *testing.T) {
	primary := testAccount("primary", 1, models.HealthHealthy)
	backup := testAccount("backup", 2, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, backup, primary), primary, backup)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, primary.ID, decision.SelectedAccountID)
	require.Len(t, decision.Alternatives, 1)
	assert.Equal(t, backup.ID, decision.Alternatives[0].AccountID)
}

func TestDecideHealthTierBeatsPriority(t *testing.T) {
	degraded := testAccount("degraded-primary", 1, models.HealthDegraded)
	healthy := testAccount("healthy-backup", 5, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, degraded, healthy), degraded, healthy)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, healthy.ID, decision.SelectedAccountID)
}

func TestDecideSuccessRateBreaksPriorityTie(t *testing.T) {
	flaky := testAccount("flaky", 1, models.HealthHealthy)
	solid := testAccount("solid", 1, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, flaky, solid), flaky, solid)

	metrics := map[uuid.UUID]perf.Metrics{
		flaky.ID: {TotalRequests: 100, FailedRequests: 40, SuccessRate: 60},
		solid.ID: {TotalRequests: 100, FailedRequests: 1, SuccessRate: 99},
	}

	decision, err := Decide(snap, metrics, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, solid.ID, decision.SelectedAccountID)
}

func TestDecideResponseTimeBreaksRateTie(t *testing.T) {
	slow := testAccount("slow", 1, models.HealthHealthy)
	fast := testAccount("fast", 1, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, slow, fast), slow, fast)

	metrics := map[uuid.UUID]perf.Metrics{
		slow.ID: {SuccessRate: 100, AvgResponseTime: 900 * time.Millisecond},
		fast.ID: {SuccessRate: 100, AvgResponseTime: 120 * time.Millisecond},
	}

	decision, err := Decide(snap, metrics, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, fast.ID, decision.SelectedAccountID)
	assert.Equal(t, 120*time.Millisecond, decision.EstimatedResponseTime)
}

func TestDecideLastResort(t *testing.T) {
	sick := testAccount("sick", 1, models.HealthUnhealthy)
	unknown := testAccount("unknown", 2, models.HealthUnknown)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, sick, unknown), sick, unknown)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, sick.ID, decision.SelectedAccountID)
	assert.Contains(t, decision.RoutingReason, "last resort")
}

func TestDecideUnhealthyTrailAsAlternatives(t *testing.T) {
	healthy := testAccount("healthy", 1, models.HealthHealthy)
	sick := testAccount("sick", 2, models.HealthUnhealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, healthy, sick), healthy, sick)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, healthy.ID, decision.SelectedAccountID)
	require.Len(t, decision.Alternatives, 1)
	assert.Equal(t, sick.ID, decision.Alternatives[0].AccountID)
}

func TestDecideReasonNamesHealthExclusion(t *testing.T) {
	sick := testAccount("sick-primary", 1, models.HealthUnhealthy)
	healthy := testAccount("healthy-backup", 5, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, sick, healthy), sick, healthy)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, healthy.ID, decision.SelectedAccountID)
	assert.Contains(t, decision.RoutingReason, "excluded for health")
	assert.Contains(t, decision.RoutingReason, "sick-primary (unhealthy)")
}

func TestDecideAlternativesBounded(t *testing.T) {
	accounts := []*models.ProxyAccount{
		testAccount("a", 1, models.HealthHealthy),
		testAccount("b", 2, models.HealthHealthy),
		testAccount("c", 3, models.HealthHealthy),
		testAccount("d", 4, models.HealthHealthy),
	}
	snap := testSnapshot(testBinding("gpt-4o", 0.01, accounts...), accounts...)

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	require.Len(t, decision.Alternatives, 2)
	assert.Equal(t, "b", decision.Alternatives[0].Name)
	assert.Equal(t, "c", decision.Alternatives[1].Name)
}

func TestDecideRuleBlocks(t *testing.T) {
	a := testAccount("alpha", 1, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, a), a)
	snap.Rules = []*models.RoutingRule{{
		ID:           uuid.New(),
		Name:         "block-gpt4",
		ModelPattern: "gpt-4*",
		Action:       models.RuleActionBlock,
		Enabled:      true,
	}}

	_, err := Decide(snap, nil, textCriteria("gpt-4o"))

	var blocked *PolicyBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "block-gpt4", blocked.RuleName)
}

func TestDecideRuleForcesTarget(t *testing.T) {
	preferred := testAccount("preferred", 1, models.HealthHealthy)
	pinned := testAccount("pinned", 9, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, preferred, pinned), preferred, pinned)
	snap.Rules = []*models.RoutingRule{{
		ID:              uuid.New(),
		Name:            "pin-gpt4",
		ModelPattern:    "gpt-4o",
		Action:          models.RuleActionRouteTo,
		TargetAccountID: &pinned.ID,
		Enabled:         true,
	}}

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)

	assert.Equal(t, pinned.ID, decision.SelectedAccountID)
	assert.Contains(t, decision.RoutingReason, "pin-gpt4")
	require.Len(t, decision.Alternatives, 1)
	assert.Equal(t, preferred.ID, decision.Alternatives[0].AccountID)
}

func TestDecideRuleTargetOutsideBindingIgnored(t *testing.T) {
	a := testAccount("alpha", 1, models.HealthHealthy)
	elsewhere := uuid.New()
	snap := testSnapshot(testBinding("gpt-4o", 0.01, a), a)
	snap.Rules = []*models.RoutingRule{{
		ID:              uuid.New(),
		Name:            "pin-elsewhere",
		Action:          models.RuleActionRouteTo,
		TargetAccountID: &elsewhere,
		Enabled:         true,
	}}

	decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, decision.SelectedAccountID)
}

func TestDecideDeterministic(t *testing.T) {
	a := testAccount("aardvark", 1, models.HealthHealthy)
	b := testAccount("zebra", 1, models.HealthHealthy)
	snap := testSnapshot(testBinding("gpt-4o", 0.01, b, a), a, b)

	for i := 0; i < 10; i++ {
		decision, err := Decide(snap, nil, textCriteria("gpt-4o"))
		require.NoError(t, err)
		assert.Equal(t, "aardvark", decision.SelectedAccountName)
	}
}
