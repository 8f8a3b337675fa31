package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"genproxy/internal/models"
	"genproxy/internal/perf"
	"genproxy/internal/registry"
	"genproxy/internal/utils"
)

// SpendChecker answers whether a call of the given declared cost fits the
// configured thresholds. A soft constraint: implementations return allowed
// on accrual-store errors.
type SpendChecker interface {
	WithinThresholds(ctx context.Context, thresholds []*models.CostThreshold, criteria Criteria, cost float64) (bool, string)
}

// Router selects the proxy account that serves a request. Selection is a
// pure function of the registry snapshot and the performance metrics it is
// handed, which keeps it deterministic and testable without mocking time.
type Router struct {
	registry *registry.Registry
	tracker  *perf.Tracker
	spend    SpendChecker // optional
	logger   *utils.Logger
}

// NewRouter creates a router. spend may be nil when cost thresholds are not
// enforced.
func NewRouter(reg *registry.Registry, tracker *perf.Tracker, spend SpendChecker) *Router {
	return &Router{
		registry: reg,
		tracker:  tracker,
		spend:    spend,
		logger:   utils.NewLogger("router"),
	}
}

// SelectOptimalProxy returns the best account for the criteria or a typed
// routing error.
func (r *Router) SelectOptimalProxy(ctx context.Context, criteria Criteria) (*Decision, error) {
	snap := r.registry.Snapshot()
	metrics := r.tracker.SnapshotAll()

	decision, err := Decide(snap, metrics, criteria)
	if err != nil {
		return nil, err
	}

	// Threshold accrual check sits outside Decide so the core selection
	// stays pure.
	if r.spend != nil {
		if ok, name := r.spend.WithinThresholds(ctx, snap.Thresholds, criteria, decision.EstimatedCost); !ok {
			return nil, &CostExceededError{DeclaredCost: decision.EstimatedCost, Threshold: name}
		}
	}

	r.logger.Debug("Routing decision",
		"model", criteria.ModelName, "media", criteria.MediaType,
		"selected", decision.SelectedAccountName, "reason", decision.RoutingReason)
	return decision, nil
}

// Decide ranks candidates against one snapshot. Given the same snapshot,
// metrics and criteria it always returns the same selection.
func Decide(snap *registry.Snapshot, metrics map[uuid.UUID]perf.Metrics, criteria Criteria) (*Decision, error) {
	binding, ok := snap.Binding(criteria.ModelName, criteria.MediaType)
	if !ok {
		return nil, &NoAvailableProxyError{
			ModelName: criteria.ModelName,
			MediaType: criteria.MediaType,
			Reason:    "no model binding",
		}
	}

	// Request cost ceiling empties the set up front: every candidate of a
	// binding shares its declared per-call cost.
	if criteria.MaxCost != nil && binding.CostPerCall > *criteria.MaxCost {
		return nil, &CostExceededError{DeclaredCost: binding.CostPerCall, MaxCost: *criteria.MaxCost}
	}

	// Filter to routable candidates with the requested capability,
	// preserving binding order.
	var candidates []*models.ProxyAccount
	for _, id := range binding.Candidates() {
		account, ok := snap.Account(id)
		if !ok {
			continue
		}
		if !account.Routable() || !account.SupportsMedia(criteria.MediaType) {
			continue
		}
		candidates = append(candidates, account)
	}

	if len(candidates) == 0 {
		return nil, &NoAvailableProxyError{
			ModelName: criteria.ModelName,
			MediaType: criteria.MediaType,
			Reason:    "no enabled candidate supports the requested media type",
		}
	}

	// Rules run before ranking: first enabled match wins.
	var forced *models.ProxyAccount
	reason := ""
	for _, rule := range snap.Rules {
		if !rule.Matches(criteria.MediaType, criteria.ModelName, binding.CostPerCall, criteria.Region) {
			continue
		}
		switch rule.Action {
		case models.RuleActionBlock:
			return nil, &PolicyBlockedError{RuleName: rule.Name}
		case models.RuleActionRouteTo:
			if rule.TargetAccountID == nil {
				continue
			}
			for _, c := range candidates {
				if c.ID == *rule.TargetAccountID {
					forced = c
					reason = fmt.Sprintf("routing rule %q", rule.Name)
					break
				}
			}
		}
		if forced != nil {
			break
		}
	}

	// Candidates dropped from the preferred tier are named in the reason so
	// operators can see a higher-priority account was passed over for health.
	var passedOver []string
	for _, c := range candidates {
		switch c.HealthStatus {
		case models.HealthHealthy, models.HealthDegraded:
		default:
			passedOver = append(passedOver, fmt.Sprintf("%s (%s)", c.Name, c.HealthStatus))
		}
	}

	ranked, lastResort := rank(candidates, metrics)

	selected := ranked[0]
	if forced != nil {
		selected = forced
		// keep ranked order for alternatives, minus the forced account
		rest := ranked[:0:0]
		for _, c := range ranked {
			if c.ID != forced.ID {
				rest = append(rest, c)
			}
		}
		ranked = append([]*models.ProxyAccount{forced}, rest...)
	} else {
		switch {
		case lastResort:
			reason = fmt.Sprintf("last resort: no healthy or degraded candidate, using %s (%s)",
				selected.Name, selected.HealthStatus)
		case selected.HealthStatus == models.HealthDegraded:
			reason = fmt.Sprintf("best available candidate %s is degraded", selected.Name)
		default:
			reason = fmt.Sprintf("healthy candidate with best priority/performance: %s", selected.Name)
		}
		if !lastResort && len(passedOver) > 0 {
			reason += "; excluded for health: " + strings.Join(passedOver, ", ")
		}
	}

	m := metrics[selected.ID]
	decision := &Decision{
		SelectedAccount:       selected,
		SelectedAccountID:     selected.ID,
		SelectedAccountName:   selected.Name,
		SelectedModel:         criteria.ModelName,
		EstimatedCost:         binding.CostPerCall,
		EstimatedResponseTime: m.AvgResponseTime,
		RoutingReason:         reason,
		DecidedAt:             time.Now(),
	}

	// Next two ranked candidates become the retry alternatives.
	for _, c := range ranked[1:] {
		if len(decision.Alternatives) == 2 {
			break
		}
		decision.Alternatives = append(decision.Alternatives, Candidate{
			AccountID: c.ID,
			Name:      c.Name,
			Priority:  c.Priority,
			Health:    c.HealthStatus,
		})
	}

	return decision, nil
}

// rank orders candidates by health tier, then account priority, then
// success rate, then average response time. Unhealthy/unknown candidates
// are excluded unless nothing better exists; lastResort reports that case.
func rank(candidates []*models.ProxyAccount, metrics map[uuid.UUID]perf.Metrics) (ranked []*models.ProxyAccount, lastResort bool) {
	var preferred, excluded []*models.ProxyAccount
	for _, c := range candidates {
		switch c.HealthStatus {
		case models.HealthHealthy, models.HealthDegraded:
			preferred = append(preferred, c)
		default:
			excluded = append(excluded, c)
		}
	}

	pool := preferred
	if len(pool) == 0 {
		pool = excluded
		lastResort = true
	}

	sortPool := func(pool []*models.ProxyAccount) {
		sort.SliceStable(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			if ta, tb := healthTier(a.HealthStatus), healthTier(b.HealthStatus); ta != tb {
				return ta < tb
			}
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			ma, mb := metrics[a.ID], metrics[b.ID]
			if ma.SuccessRate != mb.SuccessRate {
				return ma.SuccessRate > mb.SuccessRate
			}
			if ma.AvgResponseTime != mb.AvgResponseTime {
				return ma.AvgResponseTime < mb.AvgResponseTime
			}
			return a.Name < b.Name
		})
	}
	sortPool(pool)

	if lastResort {
		return pool, true
	}

	// Excluded candidates still trail the ranking so the coordinator can
	// fall back to them when every preferred attempt fails.
	sortPool(excluded)
	return append(pool, excluded...), false
}

func healthTier(s models.HealthStatus) int {
	switch s {
	case models.HealthHealthy:
		return 0
	case models.HealthDegraded:
		return 1
	case models.HealthUnhealthy:
		return 2
	default: // unknown
		return 3
	}
}
