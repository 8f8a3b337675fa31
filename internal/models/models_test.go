package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestAccountRoutable(t *testing.T) {
	account := &ProxyAccount{Enabled: true}
	assert.True(t, account.Routable())

	account.FailoverExcluded = true
	assert.False(t, account.Routable())

	account.FailoverExcluded = false
	account.Enabled = false
	assert.False(t, account.Routable())
}

func TestAccountSupportsMedia(t *testing.T) {
	account := &ProxyAccount{Capabilities: pq.StringArray{"text", "image"}}

	assert.True(t, account.SupportsMedia(MediaText))
	assert.True(t, account.SupportsMedia(MediaImage))
	assert.False(t, account.SupportsMedia(MediaAudio))
}

func TestAccountRateLimitHints(t *testing.T) {
	// JSONB numbers decode as float64
	account := &ProxyAccount{RateLimits: JSONB{
		"requests_per_minute": float64(120),
		"concurrency":         float64(8),
	}}
	hints := account.RateLimitHints()
	assert.Equal(t, 120, hints.RequestsPerMinute)
	assert.Equal(t, 8, hints.Concurrency)

	empty := &ProxyAccount{}
	assert.Zero(t, empty.RateLimitHints().RequestsPerMinute)

	malformed := &ProxyAccount{RateLimits: JSONB{"requests_per_minute": "lots"}}
	assert.Zero(t, malformed.RateLimitHints().RequestsPerMinute)
}

func TestValidateRateLimits(t *testing.T) {
	assert.NoError(t, ValidateRateLimits(nil))
	assert.NoError(t, ValidateRateLimits(map[string]any{
		"requests_per_minute": float64(120),
		"concurrency":         float64(8),
	}))

	tests := []struct {
		name string
		doc  map[string]any
	}{
		{"unrecognized key", map[string]any{"burst": float64(10)}},
		{"non-numeric value", map[string]any{"concurrency": "lots"}},
		{"fractional value", map[string]any{"requests_per_minute": 1.5}},
		{"negative value", map[string]any{"concurrency": float64(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateRateLimits(tt.doc))
		})
	}
}

func TestBindingCandidates(t *testing.T) {
	primary := uuid.New()
	backup := uuid.New()
	binding := &ModelBinding{AccountIDs: pq.StringArray{primary.String(), "garbage", backup.String()}}

	assert.Equal(t, primary, binding.PrimaryAccountID())
	assert.Equal(t, []uuid.UUID{primary, backup}, binding.Candidates())

	empty := &ModelBinding{}
	assert.Equal(t, uuid.Nil, empty.PrimaryAccountID())
	assert.Empty(t, empty.Candidates())
}

func TestRuleMatches(t *testing.T) {
	media := MediaText
	maxCost := 0.05

	t.Run("unset conditions always hold", func(t *testing.T) {
		rule := &RoutingRule{}
		assert.True(t, rule.Matches(MediaImage, "any-model", 99, "eu-west"))
	})

	t.Run("media type", func(t *testing.T) {
		rule := &RoutingRule{MediaType: &media}
		assert.True(t, rule.Matches(MediaText, "m", 0, ""))
		assert.False(t, rule.Matches(MediaImage, "m", 0, ""))
	})

	t.Run("model glob", func(t *testing.T) {
		rule := &RoutingRule{ModelPattern: "gpt-4*"}
		assert.True(t, rule.Matches(MediaText, "gpt-4o", 0, ""))
		assert.False(t, rule.Matches(MediaText, "claude-sonnet", 0, ""))
	})

	t.Run("max cost", func(t *testing.T) {
		rule := &RoutingRule{MaxCost: &maxCost}
		assert.True(t, rule.Matches(MediaText, "m", 0.05, ""))
		assert.False(t, rule.Matches(MediaText, "m", 0.06, ""))
	})

	t.Run("region", func(t *testing.T) {
		rule := &RoutingRule{Region: "eu-west"}
		assert.True(t, rule.Matches(MediaText, "m", 0, "eu-west"))
		assert.False(t, rule.Matches(MediaText, "m", 0, "us-east"))
	})
}

func TestValidEnums(t *testing.T) {
	assert.True(t, ValidMediaType("text"))
	assert.True(t, ValidMediaType("embedding"))
	assert.False(t, ValidMediaType("hologram"))

	assert.True(t, ValidThresholdScope("daily"))
	assert.True(t, ValidThresholdScope("per_user"))
	assert.False(t, ValidThresholdScope("hourly"))
}

func TestFailoverEventOpen(t *testing.T) {
	event := &FailoverEvent{ID: uuid.New()}
	assert.True(t, event.Open())

	now := time.Now()
	event.ResolvedAt = &now
	assert.False(t, event.Open())
}
