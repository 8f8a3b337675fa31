package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// HealthStatus enumerates the monitored states of a proxy account.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// MediaType enumerates the generation media a proxy account can serve.
type MediaType string

const (
	MediaText      MediaType = "text"
	MediaImage     MediaType = "image"
	MediaAudio     MediaType = "audio"
	MediaVideo     MediaType = "video"
	MediaEmbedding MediaType = "embedding"
)

// ValidMediaType reports whether s is a recognized media type.
func ValidMediaType(s string) bool {
	switch MediaType(s) {
	case MediaText, MediaImage, MediaAudio, MediaVideo, MediaEmbedding:
		return true
	}
	return false
}

// RateLimitHints carries the upstream vendor's advertised limits for an
// account. Advisory only; the vendor remains the source of truth.
type RateLimitHints struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	Concurrency       int `json:"concurrency,omitempty"`
}

// ValidateRateLimits checks a rate_limits document before it is stored.
// Only the advisory keys RateLimitHints reads are accepted, and their
// values must be non-negative integers.
func ValidateRateLimits(doc map[string]any) error {
	for key, value := range doc {
		switch key {
		case "requests_per_minute", "concurrency":
		default:
			return fmt.Errorf("unrecognized rate limit key %q", key)
		}
		v, ok := value.(float64)
		if !ok || v != math.Trunc(v) || v < 0 {
			return fmt.Errorf("rate limit %q must be a non-negative integer", key)
		}
	}
	return nil
}

// ProxyAccount is a configured credential/endpoint for one upstream
// generative-AI provider.
//
// Enabled and Priority are the only routing-relevant fields edited by
// humans; HealthStatus and FailoverExcluded are written exclusively by the
// health monitor and the failover manager.
type ProxyAccount struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	Name                string         `db:"name" json:"name"`
	DisplayName         string         `db:"display_name" json:"display_name"`
	ProviderTag         string         `db:"provider_tag" json:"provider_tag"`
	BaseURL             string         `db:"base_url" json:"base_url"`
	EncryptedCredential string         `db:"encrypted_credential" json:"-"`
	Enabled             bool           `db:"enabled" json:"enabled"`
	Priority            int            `db:"priority" json:"priority"` // lower = preferred
	Region              string         `db:"region" json:"region,omitempty"`
	Capabilities        pq.StringArray `db:"capabilities" json:"capabilities"`
	RateLimits          JSONB          `db:"rate_limits" json:"rate_limits,omitempty"`
	HealthStatus        HealthStatus   `db:"health_status" json:"health_status"`
	FailoverExcluded    bool           `db:"failover_excluded" json:"failover_excluded"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// SupportsMedia reports whether the account's capability set includes the
// given media type.
func (a *ProxyAccount) SupportsMedia(media MediaType) bool {
	for _, c := range a.Capabilities {
		if MediaType(c) == media {
			return true
		}
	}
	return false
}

// Routable reports whether the account may be considered by the router at
// all: it must be enabled and not currently failed over.
func (a *ProxyAccount) Routable() bool {
	return a.Enabled && !a.FailoverExcluded
}

// RateLimitHints decodes the advisory limits from the rate_limits document.
// Missing or malformed fields read as zero, meaning unthrottled.
func (a *ProxyAccount) RateLimitHints() RateLimitHints {
	var hints RateLimitHints
	if v, ok := a.RateLimits["requests_per_minute"].(float64); ok {
		hints.RequestsPerMinute = int(v)
	}
	if v, ok := a.RateLimits["concurrency"].(float64); ok {
		hints.Concurrency = int(v)
	}
	return hints
}
