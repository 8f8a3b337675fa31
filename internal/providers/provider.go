package providers

import (
	"context"
	"time"
)

// Target identifies one upstream proxy account as a family sees it:
// endpoint plus decrypted credential. Families never touch storage.
type Target struct {
	AccountID  string
	BaseURL    string
	Credential string
	Region     string
}

// ProbeOutcome is the result of one capability probe against a target.
// A probe never returns an error; failures are folded into the outcome.
type ProbeOutcome struct {
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Result is a normalized generation response from a provider.
type Result struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Family is the capability interface implemented once per provider family
// (OpenAI-compatible, Anthropic-style, ...). The router and health monitor
// depend only on this interface, never on provider-specific branching.
type Family interface {
	// Tag returns the provider tag this family serves (matches
	// ProxyAccount.ProviderTag).
	Tag() string

	// Probe issues a lightweight reachability/capability check.
	Probe(ctx context.Context, target Target) ProbeOutcome

	// Execute sends one generation request for the given model.
	Execute(ctx context.Context, target Target, model string, payload map[string]any) (*Result, error)
}
