package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicFamily serves Anthropic-style proxy accounts (x-api-key header,
// versioned messages API).
type AnthropicFamily struct {
	client *http.Client
}

// NewAnthropicFamily creates the Anthropic capability implementation
func NewAnthropicFamily(client *http.Client) *AnthropicFamily {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &AnthropicFamily{client: client}
}

// Tag returns the provider tag
func (f *AnthropicFamily) Tag() string {
	return "anthropic"
}

// Probe lists models with the account credential.
func (f *AnthropicFamily) Probe(ctx context.Context, target Target) ProbeOutcome {
	start := time.Now()
	outcome := ProbeOutcome{CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL(target)+"/models", nil)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	f.setHeaders(req, target)

	resp, err := f.client.Do(req)
	outcome.ResponseTime = time.Since(start)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcome.StatusCode = resp.StatusCode
	outcome.Success = resp.StatusCode == http.StatusOK
	if !outcome.Success {
		outcome.Error = fmt.Sprintf("probe returned status %d", resp.StatusCode)
	}
	return outcome
}

// Execute sends one generation request to the messages API.
func (f *AnthropicFamily) Execute(ctx context.Context, target Target, model string, payload map[string]any) (*Result, error) {
	start := time.Now()

	if payload == nil {
		payload = map[string]any{}
	}
	if payload["model"] == nil {
		payload["model"] = model
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL(target)+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	f.setHeaders(req, target)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Latency:    time.Since(start),
	}

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return result, nil
}

func (f *AnthropicFamily) baseURL(target Target) string {
	if target.BaseURL != "" {
		return target.BaseURL
	}
	return anthropicDefaultBaseURL
}

func (f *AnthropicFamily) setHeaders(req *http.Request, target Target) {
	req.Header.Set("x-api-key", target.Credential)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}
