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

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIFamily serves every OpenAI-compatible proxy account: the official
// API and the many gateways that mirror its surface.
type OpenAIFamily struct {
	client *http.Client
}

// NewOpenAIFamily creates the OpenAI-compatible capability implementation
func NewOpenAIFamily(client *http.Client) *OpenAIFamily {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &OpenAIFamily{client: client}
}

// Tag returns the provider tag
func (f *OpenAIFamily) Tag() string {
	return "openai"
}

// Probe lists models, the cheapest authenticated call the API offers.
func (f *OpenAIFamily) Probe(ctx context.Context, target Target) ProbeOutcome {
	start := time.Now()
	outcome := ProbeOutcome{CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL(target)+"/models", nil)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	req.Header.Set("Authorization", "Bearer "+target.Credential)

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

// Execute sends one generation request. The payload is passed through
// unchanged apart from the model field.
func (f *OpenAIFamily) Execute(ctx context.Context, target Target, model string, payload map[string]any) (*Result, error) {
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

	endpoint := f.baseURL(target) + endpointForPayload(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+target.Credential)

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

func (f *OpenAIFamily) baseURL(target Target) string {
	if target.BaseURL != "" {
		return target.BaseURL
	}
	return openAIDefaultBaseURL
}

// endpointForPayload picks the API path from the payload shape: image
// payloads carry a prompt+size, everything else goes to chat completions.
func endpointForPayload(payload map[string]any) string {
	if _, ok := payload["size"]; ok {
		return "/images/generations"
	}
	if _, ok := payload["input"]; ok {
		return "/embeddings"
	}
	return "/chat/completions"
}
