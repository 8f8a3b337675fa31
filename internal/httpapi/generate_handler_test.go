package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genproxy/internal/coordinator"
	"genproxy/internal/providers"
	"genproxy/internal/routing"
)

type stubCoordinator struct {
	outcome  *coordinator.Outcome
	err      error
	criteria routing.Criteria
}

func (s *stubCoordinator) ExecuteWithFailover(_ context.Context, criteria routing.Criteria, _ map[string]any) (*coordinator.Outcome, error) {
	s.criteria = criteria
	return s.outcome, s.err
}

type stubDecisionSource struct {
	decision *routing.Decision
	err      error
}

func (s *stubDecisionSource) SelectOptimalProxy(context.Context, routing.Criteria) (*routing.Decision, error) {
	return s.decision, s.err
}

func generateBody(t *testing.T, model string) *strings.Reader {
	t.Helper()
	body, err := json.Marshal(GenerateRequest{Model: model, Payload: map[string]any{"prompt": "hi"}})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func successOutcome() *coordinator.Outcome {
	return &coordinator.Outcome{
		RequestID:   "req-1",
		Decision:    &routing.Decision{SelectedModel: "gpt-4o"},
		Result:      &providers.Result{StatusCode: 200, Body: []byte(`{"text":"hello"}`)},
		AccountID:   uuid.New(),
		AccountName: "alpha",
		Attempts:    1,
	}
}

func TestGenerateSuccess(t *testing.T) {
	coord := &stubCoordinator{outcome: successOutcome()}
	handler := NewGenerateHandler(coord, &stubDecisionSource{})

	rec := httptest.NewRecorder()
	handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", generateBody(t, "gpt-4o")))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "alpha", resp.AccountName)
	assert.Equal(t, 1, resp.Attempts)
	assert.JSONEq(t, `{"text":"hello"}`, string(resp.Response))

	// media type defaults to text
	assert.Equal(t, "text", string(coord.criteria.MediaType))
}

func TestGenerateValidation(t *testing.T) {
	handler := NewGenerateHandler(&stubCoordinator{}, &stubDecisionSource{})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Generate(rec, httptest.NewRequest(http.MethodGet, "/v1/generate", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing model", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", generateBody(t, "")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad media type", func(t *testing.T) {
		body, _ := json.Marshal(GenerateRequest{Model: "gpt-4o", MediaType: "hologram"})
		rec := httptest.NewRecorder()
		handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(string(body))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGenerateRelaysTerminalUpstreamError(t *testing.T) {
	outcome := successOutcome()
	outcome.Result = &providers.Result{StatusCode: 422, Body: []byte(`{"error":"bad prompt"}`)}
	handler := NewGenerateHandler(&stubCoordinator{outcome: outcome}, &stubDecisionSource{})

	rec := httptest.NewRecorder()
	handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", generateBody(t, "gpt-4o")))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"bad prompt"}`, rec.Body.String())
}

func TestGenerateErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"no proxy", &routing.NoAvailableProxyError{ModelName: "gpt-4o"}, http.StatusServiceUnavailable},
		{"blocked", &routing.PolicyBlockedError{RuleName: "deny-all"}, http.StatusForbidden},
		{"cost exceeded", &routing.CostExceededError{DeclaredCost: 1}, http.StatusPaymentRequired},
		{"exhausted", coordinator.ErrAllAttemptsFailed, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewGenerateHandler(&stubCoordinator{err: tc.err}, &stubDecisionSource{})
			rec := httptest.NewRecorder()
			handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", generateBody(t, "gpt-4o")))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRouteDryRun(t *testing.T) {
	decision := &routing.Decision{
		SelectedAccountID:   uuid.New(),
		SelectedAccountName: "alpha",
		SelectedModel:       "gpt-4o",
		RoutingReason:       "healthy candidate with best priority/performance: alpha",
	}
	handler := NewGenerateHandler(&stubCoordinator{}, &stubDecisionSource{decision: decision})

	rec := httptest.NewRecorder()
	handler.Route(rec, httptest.NewRequest(http.MethodPost, "/v1/route", generateBody(t, "gpt-4o")))

	require.Equal(t, http.StatusOK, rec.Code)

	var got routing.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "alpha", got.SelectedAccountName)
}

func TestRouteNoBinding(t *testing.T) {
	handler := NewGenerateHandler(&stubCoordinator{}, &stubDecisionSource{err: &routing.NoAvailableProxyError{ModelName: "gpt-4o", Reason: "no model binding"}})

	rec := httptest.NewRecorder()
	handler.Route(rec, httptest.NewRequest(http.MethodPost, "/v1/route", generateBody(t, "gpt-4o")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
