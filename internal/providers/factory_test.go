package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genproxy/internal/models"
	"genproxy/internal/storage"
)

func testFactory(t *testing.T) (*Factory, *storage.CredentialCipher) {
	t.Helper()
	key := make([]byte, 32)
	cipher, err := storage.NewCredentialCipher(key)
	require.NoError(t, err)
	return NewFactory(cipher), cipher
}

func sealedCredential(t *testing.T, cipher *storage.CredentialCipher, plaintext string) string {
	t.Helper()
	sealed, err := cipher.Seal(plaintext)
	require.NoError(t, err)
	return sealed
}

func TestFactorySupportedTags(t *testing.T) {
	factory, _ := testFactory(t)
	tags := factory.SupportedTags()
	assert.Contains(t, tags, "openai")
	assert.Contains(t, tags, "anthropic")
}

func TestFactoryForAccountOpensCredential(t *testing.T) {
	factory, cipher := testFactory(t)
	account := &models.ProxyAccount{
		ID:                  uuid.New(),
		Name:                "alpha",
		ProviderTag:         "openai",
		BaseURL:             "https://gateway.internal/v1",
		EncryptedCredential: sealedCredential(t, cipher, "sk-test"),
	}

	family, target, err := factory.ForAccount(account)
	require.NoError(t, err)
	assert.Equal(t, "openai", family.Tag())
	assert.Equal(t, "sk-test", target.Credential)
	assert.Equal(t, "https://gateway.internal/v1", target.BaseURL)
}

func TestFactoryUnknownTag(t *testing.T) {
	factory, _ := testFactory(t)
	account := &models.ProxyAccount{ID: uuid.New(), Name: "odd", ProviderTag: "acme"}

	_, _, err := factory.ForAccount(account)
	assert.Error(t, err)

	// probe contract folds resolution failures into a failed outcome
	outcome := factory.ProbeAccount(context.Background(), account)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
}

func TestFactoryBadCredential(t *testing.T) {
	factory, _ := testFactory(t)
	account := &models.ProxyAccount{
		ID:                  uuid.New(),
		Name:                "alpha",
		ProviderTag:         "openai",
		EncryptedCredential: "not-a-sealed-credential",
	}

	_, _, err := factory.ForAccount(account)
	assert.Error(t, err)
}

func TestOpenAIProbe(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	family := NewOpenAIFamily(server.Client())
	outcome := family.Probe(context.Background(), Target{BaseURL: server.URL, Credential: "sk-test"})

	assert.True(t, outcome.Success)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIProbeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	family := NewOpenAIFamily(server.Client())
	outcome := family.Probe(context.Background(), Target{BaseURL: server.URL})

	assert.False(t, outcome.Success)
	assert.Equal(t, http.StatusUnauthorized, outcome.StatusCode)
	assert.NotEmpty(t, outcome.Error)
}

func TestOpenAIExecuteRoutesByPayload(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	family := NewOpenAIFamily(server.Client())
	target := Target{BaseURL: server.URL, Credential: "sk-test"}

	t.Run("chat", func(t *testing.T) {
		result, err := family.Execute(context.Background(), target, "gpt-4o", map[string]any{"messages": []any{}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, "/chat/completions", gotPath)
		assert.Equal(t, "gpt-4o", gotPayload["model"])
	})

	t.Run("images", func(t *testing.T) {
		_, err := family.Execute(context.Background(), target, "dall-e-3", map[string]any{"prompt": "a fox", "size": "1024x1024"})
		require.NoError(t, err)
		assert.Equal(t, "/images/generations", gotPath)
	})

	t.Run("embeddings", func(t *testing.T) {
		_, err := family.Execute(context.Background(), target, "text-embedding-3-small", map[string]any{"input": "hello"})
		require.NoError(t, err)
		assert.Equal(t, "/embeddings", gotPath)
	})
}

func TestOpenAIExecuteErrorKeepsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	family := NewOpenAIFamily(server.Client())
	result, err := family.Execute(context.Background(), Target{BaseURL: server.URL}, "gpt-4o", nil)

	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.JSONEq(t, `{"error":"rate limited"}`, string(result.Body))
}

func TestAnthropicExecute(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	family := NewAnthropicFamily(server.Client())
	result, err := family.Execute(context.Background(), Target{BaseURL: server.URL, Credential: "ak-test"}, "claude-sonnet", map[string]any{"messages": []any{}})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "ak-test", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
}

func TestExecuteAccountEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-live", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"text":"ok"}]}`))
	}))
	defer server.Close()

	factory, cipher := testFactory(t)
	factory.Register(NewOpenAIFamily(server.Client()))

	account := &models.ProxyAccount{
		ID:                  uuid.New(),
		Name:                "alpha",
		ProviderTag:         "openai",
		BaseURL:             server.URL,
		EncryptedCredential: sealedCredential(t, cipher, "sk-live"),
	}

	result, err := factory.ExecuteAccount(context.Background(), account, "gpt-4o", map[string]any{"messages": []any{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}
