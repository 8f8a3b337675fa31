package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{"bad request", http.StatusBadRequest, "model_name is required"},
		{"unauthorized", http.StatusUnauthorized, "missing bearer token"},
		{"not found", http.StatusNotFound, "proxy account not found"},
		{"upstream failure", http.StatusBadGateway, "all attempts failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.message)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.message, response.Error)
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		payload := struct {
			Account string  `json:"account"`
			Cost    float64 `json:"cost"`
		}{Account: "openai-primary", Cost: 0.25}

		require.NoError(t, RespondWithJSON(w, http.StatusOK, payload))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"account":"openai-primary","cost":0.25}`, w.Body.String())
	})

	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()
		payload := map[string]any{"healthy": true, "count": 3}

		require.NoError(t, RespondWithJSON(w, http.StatusCreated, payload))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"healthy":true,"count":3}`, w.Body.String())
	})

	t.Run("nil payload encodes null", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, RespondWithJSON(w, http.StatusOK, nil))
		assert.Equal(t, "null\n", w.Body.String())
	})
}
