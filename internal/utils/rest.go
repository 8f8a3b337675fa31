package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope every API handler returns, so callers
// can always read the "error" field regardless of which endpoint failed.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError writes the standard error envelope with the given status.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON writes payload as a JSON body with the given status. The
// status line is already sent when encoding fails, so the fallback plain-text
// error is best effort.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
