package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response body for every endpoint. Data is only set
// on success; ErrorCode carries a stable machine-readable code on failure.
type Envelope struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message,omitempty"`
	Data             any               `json:"data,omitempty"`
	ErrorCode        string            `json:"errorCode,omitempty"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, code int, message string, data any) {
	WriteJSON(w, code, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteError writes a failure envelope with a stable error code.
func WriteError(w http.ResponseWriter, code int, errorCode, message string) {
	WriteJSON(w, code, Envelope{
		Success:   false,
		Message:   message,
		ErrorCode: errorCode,
	})
}

// WriteValidationError writes a failure envelope carrying per-field messages.
func WriteValidationError(w http.ResponseWriter, message string, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, Envelope{
		Success:          false,
		Message:          message,
		ErrorCode:        "validation_error",
		ValidationErrors: fields,
	})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is required for sensitive responses like secrets and backup codes.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
