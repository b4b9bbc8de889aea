package identitysdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents a non-2xx response from the identity service. The
// Code field carries the service's stable error code (e.g. "invalid_code",
// "too_many_attempts") so callers can branch without string-matching the
// human-readable message.
type APIError struct {
	StatusCode       int               `json:"-"`
	Code             string            `json:"errorCode"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

// MFAChallengeError is returned by Login when the account has MFA enabled.
// The caller must complete the challenge with a second factor to obtain a
// session.
type MFAChallengeError struct {
	ChallengeID string
	Methods     []string
}

// Error implements the error interface.
func (e *MFAChallengeError) Error() string {
	return fmt.Sprintf("MFA required: available methods=%v", e.Methods)
}

// parseErrorResponse turns an error-status response body into a typed
// *APIError. Falls back to a generic error when the body is not the
// standard envelope.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && env.ErrorCode != "" {
		return &APIError{
			StatusCode:       resp.StatusCode,
			Code:             env.ErrorCode,
			Message:          env.Message,
			ValidationErrors: env.ValidationErrors,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       "internal_error",
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
