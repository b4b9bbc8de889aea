package http

import (
	"errors"
	"net/http"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/pkg/httpx"
	"github.com/asia-shop/identity/pkg/slogx"
)

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidCode:
		return http.StatusUnauthorized
	case domain.CodeTooManyAttempts:
		return http.StatusTooManyRequests
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodePolicyViolation:
		return http.StatusForbidden
	case domain.CodeDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders any service error as the uniform envelope. The
// message of unclassified errors never reaches the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		slogx.FromContext(r.Context()).Error("internal error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, string(domain.CodeInternal), "internal server error")
		return
	}

	var derr *domain.Error
	message := err.Error()
	if errors.As(err, &derr) {
		message = derr.Message
	}
	httpx.WriteError(w, statusFor(code), string(code), message)
}

// writeBearerError responds 401 when the authenticated user id is missing
// from the request context.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
