package domain

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code. Codes are part of the API
// contract and cross the HTTP boundary unchanged; messages may vary.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeInvalidCode       Code = "invalid_code"
	CodeTooManyAttempts   Code = "too_many_attempts"
	CodeConflict          Code = "conflict"
	CodePolicyViolation   Code = "policy_violation"
	CodeDependencyFailure Code = "dependency_failure"
	CodeInternal          Code = "internal_error"
)

// Error carries a taxonomy code alongside a human-readable message. Missing
// and expired records both map to CodeNotFound so callers cannot tell the
// difference.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is matches on code so sentinel comparisons like
// errors.Is(err, domain.ErrNotFound) work for any wrapped variant.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// E constructs a coded error.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches an underlying cause to a coded error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// Sentinels for the common taxonomy entries. Use errors.Is against these.
var (
	ErrValidation        = E(CodeValidation, "invalid input")
	ErrNotFound          = E(CodeNotFound, "not found or expired")
	ErrInvalidCode       = E(CodeInvalidCode, "invalid code")
	ErrTooManyAttempts   = E(CodeTooManyAttempts, "too many attempts")
	ErrConflict          = E(CodeConflict, "concurrent modification")
	ErrPolicyViolation   = E(CodePolicyViolation, "operation violates security policy")
	ErrDependencyFailure = E(CodeDependencyFailure, "dependency unavailable")
)

// CodeOf extracts the taxonomy code from err, or CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
