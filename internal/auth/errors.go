package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/club-manager/internal/security"
)

// Code is the machine-readable failure code returned to clients.
type Code string

const (
	CodeMissingParam       Code = "missing_param"
	CodeInvalidParam       Code = "invalid_param"
	CodeInvalidToken       Code = "invalid_token"
	CodeTokenExpired       Code = "token_expired"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountNotFound    Code = "account_not_found"
	CodeRateLimited        Code = "rate_limited"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeConfigError        Code = "config_error"
	// CodeUnavailable marks a store failure or timeout.  It is transient and
	// safe to retry.
	CodeUnavailable Code = "unavailable"
)

// Error is the typed failure returned by every auth operation.  Err keeps
// the underlying cause for logs; it is never shown to clients.
type Error struct {
	Code       Code
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, auth.ErrRateLimited).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMissingParam       = &Error{Code: CodeMissingParam}
	ErrInvalidParam       = &Error{Code: CodeInvalidParam}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken}
	ErrTokenExpired       = &Error{Code: CodeTokenExpired}
	ErrInvalidSignature   = &Error{Code: CodeInvalidSignature}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrAccountNotFound    = &Error{Code: CodeAccountNotFound}
	ErrRateLimited        = &Error{Code: CodeRateLimited}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrForbidden          = &Error{Code: CodeForbidden}
	ErrConfig             = &Error{Code: CodeConfigError}
	ErrUnavailable        = &Error{Code: CodeUnavailable}
)

// fail wraps cause under code.
func fail(code Code, cause error) *Error {
	return &Error{Code: code, Err: cause}
}

// CodeOf extracts the code from err.  Untyped errors are reported as
// unavailable because they can only originate from a store.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnavailable
}

// tokenError converts a security error into the auth taxonomy.
func tokenError(err error) *Error {
	switch {
	case errors.Is(err, security.ErrMissingSecret):
		return fail(CodeConfigError, err)
	case errors.Is(err, security.ErrTokenExpired):
		return fail(CodeTokenExpired, err)
	case errors.Is(err, security.ErrInvalidSignature):
		return fail(CodeInvalidSignature, err)
	}
	return fail(CodeInvalidToken, err)
}
