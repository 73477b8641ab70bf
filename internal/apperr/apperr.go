// Package apperr defines the error kinds shared by the ledgers, the session
// store and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation error")
	ErrFormat     = errors.New("format error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrAuth       = errors.New("authentication failed")
	ErrExternal   = errors.New("external service error")

	// ErrUnavailable is an external dependency that is not configured. It
	// also matches ErrExternal.
	ErrUnavailable = fmt.Errorf("service unavailable: %w", ErrExternal)
)

// Error carries a user-visible message together with its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }

func Format(msg string) error { return &Error{Kind: ErrFormat, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

func Auth(msg string) error { return &Error{Kind: ErrAuth, Msg: msg} }

func Unavailable(msg string) error { return &Error{Kind: ErrUnavailable, Msg: msg} }

// Externalf wraps an upstream failure. The cause stays reachable through
// errors.Is / errors.As but is not part of Message.
func Externalf(cause error, format string, args ...any) error {
	e := &Error{Kind: ErrExternal, Msg: fmt.Sprintf(format, args...)}
	if cause == nil {
		return e
	}
	return &externalError{base: e, cause: cause}
}

type externalError struct {
	base  *Error
	cause error
}

func (e *externalError) Error() string {
	return e.base.Error() + ": " + e.cause.Error()
}

func (e *externalError) Unwrap() []error { return []error{e.base, e.cause} }

// Message returns the user-visible text of err, or fallback when err does not
// carry one.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}

// HTTPStatus maps an error kind to the response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
