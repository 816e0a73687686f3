// Package apperr defines the error kinds shared by the services and the HTTP layer.
//
// Services return one of the kinds below, usually through the constructors, so
// the transport can map them to a status code with errors.Is without string matching.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalid         = errors.New("invalid input")
	// ErrConflict is returned by stores when a unique key or a conditional
	// update did not match. Services translate it into ErrInvalidState.
	ErrConflict = errors.New("conflict")
	ErrStore    = errors.New("store failure")
)

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) error {
	return newf(ErrUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

func InvalidState(format string, args ...any) error {
	return newf(ErrInvalidState, format, args...)
}

func Invalid(format string, args ...any) error { return newf(ErrInvalid, format, args...) }

// Store wraps a persistence error. The op names the failed operation for logs;
// clients only ever see a generic message.
func Store(op string, err error) error {
	return &Error{Kind: ErrStore, Msg: op, Err: err}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && !errors.Is(e.Kind, ErrStore) {
		return e.Msg
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "missing or invalid credentials"
	case errors.Is(err, ErrForbidden):
		return "access denied"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		return "operation not allowed in the current state"
	case errors.Is(err, ErrInvalid):
		return "invalid request"
	default:
		return "internal server error"
	}
}
