// Package apperr defines the error kinds surfaced by the substitution engine.
// Services return *Error values and the HTTP layer maps the Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound means a referenced need, proposal, route or group does not exist.
	KindNotFound
	// KindConflict means a duplicate active proposal or an invalid state transition.
	KindConflict
	// KindValidation means malformed or missing input.
	KindValidation
	// KindUpstreamUnavailable means the external catalog failed. It is recovered
	// internally and must never reach a client.
	KindUpstreamUnavailable
	// KindInternal is an unexpected failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_error"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a typed domain error.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithOp records the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Upstream(err error) *Error {
	return Wrap(KindUpstreamUnavailable, "catalog upstream unavailable", err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
