package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and user-visible behavior.
type Kind string

const (
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	Authorization Kind = "authorization"
	Gateway       Kind = "gateway"
	Conflict      Kind = "conflict"
	Internal      Kind = "internal"
)

// Error carries a public message safe to return to clients and an internal
// message for logs. Raw processor/storage error text never reaches clients.
type Error struct {
	Kind        Kind
	PublicError string
	Internal    string
	TraceID     string
	Err         error
}

func (e *Error) Error() string {
	if e.Internal != "" {
		return e.Internal
	}
	return e.PublicError
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a typed error whose public and internal messages coincide.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, PublicError: msg, Internal: msg}
}

// Wrap builds a typed error around an underlying cause. The cause's text is
// kept internal only.
func Wrap(kind Kind, publicMsg string, err error) *Error {
	return &Error{
		Kind:        kind,
		PublicError: publicMsg,
		Internal:    fmt.Sprintf("%s: %v", publicMsg, err),
		Err:         err,
	}
}

// KindOf extracts the Kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Public returns the user-safe message for err.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.PublicError
	}
	return "internal error"
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Authorization:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Gateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether a webhook caller should be told to redeliver
// the event. Validation, conflict and authorization failures are final;
// storage and unknown failures are worth retrying.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case Validation, NotFound, Authorization, Conflict:
		return false
	default:
		return true
	}
}
