// Package apperr defines the error kinds every service reports to callers.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the stable machine-readable error code.
type Kind string

const (
	Unauthenticated       Kind = "UNAUTHENTICATED"
	Unauthorized          Kind = "UNAUTHORIZED"
	NotFound              Kind = "NOT_FOUND"
	InvalidTransition     Kind = "INVALID_TRANSITION"
	Validation            Kind = "VALIDATION_ERROR"
	DependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	Composition           Kind = "COMPOSITION_ERROR"
	Conflict              Kind = "CONFLICT"
	NoServicesAvailable   Kind = "NO_SERVICES_AVAILABLE"
	Internal              Kind = "INTERNAL"
)

// Error is a classified error. Message is safe to show to callers; Err is
// kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Unauthorized:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidTransition, Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	case DependencyUnavailable, NoServicesAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public returns what may be shown to a caller for err.
func Public(err error) (Kind, string, map[string]string) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return Internal, "internal error", nil
	}
	return e.Kind, e.Message, e.Details
}
