package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingID    = errors.New("id is required")
	ErrBadNamespace = errors.New("id is not in its kind's namespace")
	ErrUnknownKind  = errors.New("unknown point kind")
)

// Sentinel errors for the exploration core.
var (
	// ErrPickRejected is returned when a point pick is not allowed in the
	// current facet state or targets a cluster-label point. State is unchanged.
	ErrPickRejected = errors.New("point pick rejected")

	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions indicates the session cap was reached.
	ErrTooManySessions = errors.New("too many sessions")
)

// FetchError wraps a failed backend fetch. It is always transient from the
// core's point of view: nothing was merged and the call may be retried.
type FetchError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
