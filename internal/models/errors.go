package models

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the engine. Callers match them with errors.Is.
var (
	// ErrNotFound is returned when a template, invocation, or response
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReauthRequired is returned when the refresh exchange is denied and
	// the session needs a fresh magic-link login.
	ErrReauthRequired = errors.New("session requires re-authentication")

	// ErrMissingParameter is returned when a required template parameter is
	// absent from the supplied values.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrTypeMismatch is returned when a supplied parameter value does not
	// match its declared kind.
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrUnboundPlaceholder is returned when a template references a
	// placeholder with no declared parameter.
	ErrUnboundPlaceholder = errors.New("placeholder has no declared parameter")

	// ErrDuplicateRecord is returned when a second response record is
	// written for the same invocation.
	ErrDuplicateRecord = errors.New("duplicate response record")

	// ErrShutdown marks invocations that were still running when the
	// session's shutdown grace period expired.
	ErrShutdown = errors.New("session shut down")

	// ErrStillPending indicates an await timed out before the invocation
	// reached a terminal state.
	ErrStillPending = errors.New("invocation still pending")

	// ErrQueueClosed is returned when submitting to a queue that is
	// shutting down.
	ErrQueueClosed = errors.New("execution queue closed")
)

// ValidationError reports a bad template or bad parameters. It is the
// caller's fault and is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthError wraps credential failures. Surfaced to the front end as
// "re-authenticate".
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps network-level failures after the retry policy has
// been exhausted. Attempts counts every try, including the first.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InternalError reports an invariant violation. It aborts the operation but
// must never crash the session.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return "internal error in " + e.Op + ": " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }
