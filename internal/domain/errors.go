package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Business-rule rejections
	ErrDailyLimitExceeded  = errors.New("daily task limit reached")
	ErrActiveSessionExists = errors.New("an active focus session already exists")
	ErrAlreadyCompleted    = errors.New("session already completed")
	ErrAlreadyInState      = errors.New("already in requested state")
	ErrDuplicateOrder      = errors.New("duplicate task order")
	ErrOwnershipMismatch   = errors.New("task does not belong to this user and day")

	// Lookup failures (absent, or not owned by the caller)
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrTaskNotFound        = fmt.Errorf("task %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrDistractionNotFound = fmt.Errorf("distraction %w", ErrNotFound)

	// Store collaborator unavailable or failing; safe to retry.
	ErrStorage = errors.New("storage unavailable")

	// Sweep already running
	ErrSweepInProgress = errors.New("reward sweep already in progress")
)

// DailyLimitError reports the count that blocked a task create.
type DailyLimitError struct {
	Current int
	Limit   int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily task limit reached (%d/%d)", e.Current, e.Limit)
}

func (e *DailyLimitError) Unwrap() error { return ErrDailyLimitExceeded }

// ValidationError is caller-supplied data that can never succeed as sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorKind classifies an error for transport mapping and retry decisions.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindInvariant
	KindNotFound
	KindTransient
)

// String returns a lowercase label, used in API error bodies and logs.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant_violation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unexpected"
	}
}

// KindOf classifies err. A nil error is reported as KindUnexpected.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindUnexpected
	case errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDailyLimitExceeded),
		errors.Is(err, ErrActiveSessionExists),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrAlreadyInState),
		errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrOwnershipMismatch),
		errors.Is(err, ErrSweepInProgress):
		return KindInvariant
	case errors.Is(err, ErrStorage):
		return KindTransient
	default:
		return KindUnexpected
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
