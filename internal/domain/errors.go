package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing snapshot input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a cache-key collision with another live snapshot.
	ErrConflict = errors.New("cache key conflict")
	// ErrNotFound is returned by point lookups only; filtering queries return
	// empty results instead.
	ErrNotFound = errors.New("snapshot not found")
	// ErrNotReady is returned when a summary is requested on incomplete data.
	ErrNotReady = errors.New("snapshot data not ready")
	// ErrCanceled wraps a caller-initiated abort or an exceeded deadline.
	ErrCanceled = errors.New("operation canceled")
	// ErrStorageUnavailable wraps failures of the underlying persistence.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError identifies the snapshot already holding the cache key.
type ConflictError struct {
	CacheKey   string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: key %q held by snapshot %s", ErrConflict, e.CacheKey, e.ExistingID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Canceled converts context errors into ErrCanceled, keeping the original
// cause in the chain. Other errors are returned unchanged.
func Canceled(err error) error {
	if err == nil || errors.Is(err, ErrCanceled) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return err
}

// Unavailable wraps a storage failure. Context errors become ErrCanceled
// instead, and already-classified domain errors pass through.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled(err)
	}
	for _, known := range []error{ErrCanceled, ErrConflict, ErrNotFound, ErrValidation, ErrStorageUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
