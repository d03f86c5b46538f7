package entity

import (
	"errors"
	"fmt"
)

var (
	// Error kinds surfaced to callers
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrNotFound          = errors.New("not found")

	// Not found errors
	ErrProfileNotFound      = fmt.Errorf("profile %w", ErrNotFound)
	ErrRequestNotFound      = fmt.Errorf("blood request %w", ErrNotFound)
	ErrDonorRequestNotFound = fmt.Errorf("donor request %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	// Lifecycle errors
	ErrNotAuthorized = fmt.Errorf("%w: profile is not allowed to act on this request", ErrInvalidTransition)
)

// NewValidationError reports a rejected field before anything is written.
func NewValidationError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// Unavailable wraps a backend failure so callers can treat it as transient.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
