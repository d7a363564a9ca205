package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrNotConfigured   = errors.New("payment provider not configured")
	ErrProviderFailure = errors.New("provider failure")
	ErrConflict        = errors.New("conflicting state transition")
	ErrGone            = errors.New("no longer available")
	ErrInvalidInput    = errors.New("invalid input")
)

// ValidationError wraps a human-readable reason in ErrInvalidInput so callers
// can match the class with errors.Is while still surfacing the detail.
func ValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
