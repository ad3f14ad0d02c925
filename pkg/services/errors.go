// Package services implements the persistence-facing domain services over the
// database connector: jobs, artifacts, users, and settings.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrNotCancellable is returned when cancelling a job already in a
	// terminal state.
	ErrNotCancellable = errors.New("job is not in a cancellable state")

	// ErrForbidden is returned when a caller is not the owner (or an admin).
	ErrForbidden = errors.New("not authorized for this resource")

	// ErrConcurrentModification is returned when a conditional update loses.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
