package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyTaskID is returned when a task record has no id.
	ErrEmptyTaskID = errors.New("task id cannot be empty")

	// ErrEmptyPayload is returned when a task record has no encrypted payload.
	ErrEmptyPayload = errors.New("encrypted payload cannot be empty")

	// ErrEmptyErrorMessage is returned when a record is failed without a reason.
	ErrEmptyErrorMessage = errors.New("error message is required for failed records")

	// ErrInvalidStatus is returned when a status string is not one of the
	// seven lifecycle statuses.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError,
	// so callers can match the class with errors.Is without unpacking details.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError reports an attempt to move a task record along an
// edge the state machine does not permit. It is deliberately loud: callers
// are expected to log it at error level and refuse the mutation.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s for task %q", e.From, e.To, e.TaskID)
}

// Unwrap links the typed error to the ErrInvalidTransition sentinel.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewInvalidTransitionError creates an InvalidTransitionError for the given
// record identity and edge.
func NewInvalidTransitionError(taskID string, from, to Status) *InvalidTransitionError {
	return &InvalidTransitionError{TaskID: taskID, From: from, To: to}
}

// ValidationError carries the offending field alongside the underlying
// sentinel so API handlers can return precise 400-class messages.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel error.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}
