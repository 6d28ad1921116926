package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vaultrelay/relay-api/internal/api/shared"
	"github.com/vaultrelay/relay-api/internal/dispatch"
	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/pipeline"
	"github.com/vaultrelay/relay-api/internal/relay"
	"github.com/vaultrelay/relay-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErr *domain.ValidationError

	switch {
	// Bad request errors
	case errors.As(err, &validationErr),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyTaskID),
		errors.Is(err, domain.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, relay.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskRecordNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrStaleStatus),
		errors.Is(err, store.ErrTaskIDExists),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Capacity errors: the caller should retry later
	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, dispatch.ErrAdmissionRejected):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	// Validation errors carry a field name and reason, both safe to expose.
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}

	switch {
	// Bad request errors
	case errors.Is(err, domain.ErrEmptyTaskID):
		return "Task id is required"

	case errors.Is(err, domain.ErrEmptyPayload):
		return "Payload is required"

	case errors.Is(err, domain.ErrInvalidStatus):
		return "Invalid task status"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid task data"

	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"

	// Not found errors
	case errors.Is(err, relay.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskRecordNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task is in a conflicting state"

	case errors.Is(err, store.ErrStaleStatus):
		return "Task was modified concurrently"

	case errors.Is(err, store.ErrTaskIDExists),
		errors.Is(err, store.ErrDuplicate):
		return "Task id already exists"

	// Capacity errors
	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, dispatch.ErrAdmissionRejected):
		return "Service is at capacity, retry later"

	// Default case for unknown errors
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps the error to a status code and writes a sanitized
// error response, logging the full error server-side. fallbackMessage
// replaces the generic message for errors with no specific mapping.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if fallbackMessage != "" && status == http.StatusInternalServerError {
		message = fallbackMessage
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'SubmitTaskRequest.Payload' Error:Field validation for 'Payload' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			// Further split to get just the field validation part
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				// Create a cleaner error message
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
