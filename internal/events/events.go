package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a pipeline incident.
type Kind string

const (
	// KindTaskFailed indicates a task record entered the ERROR status.
	KindTaskFailed Kind = "task_failed"

	// KindTaskDeliveryExhausted indicates an outbound task delivery to the
	// execution side spent its whole retry budget without a success.
	KindTaskDeliveryExhausted Kind = "task_delivery_exhausted"

	// KindCallbackExhausted indicates a result callback to the submission
	// side spent its whole retry budget without a success.
	KindCallbackExhausted Kind = "callback_delivery_exhausted"
)

// PipelineEvent represents a pipeline incident tied to a task record.
// It carries enough context for an operator to find the record without
// direct dependencies on the pipeline package.
type PipelineEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind classifies the incident
	Kind Kind `json:"kind"`

	// TaskID identifies the affected task record
	TaskID string `json:"task_id"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewPipelineEvent creates a new PipelineEvent for the given task.
func NewPipelineEvent(kind Kind, taskID, message string) *PipelineEvent {
	return &PipelineEvent{
		ID:        uuid.New(),
		Kind:      kind,
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *PipelineEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *PipelineEvent) error
}
