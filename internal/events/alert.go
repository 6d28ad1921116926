package events

import (
	"context"
	"log/slog"

	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

// LogAlertHandler surfaces pipeline events as structured log entries so a
// deployment without a paging integration still has a visible alert trail.
type LogAlertHandler struct {
	logger *slog.Logger
}

// NewLogAlertHandler creates a handler that writes alerts through the given
// logger.
func NewLogAlertHandler(log *slog.Logger) *LogAlertHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LogAlertHandler{
		logger: log.With("component", "pipeline_alerts"),
	}
}

// HandleEvent implements the EventHandler interface. Exhausted deliveries log
// at error level since the task is stuck until an operator intervenes; plain
// task failures log at warn level.
func (h *LogAlertHandler) HandleEvent(ctx context.Context, event *PipelineEvent) error {
	log := logger.FromContextOrDefault(ctx, h.logger)

	attrs := []any{
		"event_id", event.ID,
		"event_kind", string(event.Kind),
		"task_id", event.TaskID,
		"message", event.Message,
	}

	switch event.Kind {
	case KindTaskDeliveryExhausted, KindCallbackExhausted:
		log.Error("pipeline alert", attrs...)
	default:
		log.Warn("pipeline alert", attrs...)
	}

	return nil
}
