package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vaultrelay/relay-api/internal/api/shared"
	"github.com/vaultrelay/relay-api/internal/pipeline"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

// TaskReceiver accepts inbound encrypted tasks for processing.
type TaskReceiver interface {
	Receive(ctx context.Context, id, encryptedPayload string) (*pipeline.SubmissionReply, error)
}

// TaskHandler handles the executor's inbound task endpoint.
type TaskHandler struct {
	receiver  TaskReceiver
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(receiver TaskReceiver) *TaskHandler {
	return &TaskHandler{
		receiver:  receiver,
		validator: validator.New(),
	}
}

// ReceiveTask handles POST /encrypted-task requests. New and resumed tasks
// are acknowledged with 202 Accepted; a task that already finished replays
// its stored outcome with 200.
func (h *TaskHandler) ReceiveTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	var req TaskDeliveryRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	reply, err := h.receiver.Receive(r.Context(), req.ID, req.EncryptedPayload)
	if err != nil {
		log.Error("failed to accept task",
			"error", err,
			"task_id", req.ID)
		HandleAPIError(w, r, err, "Failed to accept task")
		return
	}

	// A terminal record replays its outcome; everything else was accepted
	// for (possibly resumed) processing.
	status := http.StatusAccepted
	if !reply.Accepted {
		status = http.StatusOK
	}

	shared.RespondWithJSON(w, r, status, TaskStatusResponse{
		ID:           reply.ID,
		Status:       string(reply.Status),
		ErrorMessage: reply.ErrorMessage,
	})
}
