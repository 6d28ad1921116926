package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vaultrelay/relay-api/internal/api/shared"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/relay"
)

// RelayHandler handles the coordinator's submission, polling and result
// callback endpoints.
type RelayHandler struct {
	service   relay.Service
	validator *validator.Validate
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(service relay.Service) *RelayHandler {
	return &RelayHandler{
		service:   service,
		validator: validator.New(),
	}
}

// SubmitTask handles POST /tasks requests. The reply carries the id to poll
// with; processing and delivery happen asynchronously.
func (h *RelayHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	reply, err := h.service.Submit(r.Context(), relay.SubmitRequest{
		ID:        req.ID,
		Payload:   req.Payload,
		SourceTag: req.SourceTag,
	})
	if err != nil {
		log.Error("failed to submit task",
			"error", err,
			"task_id", req.ID)
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskStatusResponse{
		ID:     reply.ID,
		Status: string(reply.Status),
	})
}

// GetTaskStatus handles GET /tasks/{id} requests.
func (h *RelayHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	record, err := h.service.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		ID:           record.ID,
		Status:       string(record.Status),
		ErrorMessage: record.ErrorMessage,
	})
}

// HandleTaskResult handles POST /task-results requests: the executor
// reporting a task outcome. The ack carries the status the record holds
// after the callback is applied, so duplicate callbacks see the stored
// outcome.
func (h *RelayHandler) HandleTaskResult(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	var req ResultCallbackRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	status, err := h.service.HandleResult(r.Context(), relay.ResultNotice{
		DataID:       req.DataID,
		Content:      req.Content,
		ErrorMessage: req.ErrorMessage,
		Status:       req.Status,
	})
	if err != nil {
		log.Error("failed to record task result",
			"error", err,
			"task_id", req.DataID)
		HandleAPIError(w, r, err, "Failed to record task result")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		ID:     req.DataID,
		Status: string(status),
	})
}
