package api

import (
	"log/slog"
	"net/http"

	"github.com/vaultrelay/relay-api/internal/api/shared"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// HealthHandler reports service health: store reachability and the number
// of task records it holds.
type HealthHandler struct {
	store store.TaskRecordStore
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(recordStore store.TaskRecordStore) *HealthHandler {
	return &HealthHandler{store: recordStore}
}

// Health handles GET /healthz requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	if err := h.store.Ping(r.Context()); err != nil {
		log.Error("health check failed to reach the database", "error", err)
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Database: "down",
		})
		return
	}

	records, err := h.store.Count(r.Context())
	if err != nil {
		log.Error("health check failed to count task records", "error", err)
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Database: "up",
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:   "ok",
		Database: "up",
		Records:  records,
	})
}
