package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vaultrelay/relay-api/internal/api/shared"
	"github.com/vaultrelay/relay-api/internal/janitor"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

// Sweeper runs one cleanup sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (*janitor.Report, error)
}

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	sweeper Sweeper
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sweeper Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// Cleanup handles POST /admin/cleanup requests by running a cleanup sweep
// immediately and reporting its counts.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), slog.Default())

	report, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		log.Error("on-demand cleanup failed", "error", err)
		HandleAPIError(w, r, err, "Cleanup failed")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{
		Inspected:         report.Inspected,
		DuplicatesRemoved: report.DuplicatesRemoved,
		FailedPurged:      report.FailedPurged,
	})
}
