package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vaultrelay/relay-api/internal/domain"
)

// getPathTaskID extracts a task id from the URL path parameters. Task ids
// are opaque strings, so the only check is presence.
func getPathTaskID(r *http.Request, paramName string) (string, error) {
	id := chi.URLParam(r, paramName)
	if id == "" {
		return "", domain.NewValidationError(paramName, "is required", domain.ErrEmptyTaskID)
	}
	return id, nil
}
