package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/catalog"
	"github.com/repwise/repwise/internal/coach"
)

type adminHandler struct {
	logger  *slog.Logger
	catalog *catalog.Catalog
	traces  *coach.TraceRegistry
}

// refreshCatalog busts the exercise catalog cache; the next read
// reloads from the database.
func (h *adminHandler) refreshCatalog(w http.ResponseWriter, _ *http.Request) {
	h.catalog.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// sessionTrace returns the telemetry ring of a live session.
func (h *adminHandler) sessionTrace(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID", h.logger)
		return
	}
	trace, ok := h.traces.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no live session with that id", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"entries":    trace.Snapshot(),
	})
}
