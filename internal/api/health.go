package api

import (
	"context"
	"net/http"
	"time"
)

// health is the liveness probe.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready is the readiness probe; it checks database connectivity when a
// pool is configured.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pool.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable", s.logger)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
