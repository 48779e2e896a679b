// Package api exposes the HTTP surface: the coach websocket, workout
// writes that trigger bundle regeneration, health probes, the admin
// catalog refresh, and the per-session trace debug endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repwise/repwise/internal/catalog"
	"github.com/repwise/repwise/internal/coach"
	"github.com/repwise/repwise/internal/memory"
)

// Storage is the slice of the store the API needs. *store.Store
// satisfies it.
type Storage interface {
	coach.Storage
	workoutStorage
}

// ServerConfig contains everything the API server wires together.
type ServerConfig struct {
	Logger    *slog.Logger
	Store     Storage           // Required
	LLM       coach.LLM         // Required
	Catalog   *catalog.Catalog  // Required
	Tools     *coach.Tools      // Required
	ToolRefs  []ai.ToolRef      // Required: registered coach tools
	Generator bundleGenerator   // Required: bundle regeneration
	Extractor *memory.Extractor // Optional: nil disables memory extraction
	Pool      *pgxpool.Pool     // Optional: enables db check in /ready

	// HeartbeatTimeoutSeconds closes a coach websocket after this many
	// seconds without a client heartbeat. Zero uses 60.
	HeartbeatTimeoutSeconds int

	// CompactionThreshold / CompactionKeep configure session history
	// compaction; zero values use the session defaults.
	CompactionThreshold int
	CompactionKeep      int

	// BackgroundCtx bounds fire-and-forget work (bundle regeneration,
	// memory extraction, compaction); WG tracks it for shutdown.
	BackgroundCtx context.Context
	WG            *sync.WaitGroup
}

// Server is the repwise HTTP server.
type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	pool    *pgxpool.Pool

	traces *coach.TraceRegistry
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("llm client is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tools are required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("bundle generator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackgroundCtx == nil {
		cfg.BackgroundCtx = context.Background()
	}
	if cfg.WG == nil {
		cfg.WG = &sync.WaitGroup{}
	}
	if cfg.HeartbeatTimeoutSeconds <= 0 {
		cfg.HeartbeatTimeoutSeconds = 60
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		pool:   cfg.Pool,
		traces: coach.NewTraceRegistry(),
	}

	ch := &coachHandler{
		logger:    logger,
		store:     cfg.Store,
		llm:       cfg.LLM,
		tools:     cfg.Tools,
		toolRefs:  cfg.ToolRefs,
		extractor: cfg.Extractor,
		traces:    s.traces,
		timeout:   cfg.HeartbeatTimeoutSeconds,
		threshold: cfg.CompactionThreshold,
		keep:      cfg.CompactionKeep,
		bgCtx:     cfg.BackgroundCtx,
		wg:        cfg.WG,
	}
	wh := &workoutHandler{
		logger:    logger,
		store:     cfg.Store,
		generator: cfg.Generator,
		bgCtx:     cfg.BackgroundCtx,
		wg:        cfg.WG,
	}
	ah := &adminHandler{
		logger:  logger,
		catalog: cfg.Catalog,
		traces:  s.traces,
	}

	s.mux.HandleFunc("GET /health", health)
	s.mux.HandleFunc("GET /ready", s.ready)

	s.mux.HandleFunc("GET /api/llm/coach/{conversation_id}/{user_id}", ch.serve)

	s.mux.HandleFunc("POST /api/workouts", wh.create)

	s.mux.HandleFunc("POST /api/admin/catalog/refresh", ah.refreshCatalog)
	s.mux.HandleFunc("GET /api/debug/sessions/{id}/trace", ah.sessionTrace)

	// Middleware stack, outermost first: Recovery -> Logging -> Routes.
	var handler http.Handler = s.mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)
	s.handler = handler

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
