package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
)

// maxWorkoutBody bounds a workout payload.
const maxWorkoutBody = 1 << 20

// workoutStorage is the slice of the store the workout endpoint needs.
type workoutStorage interface {
	CreateWorkout(ctx context.Context, scope store.Scope, workout *model.Workout) error
}

// bundleGenerator regenerates a user's analysis bundle after a write.
type bundleGenerator interface {
	Generate(ctx context.Context, scope store.Scope, userID uuid.UUID) error
}

type workoutHandler struct {
	logger    *slog.Logger
	store     workoutStorage
	generator bundleGenerator
	bgCtx     context.Context
	wg        *sync.WaitGroup
}

// createWorkoutRequest is the POST /api/workouts payload.
type createWorkoutRequest struct {
	UserID    uuid.UUID               `json:"user_id"`
	Name      string                  `json:"name"`
	Notes     string                  `json:"notes,omitempty"`
	Exercises []model.WorkoutExercise `json:"exercises"`
}

// create persists a workout and kicks off bundle regeneration
// fire-and-forget.
func (h *workoutHandler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWorkoutBody)

	var req createWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", h.logger)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "name is required", h.logger)
		return
	}

	workout := &model.Workout{
		UserID:    req.UserID,
		Name:      req.Name,
		Notes:     req.Notes,
		Exercises: req.Exercises,
	}
	scope := store.UserScope(req.UserID)
	if err := h.store.CreateWorkout(r.Context(), scope, workout); err != nil {
		if errors.Is(err, store.ErrScopeViolation) {
			writeError(w, http.StatusForbidden, "forbidden", "not your workout", h.logger)
			return
		}
		h.logger.Error("creating workout", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create workout", h.logger)
		return
	}

	// Regeneration is fire-and-forget: the write already succeeded and
	// the stale bundle stays valid until the new one lands.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.bgCtx, time.Minute)
		defer cancel()
		if err := h.generator.Generate(ctx, store.AdminScope(), req.UserID); err != nil {
			h.logger.Warn("bundle regeneration failed", "user_id", req.UserID, "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, workout)
}
