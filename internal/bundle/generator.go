package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
)

// Storage is the slice of the store the generator needs.
type Storage interface {
	InsertPendingBundle(ctx context.Context, scope store.Scope, userID uuid.UUID) (uuid.UUID, error)
	SetBundleStatus(ctx context.Context, scope store.Scope, bundleID uuid.UUID, status model.BundleStatus) error
	FailBundle(ctx context.Context, scope store.Scope, bundleID uuid.UUID, message string) error
	CompleteBundle(ctx context.Context, scope store.Scope, b *model.UserContextBundle) error
	UserWorkouts(ctx context.Context, scope store.Scope, userID uuid.UUID, daysBack int) ([]model.Workout, error)
}

// Definitions supplies the exercise catalog snapshot.
type Definitions interface {
	All(ctx context.Context) ([]model.ExerciseDefinition, error)
}

// Generator regenerates a user's context bundle after workout writes.
type Generator struct {
	storage    Storage
	catalog    Definitions
	logger     *slog.Logger
	windowDays int
	now        func() time.Time
}

// Config configures a Generator.
type Config struct {
	Storage    Storage
	Catalog    Definitions
	Logger     *slog.Logger
	WindowDays int              // workout fetch window, defaults to 30
	Now        func() time.Time // test hook
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("bundle generator: storage is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("bundle generator: catalog is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		storage:    cfg.Storage,
		catalog:    cfg.Catalog,
		logger:     cfg.Logger,
		windowDays: cfg.WindowDays,
		now:        cfg.Now,
	}, nil
}

// Generate recomputes the bundle for one user: pending row, fetch,
// process, single complete write, prune. Failures after the pending
// insert mark the row failed and leave it in place. Concurrent runs
// race benignly on the prune: the newest complete bundle wins.
func (g *Generator) Generate(ctx context.Context, scope store.Scope, userID uuid.UUID) error {
	bundleID, err := g.storage.InsertPendingBundle(ctx, scope, userID)
	if err != nil {
		return fmt.Errorf("inserting pending bundle: %w", err)
	}
	logger := g.logger.With("bundle_id", bundleID, "user_id", userID)

	if err := g.storage.SetBundleStatus(ctx, scope, bundleID, model.BundleProcessing); err != nil {
		return g.fail(ctx, scope, bundleID, logger, fmt.Errorf("marking processing: %w", err))
	}

	workouts, err := g.storage.UserWorkouts(ctx, scope, userID, g.windowDays)
	if err != nil {
		return g.fail(ctx, scope, bundleID, logger, fmt.Errorf("fetching workouts: %w", err))
	}
	if len(workouts) == 0 {
		return g.fail(ctx, scope, bundleID, logger,
			fmt.Errorf("no workouts in the last %d days", g.windowDays))
	}

	defs, err := g.catalog.All(ctx)
	if err != nil {
		return g.fail(ctx, scope, bundleID, logger, fmt.Errorf("loading catalog: %w", err))
	}

	b := Process(workouts, defs, g.now())
	b.ID = bundleID
	b.UserID = userID

	if err := g.storage.CompleteBundle(ctx, scope, b); err != nil {
		return g.fail(ctx, scope, bundleID, logger, fmt.Errorf("completing bundle: %w", err))
	}

	logger.Info("bundle regenerated",
		"workouts", len(workouts),
		"section_errors", len(b.Metadata.Errors))
	return nil
}

func (g *Generator) fail(ctx context.Context, scope store.Scope, bundleID uuid.UUID, logger *slog.Logger, cause error) error {
	if ferr := g.storage.FailBundle(ctx, scope, bundleID, cause.Error()); ferr != nil {
		logger.Error("marking bundle failed", "error", ferr, "cause", cause)
	} else {
		logger.Warn("bundle generation failed", "error", cause)
	}
	return cause
}
