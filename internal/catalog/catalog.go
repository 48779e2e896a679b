// Package catalog holds the in-memory exercise catalog and the static
// muscle-to-group fold used by bundle processing and the coach tools.
//
// The catalog is loaded lazily on first use and treated as immutable
// after load. Refresh swaps a new snapshot atomically (copy-on-write),
// so readers never need locking.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
)

// Loader fetches the full set of exercise definitions.
// Satisfied by *store.Store.
type Loader interface {
	ExerciseDefinitions(ctx context.Context) ([]model.ExerciseDefinition, error)
}

// Catalog is the process-wide exercise definition cache.
type Catalog struct {
	loader Loader
	logger *slog.Logger

	mu       sync.Mutex // serializes loads, not reads
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	all  []model.ExerciseDefinition
	byID map[uuid.UUID]model.ExerciseDefinition
}

// New creates a Catalog backed by the given loader.
func New(loader Loader, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{loader: loader, logger: logger}
}

// ensure loads the catalog if no snapshot is present yet.
func (c *Catalog) ensure(ctx context.Context) (*snapshot, error) {
	if snap := c.snapshot.Load(); snap != nil {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another loader may have won the race while we waited.
	if snap := c.snapshot.Load(); snap != nil {
		return snap, nil
	}

	defs, err := c.loader.ExerciseDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading exercise catalog: %w", err)
	}

	snap := buildSnapshot(defs)
	c.snapshot.Store(snap)
	c.logger.Info("exercise catalog loaded", "count", len(defs))
	return snap, nil
}

func buildSnapshot(defs []model.ExerciseDefinition) *snapshot {
	byID := make(map[uuid.UUID]model.ExerciseDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	return &snapshot{all: defs, byID: byID}
}

// All returns every definition, loading the catalog on first use.
// The returned slice must not be mutated.
func (c *Catalog) All(ctx context.Context) ([]model.ExerciseDefinition, error) {
	snap, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return snap.all, nil
}

// ByID looks up a definition by id.
func (c *Catalog) ByID(ctx context.Context, id uuid.UUID) (model.ExerciseDefinition, bool, error) {
	snap, err := c.ensure(ctx)
	if err != nil {
		return model.ExerciseDefinition{}, false, err
	}
	d, ok := snap.byID[id]
	return d, ok, nil
}

// ByType returns all definitions of the given exercise type.
func (c *Catalog) ByType(ctx context.Context, t model.ExerciseType) ([]model.ExerciseDefinition, error) {
	snap, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.ExerciseDefinition
	for _, d := range snap.all {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invalidate drops the current snapshot; the next read reloads.
// Used by the admin cache-bust endpoint after catalog edits.
func (c *Catalog) Invalidate() {
	c.snapshot.Store(nil)
	c.logger.Info("exercise catalog invalidated")
}

// MuscleGroup is one of the coarse display groups.
const (
	GroupChest     = "Chest"
	GroupBack      = "Back"
	GroupLegs      = "Legs"
	GroupShoulders = "Shoulders"
	GroupArms      = "Arms"
	GroupCore      = "Core"
	GroupCardio    = "Cardio"
	GroupOther     = "Other"
)

// muscleGroups maps fine-grained primary muscles to display groups.
// Lookup is case-insensitive; unknown muscles fold to Other.
var muscleGroups = map[string]string{
	"chest":       GroupChest,
	"upper_chest": GroupChest,
	"lower_chest": GroupChest,

	"lats":       GroupBack,
	"traps":      GroupBack,
	"rhomboids":  GroupBack,
	"upper_back": GroupBack,
	"lower_back": GroupBack,
	"erectors":   GroupBack,

	"quads":       GroupLegs,
	"hamstrings":  GroupLegs,
	"glutes":      GroupLegs,
	"calves":      GroupLegs,
	"adductors":   GroupLegs,
	"abductors":   GroupLegs,
	"hip_flexors": GroupLegs,

	"front_delts":  GroupShoulders,
	"side_delts":   GroupShoulders,
	"rear_delts":   GroupShoulders,
	"delts":        GroupShoulders,
	"shoulders":    GroupShoulders,
	"rotator_cuff": GroupShoulders,

	"biceps":   GroupArms,
	"triceps":  GroupArms,
	"forearms": GroupArms,

	"abs":      GroupCore,
	"obliques": GroupCore,
	"core":     GroupCore,

	"heart":          GroupCardio,
	"cardiovascular": GroupCardio,
	"full_body":      GroupCardio,
}

// MuscleGroupFor folds a primary muscle into its display group.
func MuscleGroupFor(muscle string) string {
	if g, ok := muscleGroups[strings.ToLower(strings.TrimSpace(muscle))]; ok {
		return g
	}
	return GroupOther
}
