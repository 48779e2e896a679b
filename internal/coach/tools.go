package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/catalog"
	"github.com/repwise/repwise/internal/model"
)

// Tool names as the model sees them.
const (
	ToolStrengthExercises = "get_strength_exercises"
	ToolCardioExercises   = "get_cardio_exercises"
	ToolMobilityExercises = "get_mobility_exercises"
)

// StrengthQuery filters the strength catalog. Empty filters match
// everything; values within one filter are OR'd, filters are AND'd.
type StrengthQuery struct {
	MuscleGroups     []string `json:"muscle_groups,omitempty"`
	MovementPatterns []string `json:"movement_patterns,omitempty"`
}

// CardioQuery filters the cardio catalog by base movement.
type CardioQuery struct {
	BaseMovement string `json:"base_movement,omitempty"`
}

// MobilityQuery filters the mobility catalog by target area.
type MobilityQuery struct {
	TargetAreas []string `json:"target_areas,omitempty"`
}

// LastTracked is the user's heaviest in-window set of an exercise.
type LastTracked struct {
	WeightKg float64 `json:"weight_kg"`
	Reps     int     `json:"reps"`
	Date     string  `json:"date"`
}

// ExerciseRecord is a tool result row. MovementPattern is set for
// strength, BaseMovement for cardio; LastTracked is a session-side
// enrichment for strength exercises only.
type ExerciseRecord struct {
	ID              uuid.UUID    `json:"id"`
	StandardName    string       `json:"standard_name"`
	PrimaryMuscles  []string     `json:"primary_muscles"`
	MovementPattern string       `json:"movement_pattern,omitempty"`
	BaseMovement    string       `json:"base_movement,omitempty"`
	LastTracked     *LastTracked `json:"last_tracked,omitempty"`
}

// Tools executes the exercise lookup tools against the catalog. The
// same filter functions back both the Genkit registrations (so the
// model can call them) and the session's own pass-2 execution.
type Tools struct {
	catalog *catalog.Catalog
}

// NewTools creates the tool executor.
func NewTools(cat *catalog.Catalog) *Tools {
	return &Tools{catalog: cat}
}

// Register defines the three tools on the Genkit instance and returns
// their references for ai.WithTools.
func (t *Tools) Register(g *genkit.Genkit) []ai.ToolRef {
	strength := genkit.DefineTool(g, ToolStrengthExercises,
		"Fetch strength exercises from the catalog, optionally filtered by "+
			"muscle groups (chest, back, legs, shoulders, arms, core) and/or "+
			"movement patterns (horizontal_push, vertical_pull, hinge, squat, ...). "+
			"Call before proposing any strength work.",
		func(tc *ai.ToolContext, q StrengthQuery) ([]ExerciseRecord, error) {
			return t.StrengthExercises(tc.Context, q)
		})
	cardio := genkit.DefineTool(g, ToolCardioExercises,
		"Fetch cardio exercises, optionally filtered by base movement (run, row, cycle, ...).",
		func(tc *ai.ToolContext, q CardioQuery) ([]ExerciseRecord, error) {
			return t.CardioExercises(tc.Context, q)
		})
	mobility := genkit.DefineTool(g, ToolMobilityExercises,
		"Fetch mobility exercises, optionally filtered by target areas (hips, shoulders, ...).",
		func(tc *ai.ToolContext, q MobilityQuery) ([]ExerciseRecord, error) {
			return t.MobilityExercises(tc.Context, q)
		})
	return []ai.ToolRef{strength, cardio, mobility}
}

// StrengthExercises returns strength catalog rows matching the query.
func (t *Tools) StrengthExercises(ctx context.Context, q StrengthQuery) ([]ExerciseRecord, error) {
	defs, err := t.catalog.ByType(ctx, model.ExerciseStrength)
	if err != nil {
		return nil, err
	}
	out := []ExerciseRecord{}
	for _, d := range defs {
		if !matchesMuscles(d.PrimaryMuscles, q.MuscleGroups) {
			continue
		}
		if !matchesAny(d.MovementPattern, q.MovementPatterns) {
			continue
		}
		out = append(out, ExerciseRecord{
			ID:              d.ID,
			StandardName:    d.StandardName,
			PrimaryMuscles:  d.PrimaryMuscles,
			MovementPattern: d.MovementPattern,
		})
	}
	return out, nil
}

// CardioExercises returns cardio catalog rows matching the query.
func (t *Tools) CardioExercises(ctx context.Context, q CardioQuery) ([]ExerciseRecord, error) {
	defs, err := t.catalog.ByType(ctx, model.ExerciseCardio)
	if err != nil {
		return nil, err
	}
	out := []ExerciseRecord{}
	for _, d := range defs {
		if q.BaseMovement != "" && !strings.EqualFold(d.BaseMovement, q.BaseMovement) {
			continue
		}
		out = append(out, ExerciseRecord{
			ID:             d.ID,
			StandardName:   d.StandardName,
			PrimaryMuscles: d.PrimaryMuscles,
			BaseMovement:   d.BaseMovement,
		})
	}
	return out, nil
}

// MobilityExercises returns mobility catalog rows matching the query.
func (t *Tools) MobilityExercises(ctx context.Context, q MobilityQuery) ([]ExerciseRecord, error) {
	defs, err := t.catalog.ByType(ctx, model.ExerciseMobility)
	if err != nil {
		return nil, err
	}
	out := []ExerciseRecord{}
	for _, d := range defs {
		if !matchesMuscles(d.PrimaryMuscles, q.TargetAreas) {
			continue
		}
		out = append(out, ExerciseRecord{
			ID:             d.ID,
			StandardName:   d.StandardName,
			PrimaryMuscles: d.PrimaryMuscles,
		})
	}
	return out, nil
}

// matchesMuscles reports whether any primary muscle, or its folded
// muscle group, matches any filter value. Empty filters match all.
func matchesMuscles(muscles, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, m := range muscles {
			if strings.EqualFold(m, f) || strings.EqualFold(catalog.MuscleGroupFor(m), f) {
				return true
			}
		}
	}
	return false
}

// matchesAny reports whether value matches any filter, case-insensitive.
// Empty filters match all.
func matchesAny(value string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.EqualFold(value, f) {
			return true
		}
	}
	return false
}

// Execute runs one buffered tool request from pass 1. The input is the
// raw JSON-ish map genkit parsed from the model; it is re-decoded into
// the tool's typed query.
func (t *Tools) Execute(ctx context.Context, name string, input any) ([]ExerciseRecord, error) {
	switch name {
	case ToolStrengthExercises:
		var q StrengthQuery
		if err := decodeInput(input, &q); err != nil {
			return nil, err
		}
		return t.StrengthExercises(ctx, q)
	case ToolCardioExercises:
		var q CardioQuery
		if err := decodeInput(input, &q); err != nil {
			return nil, err
		}
		return t.CardioExercises(ctx, q)
	case ToolMobilityExercises:
		var q MobilityQuery
		if err := decodeInput(input, &q); err != nil {
			return nil, err
		}
		return t.MobilityExercises(ctx, q)
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

// decodeInput re-marshals a loosely-typed tool input into the typed
// query struct.
func decodeInput(input any, out any) error {
	if input == nil {
		return nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding tool input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding tool input: %w", err)
	}
	return nil
}

// renderAvailableExercises builds the available_exercises prompt
// section from deduplicated tool results: strength grouped by movement
// pattern, cardio and mobility flat.
func renderAvailableExercises(byTool map[string][]ExerciseRecord) string {
	var sb strings.Builder

	if strength := byTool[ToolStrengthExercises]; len(strength) > 0 {
		sb.WriteString("STRENGTH:\n")
		byPattern := map[string][]ExerciseRecord{}
		patterns := []string{}
		for _, r := range strength {
			p := r.MovementPattern
			if p == "" {
				p = "other"
			}
			if _, seen := byPattern[p]; !seen {
				patterns = append(patterns, p)
			}
			byPattern[p] = append(byPattern[p], r)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(&sb, "  %s:\n", p)
			for _, r := range byPattern[p] {
				writeExerciseLine(&sb, "    ", r)
			}
		}
	}
	if cardio := byTool[ToolCardioExercises]; len(cardio) > 0 {
		sb.WriteString("CARDIO:\n")
		for _, r := range cardio {
			writeExerciseLine(&sb, "  ", r)
		}
	}
	if mobility := byTool[ToolMobilityExercises]; len(mobility) > 0 {
		sb.WriteString("MOBILITY:\n")
		for _, r := range mobility {
			writeExerciseLine(&sb, "  ", r)
		}
	}
	return sb.String()
}

func writeExerciseLine(sb *strings.Builder, indent string, r ExerciseRecord) {
	fmt.Fprintf(sb, "%s- %s (id: %s, muscles: %s)",
		indent, r.StandardName, r.ID, strings.Join(r.PrimaryMuscles, ", "))
	if r.LastTracked != nil {
		fmt.Fprintf(sb, " Last: %dx%.1f (%s)", r.LastTracked.Reps, r.LastTracked.WeightKg, r.LastTracked.Date)
	}
	sb.WriteString("\n")
}
