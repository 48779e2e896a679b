package model

import (
	"time"

	"github.com/google/uuid"
)

// BundleStatus is the lifecycle state of a UserContextBundle.
type BundleStatus string

const (
	BundlePending    BundleStatus = "pending"
	BundleProcessing BundleStatus = "processing"
	BundleComplete   BundleStatus = "complete"
	BundleFailed     BundleStatus = "failed"
)

// NoteCategory classifies a long-term memory note.
type NoteCategory string

const (
	NoteGoal                NoteCategory = "goal"
	NoteInjury              NoteCategory = "injury"
	NotePreference          NoteCategory = "preference"
	NoteEquipment           NoteCategory = "equipment"
	NoteNutrition           NoteCategory = "nutrition"
	NoteRecovery            NoteCategory = "recovery"
	NoteGeneral             NoteCategory = "general"
	NoteConversationSummary NoteCategory = "conversation_summary"
)

// MemoryNote is one dated fact about the user. Date is an ISO date
// string (YYYY-MM-DD), matching what the extraction LLM emits.
type MemoryNote struct {
	Text     string       `json:"text"`
	Date     string       `json:"date"`
	Category NoteCategory `json:"category"`
}

// AIMemory is the long-term memory subtree stored inside a complete
// bundle. It is the only field mutable after completion.
type AIMemory struct {
	Notes []MemoryNote `json:"notes"`
}

// BundleMetadata describes how the bundle was produced. Errors collects
// per-section failures; a failed section is emitted in its empty form.
type BundleMetadata struct {
	BundleType string   `json:"bundle_type"`
	DataWindow string   `json:"data_window"`
	Errors     []string `json:"errors,omitempty"`
}

// DateRange bounds the workouts included in a bundle.
type DateRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// GeneralWorkoutData summarizes the full fetched window.
// ExerciseFrequency counts sets per exercise name, not occurrences.
type GeneralWorkoutData struct {
	TotalWorkouts       int            `json:"total_workouts"`
	UniqueExerciseCount int            `json:"unique_exercise_count"`
	DateRange           *DateRange     `json:"date_range,omitempty"`
	ExercisesIncluded   []string       `json:"exercises_included"`
	ExerciseFrequency   map[string]int `json:"exercise_frequency"`
}

// SeriesPoint is one (date, value) sample of a per-exercise series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// VolumeData holds per-exercise volume series plus totals. Volume for a
// set is weight*reps; missing weight or reps contributes 0.
type VolumeData struct {
	TotalVolumeKg float64                  `json:"total_volume_kg"`
	TodayVolumeKg float64                  `json:"today_volume_kg"`
	ByExercise    map[string][]SeriesPoint `json:"by_exercise"`
}

// StrengthData holds per-exercise best-e1RM series, chronological.
type StrengthData struct {
	ByExercise map[string][]SeriesPoint `json:"by_exercise"`
}

// ConsistencyData summarizes workout spacing. Variance is the
// population variance of day gaps, nil when fewer than 3 workouts.
type ConsistencyData struct {
	AvgDaysBetween *float64 `json:"avg_days_between,omitempty"`
	Variance       *float64 `json:"variance,omitempty"`
}

// MuscleGroupShare is one muscle group's share of training volume.
// Percentages are computed over muscle-set instances (each primary
// muscle of each set counts once), not raw sets: a compound lift
// contributes to every primary muscle it hits.
type MuscleGroupShare struct {
	Group      string  `json:"group"`
	Percentage float64 `json:"percentage"`
}

// MuscleGroupBalance reports distribution across coarse muscle groups.
// TotalSets is the raw set count for human-facing display.
type MuscleGroupBalance struct {
	TotalSets    int                `json:"total_sets"`
	Distribution []MuscleGroupShare `json:"distribution"`
}

// UserContextBundle is the precomputed snapshot of a user's training
// state, regenerated after every workout write. At most one complete
// bundle per user is retained; older completes are pruned on write.
type UserContextBundle struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Status    BundleStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`

	Metadata           *BundleMetadata     `json:"metadata,omitempty"`
	GeneralWorkoutData *GeneralWorkoutData `json:"general_workout_data,omitempty"`
	RecentWorkouts     []Workout           `json:"recent_workouts,omitempty"`
	VolumeData         *VolumeData         `json:"volume_data,omitempty"`
	StrengthData       *StrengthData       `json:"strength_data,omitempty"`
	ConsistencyData    *ConsistencyData    `json:"consistency_data,omitempty"`
	MuscleGroupBalance *MuscleGroupBalance `json:"muscle_group_balance,omitempty"`
	AIMemory           *AIMemory           `json:"ai_memory,omitempty"`

	// ErrorMessage is set when Status is failed.
	ErrorMessage string `json:"error_message,omitempty"`
}
