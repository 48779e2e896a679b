// Package model defines the persistent entities shared across the
// repwise conversation core: user profiles, workouts, exercise
// definitions, context bundles and conversations.
//
// Entities are plain structs; they never embed loaders or cross-entity
// references beyond ids. The session layer assembles the view.
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile is keyed by the auth user id. IsImperial is the source of
// truth for display units.
type UserProfile struct {
	AuthUserUUID    uuid.UUID  `json:"auth_user_uuid"`
	FirstName       string     `json:"first_name"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	Age             *int       `json:"age,omitempty"`
	IsImperial      bool       `json:"is_imperial"`
	PermissionLevel string     `json:"permission_level"`
	HeightCm        *float64   `json:"height_cm,omitempty"`
	WeightKg        *float64   `json:"weight_kg,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ExerciseType classifies an exercise definition.
type ExerciseType string

const (
	ExerciseStrength ExerciseType = "strength"
	ExerciseCardio   ExerciseType = "cardio"
	ExerciseMobility ExerciseType = "mobility"
)

// ExerciseDefinition is a static catalog row. Treated as read-only and
// cache-resident after load.
type ExerciseDefinition struct {
	ID              uuid.UUID    `json:"id"`
	StandardName    string       `json:"standard_name"`
	Type            ExerciseType `json:"type"`
	MovementPattern string       `json:"movement_pattern,omitempty"`
	PrimaryMuscles  []string     `json:"primary_muscles"`
	BaseMovement    string       `json:"base_movement,omitempty"`
}

// WorkoutSet is one set of a workout exercise. EstimatedOneRM is
// computed at write time from (weight, reps) so reads stay cheap.
type WorkoutSet struct {
	ID             uuid.UUID `json:"id"`
	SetNumber      int       `json:"set_number"`
	WeightKg       *float64  `json:"weight_kg,omitempty"`
	Reps           *int      `json:"reps,omitempty"`
	RPE            *float64  `json:"rpe,omitempty"`
	DistanceM      *float64  `json:"distance_m,omitempty"`
	DurationS      *float64  `json:"duration_s,omitempty"`
	EstimatedOneRM *float64  `json:"estimated_1rm,omitempty"`
}

// WorkoutExercise references an ExerciseDefinition by id and carries a
// name snapshot. Sets are densely numbered from 1; OrderIndex is unique
// within a workout.
type WorkoutExercise struct {
	ID                   uuid.UUID    `json:"id"`
	ExerciseDefinitionID *uuid.UUID   `json:"exercise_definition_id,omitempty"`
	Name                 string       `json:"name"`
	OrderIndex           int          `json:"order_index"`
	Notes                string       `json:"notes,omitempty"`
	Sets                 []WorkoutSet `json:"sets"`
}

// Workout is a single training session owned by one user.
type Workout struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Name      string            `json:"name"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Exercises []WorkoutExercise `json:"exercises"`
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationDeleted ConversationStatus = "deleted"
)

// Conversation holds an ordered message sequence for one user.
type Conversation struct {
	ID         uuid.UUID          `json:"id"`
	UserID     uuid.UUID          `json:"user_id"`
	Title      string             `json:"title,omitempty"`
	ConfigName string             `json:"config_name"`
	Status     ConversationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a conversation with a stable sequence number.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	SequenceNumber int         `json:"sequence_number"`
	CreatedAt      time.Time   `json:"created_at"`
}
