package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/repwise/repwise/internal/model"
)

// Profile retrieves a user profile by auth user id.
func (s *Store) Profile(ctx context.Context, scope Scope, userID uuid.UUID) (*model.UserProfile, error) {
	if !scope.allows(userID) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrScopeViolation)
	}

	var p model.UserProfile
	err := s.db.QueryRow(ctx, `
		SELECT auth_user_uuid, first_name, date_of_birth, age, is_imperial,
		       permission_level, height_cm, weight_kg, created_at
		FROM user_profiles
		WHERE auth_user_uuid = $1
	`, userID).Scan(
		&p.AuthUserUUID, &p.FirstName, &p.DateOfBirth, &p.Age, &p.IsImperial,
		&p.PermissionLevel, &p.HeightCm, &p.WeightKg, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("querying profile %s: %w", userID, err)
	}
	return &p, nil
}

// CreateProfile inserts a new profile. Profiles are created once at
// signup and only mutated by their owner.
func (s *Store) CreateProfile(ctx context.Context, scope Scope, p *model.UserProfile) error {
	if !scope.allows(p.AuthUserUUID) {
		return fmt.Errorf("create profile %s: %w", p.AuthUserUUID, ErrScopeViolation)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO user_profiles
			(auth_user_uuid, first_name, date_of_birth, age, is_imperial,
			 permission_level, height_cm, weight_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.AuthUserUUID, p.FirstName, p.DateOfBirth, p.Age, p.IsImperial,
		p.PermissionLevel, p.HeightCm, p.WeightKg)
	if err != nil {
		return fmt.Errorf("creating profile %s: %w", p.AuthUserUUID, err)
	}

	s.logger.Debug("created profile", "user_id", p.AuthUserUUID)
	return nil
}

// ExerciseDefinitions lists the full static exercise catalog.
func (s *Store) ExerciseDefinitions(ctx context.Context) ([]model.ExerciseDefinition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, standard_name, exercise_type, movement_pattern, primary_muscles, base_movement
		FROM exercise_definitions
		ORDER BY standard_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying exercise definitions: %w", err)
	}
	defer rows.Close()

	var defs []model.ExerciseDefinition
	for rows.Next() {
		var d model.ExerciseDefinition
		var pattern, base *string
		if err := rows.Scan(&d.ID, &d.StandardName, &d.Type, &pattern, &d.PrimaryMuscles, &base); err != nil {
			return nil, fmt.Errorf("scanning exercise definition: %w", err)
		}
		if pattern != nil {
			d.MovementPattern = *pattern
		}
		if base != nil {
			d.BaseMovement = *base
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exercise definitions: %w", err)
	}
	return defs, nil
}
