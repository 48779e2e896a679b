package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/repwise/repwise/internal/model"
)

// bundlePayload is the jsonb subtree persisted with a bundle row.
// Lifecycle columns (id, user, status, created_at, error_message) live
// as columns; everything the coach reads lives here.
type bundlePayload struct {
	Metadata           *model.BundleMetadata     `json:"metadata,omitempty"`
	GeneralWorkoutData *model.GeneralWorkoutData `json:"general_workout_data,omitempty"`
	RecentWorkouts     []model.Workout           `json:"recent_workouts,omitempty"`
	VolumeData         *model.VolumeData         `json:"volume_data,omitempty"`
	StrengthData       *model.StrengthData       `json:"strength_data,omitempty"`
	ConsistencyData    *model.ConsistencyData    `json:"consistency_data,omitempty"`
	MuscleGroupBalance *model.MuscleGroupBalance `json:"muscle_group_balance,omitempty"`
	AIMemory           *model.AIMemory           `json:"ai_memory,omitempty"`
}

func payloadOf(b *model.UserContextBundle) bundlePayload {
	return bundlePayload{
		Metadata:           b.Metadata,
		GeneralWorkoutData: b.GeneralWorkoutData,
		RecentWorkouts:     b.RecentWorkouts,
		VolumeData:         b.VolumeData,
		StrengthData:       b.StrengthData,
		ConsistencyData:    b.ConsistencyData,
		MuscleGroupBalance: b.MuscleGroupBalance,
		AIMemory:           b.AIMemory,
	}
}

func (p bundlePayload) applyTo(b *model.UserContextBundle) {
	b.Metadata = p.Metadata
	b.GeneralWorkoutData = p.GeneralWorkoutData
	b.RecentWorkouts = p.RecentWorkouts
	b.VolumeData = p.VolumeData
	b.StrengthData = p.StrengthData
	b.ConsistencyData = p.ConsistencyData
	b.MuscleGroupBalance = p.MuscleGroupBalance
	b.AIMemory = p.AIMemory
}

// InsertPendingBundle creates a new bundle row with status=pending and
// returns its id.
func (s *Store) InsertPendingBundle(ctx context.Context, scope Scope, userID uuid.UUID) (uuid.UUID, error) {
	if !scope.allows(userID) {
		return uuid.Nil, fmt.Errorf("insert bundle for %s: %w", userID, ErrScopeViolation)
	}

	id := uuid.New()
	if _, err := s.db.Exec(ctx, `
		INSERT INTO user_context_bundles (id, user_id, status)
		VALUES ($1, $2, $3)
	`, id, userID, model.BundlePending); err != nil {
		return uuid.Nil, fmt.Errorf("inserting pending bundle: %w", err)
	}

	s.logger.Debug("inserted pending bundle", "bundle_id", id, "user_id", userID)
	return id, nil
}

// SetBundleStatus transitions a bundle's lifecycle status.
func (s *Store) SetBundleStatus(ctx context.Context, scope Scope, bundleID uuid.UUID, status model.BundleStatus) error {
	if !scope.IsAdmin() {
		return fmt.Errorf("set bundle status: %w", ErrAdminOnly)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE user_context_bundles SET status = $2 WHERE id = $1
	`, bundleID, status)
	if err != nil {
		return fmt.Errorf("updating bundle %s status: %w", bundleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bundle %s: %w", bundleID, ErrNotFound)
	}
	return nil
}

// FailBundle marks a bundle failed with an explanatory message. The row
// is left in place for observability.
func (s *Store) FailBundle(ctx context.Context, scope Scope, bundleID uuid.UUID, message string) error {
	if !scope.IsAdmin() {
		return fmt.Errorf("fail bundle: %w", ErrAdminOnly)
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE user_context_bundles SET status = $2, error_message = $3 WHERE id = $1
	`, bundleID, model.BundleFailed, message); err != nil {
		return fmt.Errorf("failing bundle %s: %w", bundleID, err)
	}
	return nil
}

// CompleteBundle persists the processed payload, marks the bundle
// complete, and prunes all other complete bundles of the same user in
// the same transaction. At most one complete bundle per user survives.
func (s *Store) CompleteBundle(ctx context.Context, scope Scope, b *model.UserContextBundle) error {
	if !scope.IsAdmin() {
		return fmt.Errorf("complete bundle: %w", ErrAdminOnly)
	}

	payload, err := json.Marshal(payloadOf(b))
	if err != nil {
		return fmt.Errorf("marshaling bundle payload: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE user_context_bundles SET status = $2, payload = $3 WHERE id = $1
	`, b.ID, model.BundleComplete, payload)
	if err != nil {
		return fmt.Errorf("completing bundle %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bundle %s: %w", b.ID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM user_context_bundles
		WHERE user_id = $1 AND status = $2 AND id <> $3
	`, b.UserID, model.BundleComplete, b.ID); err != nil {
		return fmt.Errorf("pruning older bundles for %s: %w", b.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing bundle %s: %w", b.ID, err)
	}

	b.Status = model.BundleComplete
	s.logger.Debug("completed bundle", "bundle_id", b.ID, "user_id", b.UserID)
	return nil
}

// LatestCompleteBundle returns the newest complete bundle for a user,
// or (nil, nil) when the user has none yet.
func (s *Store) LatestCompleteBundle(ctx context.Context, scope Scope, userID uuid.UUID) (*model.UserContextBundle, error) {
	if !scope.allows(userID) {
		return nil, fmt.Errorf("latest bundle for %s: %w", userID, ErrScopeViolation)
	}

	var (
		b       model.UserContextBundle
		raw     []byte
		errMsg  *string
		payload bundlePayload
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, status, payload, error_message, created_at
		FROM user_context_bundles
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, model.BundleComplete).Scan(&b.ID, &b.UserID, &b.Status, &raw, &errMsg, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest bundle for %s: %w", userID, err)
	}
	if errMsg != nil {
		b.ErrorMessage = *errMsg
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("unmarshaling bundle %s payload: %w", b.ID, err)
		}
		payload.applyTo(&b)
	}
	return &b, nil
}

// UpdateAIMemory overwrites the memory subtree of a bundle atomically.
// Admin-scoped: memory is the only field mutable after completion, and
// only background jobs write it.
func (s *Store) UpdateAIMemory(ctx context.Context, scope Scope, bundleID uuid.UUID, memory *model.AIMemory) error {
	if !scope.IsAdmin() {
		return fmt.Errorf("update ai memory: %w", ErrAdminOnly)
	}

	raw, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("marshaling memory: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE user_context_bundles
		SET payload = jsonb_set(COALESCE(payload, '{}'::jsonb), '{ai_memory}', $2::jsonb, true)
		WHERE id = $1
	`, bundleID, raw)
	if err != nil {
		return fmt.Errorf("updating ai memory on %s: %w", bundleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bundle %s: %w", bundleID, ErrNotFound)
	}

	s.logger.Debug("updated ai memory", "bundle_id", bundleID, "notes", len(memory.Notes))
	return nil
}

// AppendAIMemory appends notes to a bundle's memory atomically without
// rewriting existing notes. Admin-scoped.
func (s *Store) AppendAIMemory(ctx context.Context, scope Scope, bundleID uuid.UUID, notes []model.MemoryNote) error {
	if !scope.IsAdmin() {
		return fmt.Errorf("append ai memory: %w", ErrAdminOnly)
	}
	if len(notes) == 0 {
		return nil
	}

	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshaling notes: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE user_context_bundles
		SET payload = jsonb_set(
			COALESCE(payload, '{}'::jsonb),
			'{ai_memory}',
			jsonb_build_object(
				'notes',
				COALESCE(payload #> '{ai_memory,notes}', '[]'::jsonb) || $2::jsonb
			),
			true
		)
		WHERE id = $1
	`, bundleID, raw)
	if err != nil {
		return fmt.Errorf("appending ai memory on %s: %w", bundleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bundle %s: %w", bundleID, ErrNotFound)
	}

	s.logger.Debug("appended ai memory", "bundle_id", bundleID, "notes", len(notes))
	return nil
}
