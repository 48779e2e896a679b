package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/model"
)

// UserWorkouts fetches all workouts for a user created within the last
// daysBack days, with exercises and sets, in a single joined query.
// Workouts are sorted by creation time descending; exercises by order
// index; sets by set number.
func (s *Store) UserWorkouts(ctx context.Context, scope Scope, userID uuid.UUID, daysBack int) ([]model.Workout, error) {
	if !scope.allows(userID) {
		return nil, fmt.Errorf("workouts for %s: %w", userID, ErrScopeViolation)
	}

	since := s.now().AddDate(0, 0, -daysBack)
	rows, err := s.db.Query(ctx, `
		SELECT w.id, w.user_id, w.name, w.notes, w.created_at,
		       we.id, we.exercise_definition_id, we.name, we.order_index, we.notes,
		       ws.id, ws.set_number, ws.weight_kg, ws.reps, ws.rpe,
		       ws.distance_m, ws.duration_s, ws.estimated_1rm
		FROM workouts w
		LEFT JOIN workout_exercises we ON we.workout_id = w.id
		LEFT JOIN workout_sets ws ON ws.workout_exercise_id = we.id
		WHERE w.user_id = $1 AND w.created_at >= $2
		ORDER BY w.created_at DESC, we.order_index ASC, ws.set_number ASC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying workouts for %s: %w", userID, err)
	}
	defer rows.Close()

	var (
		workouts []model.Workout
		curW     *model.Workout
		curE     *model.WorkoutExercise
	)
	flushExercise := func() {
		if curW != nil && curE != nil {
			curW.Exercises = append(curW.Exercises, *curE)
			curE = nil
		}
	}
	flushWorkout := func() {
		flushExercise()
		if curW != nil {
			workouts = append(workouts, *curW)
			curW = nil
		}
	}

	for rows.Next() {
		var (
			w        model.Workout
			wNotes   *string
			exID     *uuid.UUID
			exDefID  *uuid.UUID
			exName   *string
			exOrder  *int
			exNotes  *string
			setID    *uuid.UUID
			setNum   *int
			weightKg *float64
			reps     *int
			rpe      *float64
			distance *float64
			duration *float64
			e1rm     *float64
		)
		if err := rows.Scan(
			&w.ID, &w.UserID, &w.Name, &wNotes, &w.CreatedAt,
			&exID, &exDefID, &exName, &exOrder, &exNotes,
			&setID, &setNum, &weightKg, &reps, &rpe,
			&distance, &duration, &e1rm,
		); err != nil {
			return nil, fmt.Errorf("scanning workout row: %w", err)
		}
		if wNotes != nil {
			w.Notes = *wNotes
		}

		if curW == nil || curW.ID != w.ID {
			flushWorkout()
			curW = &w
		}
		if exID == nil {
			continue // workout with no exercises
		}
		if curE == nil || curE.ID != *exID {
			flushExercise()
			curE = &model.WorkoutExercise{
				ID:                   *exID,
				ExerciseDefinitionID: exDefID,
				Name:                 derefString(exName),
				OrderIndex:           derefInt(exOrder),
				Notes:                derefString(exNotes),
			}
		}
		if setID != nil {
			curE.Sets = append(curE.Sets, model.WorkoutSet{
				ID:             *setID,
				SetNumber:      derefInt(setNum),
				WeightKg:       weightKg,
				Reps:           reps,
				RPE:            rpe,
				DistanceM:      distance,
				DurationS:      duration,
				EstimatedOneRM: e1rm,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workout rows: %w", err)
	}
	flushWorkout()

	s.logger.Debug("fetched workouts", "user_id", userID, "days_back", daysBack, "count", len(workouts))
	return workouts, nil
}

// CreateWorkout inserts a workout with its exercises and sets in one
// transaction. Estimated 1RM is computed at write time for any set that
// carries weight and reps, so later reads stay cheap.
func (s *Store) CreateWorkout(ctx context.Context, scope Scope, w *model.Workout) error {
	if !scope.allows(w.UserID) {
		return fmt.Errorf("create workout for %s: %w", w.UserID, ErrScopeViolation)
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

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO workouts (id, user_id, name, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.UserID, w.Name, nullableString(w.Notes), w.CreatedAt); err != nil {
		return fmt.Errorf("inserting workout: %w", err)
	}

	normalizeSetNumbers(w.Exercises)

	for ei := range w.Exercises {
		ex := &w.Exercises[ei]
		if ex.ID == uuid.Nil {
			ex.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO workout_exercises (id, workout_id, exercise_definition_id, name, order_index, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ex.ID, w.ID, ex.ExerciseDefinitionID, ex.Name, ex.OrderIndex, nullableString(ex.Notes)); err != nil {
			return fmt.Errorf("inserting exercise %d: %w", ei, err)
		}

		for si := range ex.Sets {
			set := &ex.Sets[si]
			if set.ID == uuid.Nil {
				set.ID = uuid.New()
			}
			if set.EstimatedOneRM == nil && set.WeightKg != nil && set.Reps != nil {
				set.EstimatedOneRM = model.EstimateOneRM(*set.WeightKg, *set.Reps)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO workout_sets
					(id, workout_exercise_id, set_number, weight_kg, reps, rpe, distance_m, duration_s, estimated_1rm)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, set.ID, ex.ID, set.SetNumber, set.WeightKg, set.Reps, set.RPE,
				set.DistanceM, set.DurationS, set.EstimatedOneRM); err != nil {
				return fmt.Errorf("inserting set %d of exercise %d: %w", si, ei, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing workout: %w", err)
	}

	s.logger.Debug("created workout", "workout_id", w.ID, "user_id", w.UserID, "exercises", len(w.Exercises))
	return nil
}

// normalizeSetNumbers renumbers each exercise's sets to a dense 1..N
// sequence in slice order. Clients may send gaps or zeros; the slice
// order is authoritative.
func normalizeSetNumbers(exercises []model.WorkoutExercise) {
	for ei := range exercises {
		for si := range exercises[ei].Sets {
			exercises[ei].Sets[si].SetNumber = si + 1
		}
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
