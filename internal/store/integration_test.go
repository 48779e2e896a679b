//go:build integration
// +build integration

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/log"
	"github.com/repwise/repwise/internal/model"
	"github.com/repwise/repwise/internal/store"
	"github.com/repwise/repwise/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	tdb := testutil.SetupTestDB(t)
	return store.New(tdb.Pool, log.NewNop())
}

func TestProfileLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	scope := store.UserScope(userID)

	age := 31
	weight := 82.5
	if err := st.CreateProfile(ctx, scope, &model.UserProfile{
		AuthUserUUID:    userID,
		FirstName:       "Dana",
		Age:             &age,
		WeightKg:        &weight,
		PermissionLevel: "user",
	}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	p, err := st.Profile(ctx, scope, userID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.FirstName != "Dana" || p.Age == nil || *p.Age != 31 {
		t.Errorf("profile = %+v, want Dana age 31", p)
	}

	if _, err := st.Profile(ctx, store.UserScope(uuid.New()), userID); !errors.Is(err, store.ErrScopeViolation) {
		t.Errorf("cross-user read error = %v, want ErrScopeViolation", err)
	}

	if _, err := st.Profile(ctx, store.AdminScope(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing profile error = %v, want ErrNotFound", err)
	}
}

func TestWorkoutRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	scope := store.UserScope(userID)

	reps := 5
	weight := 100.0
	w := &model.Workout{
		UserID: userID,
		Name:   "Push Day",
		Exercises: []model.WorkoutExercise{
			{
				Name:       "Barbell Bench Press",
				OrderIndex: 0,
				// Gappy client numbering; the store renumbers densely.
				Sets: []model.WorkoutSet{
					{SetNumber: 3, Reps: &reps, WeightKg: &weight},
					{SetNumber: 7, Reps: &reps, WeightKg: &weight},
				},
			},
		},
	}
	if err := st.CreateWorkout(ctx, scope, w); err != nil {
		t.Fatalf("CreateWorkout: %v", err)
	}
	if w.ID == uuid.Nil {
		t.Fatal("CreateWorkout must assign an id")
	}

	got, err := st.UserWorkouts(ctx, scope, userID, 30)
	if err != nil {
		t.Fatalf("UserWorkouts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("workouts = %d, want 1", len(got))
	}
	if len(got[0].Exercises) != 1 || len(got[0].Exercises[0].Sets) != 2 {
		t.Fatalf("workout shape = %+v, want 1 exercise with 2 sets", got[0])
	}
	for i, set := range got[0].Exercises[0].Sets {
		if set.SetNumber != i+1 {
			t.Errorf("set %d number = %d, want dense numbering from 1", i, set.SetNumber)
		}
	}
	set := got[0].Exercises[0].Sets[0]
	if set.EstimatedOneRM == nil || *set.EstimatedOneRM <= weight {
		t.Errorf("estimated 1RM = %v, want computed value above working weight", set.EstimatedOneRM)
	}

	if _, err := st.UserWorkouts(ctx, store.UserScope(uuid.New()), userID, 30); !errors.Is(err, store.ErrScopeViolation) {
		t.Errorf("cross-user read error = %v, want ErrScopeViolation", err)
	}
}

func TestBundleLifecyclePrunesOldComplete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	admin := store.AdminScope()

	complete := func() uuid.UUID {
		id, err := st.InsertPendingBundle(ctx, admin, userID)
		if err != nil {
			t.Fatalf("InsertPendingBundle: %v", err)
		}
		b := &model.UserContextBundle{
			ID:     id,
			UserID: userID,
			Metadata: &model.BundleMetadata{
				BundleType: "workout_analysis",
				DataWindow: "30d",
			},
		}
		if err := st.CompleteBundle(ctx, admin, b); err != nil {
			t.Fatalf("CompleteBundle: %v", err)
		}
		return id
	}

	first := complete()
	second := complete()

	latest, err := st.LatestCompleteBundle(ctx, store.UserScope(userID), userID)
	if err != nil {
		t.Fatalf("LatestCompleteBundle: %v", err)
	}
	if latest == nil || latest.ID != second {
		t.Fatalf("latest bundle = %+v, want id %s", latest, second)
	}
	if latest.Metadata == nil || latest.Metadata.BundleType != "workout_analysis" {
		t.Errorf("payload metadata = %+v, want round-tripped bundle type", latest.Metadata)
	}

	// The first complete bundle must be gone.
	if err := st.SetBundleStatus(ctx, admin, first, model.BundleComplete); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("touching pruned bundle error = %v, want ErrNotFound", err)
	}
}

func TestAIMemoryAppendAndOverwrite(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	admin := store.AdminScope()

	id, err := st.InsertPendingBundle(ctx, admin, userID)
	if err != nil {
		t.Fatalf("InsertPendingBundle: %v", err)
	}
	if err := st.CompleteBundle(ctx, admin, &model.UserContextBundle{ID: id, UserID: userID}); err != nil {
		t.Fatalf("CompleteBundle: %v", err)
	}

	// Append into a bundle that has no memory subtree yet.
	if err := st.AppendAIMemory(ctx, admin, id, []model.MemoryNote{
		{Text: "Did a session focused on squats", Date: "2025-06-15", Category: model.NoteConversationSummary},
	}); err != nil {
		t.Fatalf("AppendAIMemory: %v", err)
	}

	if err := st.UpdateAIMemory(ctx, admin, id, &model.AIMemory{Notes: []model.MemoryNote{
		{Text: "Left knee aches on deep squats", Date: "2025-06-01", Category: model.NoteInjury},
	}}); err != nil {
		t.Fatalf("UpdateAIMemory: %v", err)
	}

	b, err := st.LatestCompleteBundle(ctx, admin, userID)
	if err != nil {
		t.Fatalf("LatestCompleteBundle: %v", err)
	}
	if b.AIMemory == nil || len(b.AIMemory.Notes) != 1 {
		t.Fatalf("memory = %+v, want exactly the overwritten note", b.AIMemory)
	}
	if b.AIMemory.Notes[0].Category != model.NoteInjury {
		t.Errorf("note category = %q, want %q", b.AIMemory.Notes[0].Category, model.NoteInjury)
	}

	// Memory writes require the admin scope.
	if err := st.AppendAIMemory(ctx, store.UserScope(userID), id, []model.MemoryNote{{Text: "x"}}); !errors.Is(err, store.ErrAdminOnly) {
		t.Errorf("user-scoped memory write error = %v, want ErrAdminOnly", err)
	}
}

func TestConversationMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	conversationID := uuid.New()
	scope := store.UserScope(userID)

	c, err := st.GetOrCreateConversation(ctx, scope, conversationID, userID)
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if c.Status != model.ConversationActive {
		t.Errorf("status = %q, want active", c.Status)
	}

	// Idempotent on the same id.
	again, err := st.GetOrCreateConversation(ctx, scope, conversationID, userID)
	if err != nil {
		t.Fatalf("GetOrCreateConversation again: %v", err)
	}
	if again.ID != c.ID {
		t.Errorf("second call returned %s, want %s", again.ID, c.ID)
	}

	if err := st.AppendMessages(ctx, scope, conversationID, []model.Message{
		{Role: model.RoleUser, Content: "How heavy should I squat today?"},
		{Role: model.RoleAssistant, Content: "Work up to a comfortable triple."},
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	if err := st.AppendMessages(ctx, scope, conversationID, []model.Message{
		{Role: model.RoleUser, Content: "And for volume?"},
	}); err != nil {
		t.Fatalf("AppendMessages second batch: %v", err)
	}

	msgs, err := st.Messages(ctx, scope, conversationID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceNumber != i+1 {
			t.Errorf("message %d sequence = %d, want %d", i, m.SequenceNumber, i+1)
		}
	}

	if _, err := st.Messages(ctx, store.UserScope(uuid.New()), conversationID); !errors.Is(err, store.ErrScopeViolation) {
		t.Errorf("cross-user read error = %v, want ErrScopeViolation", err)
	}
}
