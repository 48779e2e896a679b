package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/repwise/repwise/internal/log"
	"github.com/repwise/repwise/internal/model"
)

type fakeLoader struct {
	defs  []model.ExerciseDefinition
	err   error
	calls int
}

func (f *fakeLoader) ExerciseDefinitions(_ context.Context) ([]model.ExerciseDefinition, error) {
	f.calls++
	return f.defs, f.err
}

func testDefs() []model.ExerciseDefinition {
	return []model.ExerciseDefinition{
		{ID: uuid.New(), StandardName: "Barbell Bench Press", Type: model.ExerciseStrength, PrimaryMuscles: []string{"chest", "triceps"}},
		{ID: uuid.New(), StandardName: "Running", Type: model.ExerciseCardio, PrimaryMuscles: []string{"heart"}},
		{ID: uuid.New(), StandardName: "Couch Stretch", Type: model.ExerciseMobility, PrimaryMuscles: []string{"hip_flexors"}},
	}
}

func TestCatalogLoadsOnce(t *testing.T) {
	loader := &fakeLoader{defs: testDefs()}
	c := New(loader, log.NewNop())
	ctx := context.Background()

	for range 3 {
		all, err := c.All(ctx)
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if got, want := len(all), 3; got != want {
			t.Fatalf("len(All) = %d, want %d", got, want)
		}
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times, want 1", loader.calls)
	}
}

func TestCatalogByType(t *testing.T) {
	loader := &fakeLoader{defs: testDefs()}
	c := New(loader, log.NewNop())

	cardio, err := c.ByType(context.Background(), model.ExerciseCardio)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if len(cardio) != 1 || cardio[0].StandardName != "Running" {
		t.Errorf("ByType(cardio) = %+v, want [Running]", cardio)
	}
}

func TestCatalogByID(t *testing.T) {
	defs := testDefs()
	c := New(&fakeLoader{defs: defs}, log.NewNop())
	ctx := context.Background()

	got, ok, err := c.ByID(ctx, defs[0].ID)
	if err != nil || !ok {
		t.Fatalf("ByID known = (%v, %v), want hit", ok, err)
	}
	if got.StandardName != defs[0].StandardName {
		t.Errorf("ByID name = %q, want %q", got.StandardName, defs[0].StandardName)
	}

	_, ok, err = c.ByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("ByID unknown: %v", err)
	}
	if ok {
		t.Error("ByID unknown id reported found")
	}
}

func TestCatalogInvalidateReloads(t *testing.T) {
	loader := &fakeLoader{defs: testDefs()}
	c := New(loader, log.NewNop())
	ctx := context.Background()

	if _, err := c.All(ctx); err != nil {
		t.Fatalf("All: %v", err)
	}
	c.Invalidate()
	if _, err := c.All(ctx); err != nil {
		t.Fatalf("All after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Errorf("loader called %d times, want 2", loader.calls)
	}
}

func TestCatalogLoadError(t *testing.T) {
	wantErr := errors.New("db down")
	c := New(&fakeLoader{err: wantErr}, log.NewNop())

	if _, err := c.All(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("All error = %v, want wrapped %v", err, wantErr)
	}
}

func TestMuscleGroupFor(t *testing.T) {
	tests := []struct {
		muscle string
		want   string
	}{
		{"chest", GroupChest},
		{"Chest", GroupChest},
		{" lats ", GroupBack},
		{"quads", GroupLegs},
		{"rear_delts", GroupShoulders},
		{"biceps", GroupArms},
		{"obliques", GroupCore},
		{"heart", GroupCardio},
		{"mystery_muscle", GroupOther},
		{"", GroupOther},
	}
	for _, tt := range tests {
		if got := MuscleGroupFor(tt.muscle); got != tt.want {
			t.Errorf("MuscleGroupFor(%q) = %q, want %q", tt.muscle, got, tt.want)
		}
	}
}
