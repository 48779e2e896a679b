package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/repwise/repwise/internal/model"
)

// queryRecorder captures the SQL and arguments of Query calls and
// returns an empty result set.
type queryRecorder struct {
	sql  string
	args []any
}

func (q *queryRecorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	return emptyRows{}, nil
}

func (q *queryRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("QueryRow not expected")
}

func (q *queryRecorder) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("Exec not expected")
}

func (q *queryRecorder) Begin(context.Context) (pgx.Tx, error) {
	panic("Begin not expected")
}

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func TestUserWorkoutsWindowFromClock(t *testing.T) {
	fixed := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	rec := &queryRecorder{}
	st := New(rec, nil)
	st.now = func() time.Time { return fixed }

	userID := uuid.New()
	if _, err := st.UserWorkouts(context.Background(), UserScope(userID), userID, 30); err != nil {
		t.Fatalf("UserWorkouts() error = %v", err)
	}

	if len(rec.args) != 2 {
		t.Fatalf("query args = %d, want 2", len(rec.args))
	}
	since, ok := rec.args[1].(time.Time)
	if !ok {
		t.Fatalf("since arg type = %T, want time.Time", rec.args[1])
	}
	want := fixed.AddDate(0, 0, -30)
	if !since.Equal(want) {
		t.Errorf("window lower bound = %v, want %v", since, want)
	}
}

func TestNormalizeSetNumbers(t *testing.T) {
	sets := func(numbers ...int) []model.WorkoutSet {
		out := make([]model.WorkoutSet, len(numbers))
		for i, n := range numbers {
			out[i] = model.WorkoutSet{SetNumber: n}
		}
		return out
	}

	tests := []struct {
		name  string
		input []model.WorkoutExercise
		want  [][]int
	}{
		{
			name:  "zeros become dense",
			input: []model.WorkoutExercise{{Sets: sets(0, 0, 0)}},
			want:  [][]int{{1, 2, 3}},
		},
		{
			name:  "gaps closed in slice order",
			input: []model.WorkoutExercise{{Sets: sets(2, 5, 9)}},
			want:  [][]int{{1, 2, 3}},
		},
		{
			name: "each exercise numbered independently",
			input: []model.WorkoutExercise{
				{Sets: sets(1, 1)},
				{Sets: sets(7)},
			},
			want: [][]int{{1, 2}, {1}},
		},
		{
			name:  "no sets",
			input: []model.WorkoutExercise{{Sets: nil}},
			want:  [][]int{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalizeSetNumbers(tt.input)
			for ei, ex := range tt.input {
				if len(ex.Sets) != len(tt.want[ei]) {
					t.Fatalf("exercise %d has %d sets, want %d", ei, len(ex.Sets), len(tt.want[ei]))
				}
				for si, set := range ex.Sets {
					if set.SetNumber != tt.want[ei][si] {
						t.Errorf("exercise %d set %d number = %d, want %d", ei, si, set.SetNumber, tt.want[ei][si])
					}
				}
			}
		})
	}
}
