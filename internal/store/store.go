// Package store provides typed persistence over PostgreSQL for the
// repwise conversation core: profiles, workouts, context bundles and
// conversations.
//
// Every operation takes a Scope. A user scope restricts reads and
// writes to rows owned by that user; the admin scope is used by
// background jobs (bundle regeneration, memory extraction) and is the
// only scope allowed to mutate bundle memory.
//
// No panics cross the store boundary; all operations return errors,
// wrapped with context.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrScopeViolation indicates a user scope tried to touch rows it
	// does not own.
	ErrScopeViolation = errors.New("scope violation")

	// ErrAdminOnly indicates the operation requires the admin scope.
	ErrAdminOnly = errors.New("admin scope required")
)

// Scope identifies the caller for row-level access decisions.
// The zero value is unusable; construct via UserScope or AdminScope.
type Scope struct {
	admin  bool
	userID uuid.UUID
}

// UserScope returns a scope restricted to rows owned by userID.
func UserScope(userID uuid.UUID) Scope {
	return Scope{userID: userID}
}

// AdminScope returns the unrestricted scope used by background jobs.
func AdminScope() Scope {
	return Scope{admin: true}
}

// IsAdmin reports whether the scope bypasses ownership checks.
func (s Scope) IsAdmin() bool { return s.admin }

// allows reports whether the scope may access rows owned by owner.
func (s Scope) allows(owner uuid.UUID) bool {
	return s.admin || s.userID == owner
}

// DB is the subset of pgxpool.Pool the store depends on.
// Following Go best practices: interfaces are defined by the consumer,
// not the provider. This keeps the store testable against fakes.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages persistence with a PostgreSQL backend.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger

	// now is the clock used for time-window queries. Tests override it;
	// production code leaves it at time.Now.
	now func() time.Time
}

// New creates a Store. logger may be nil (defaults to slog.Default()).
//
// Example:
//
//	st := store.New(pool, logger.With("component", "store"))
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Open connects a pgx pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
