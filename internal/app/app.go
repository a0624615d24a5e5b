package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of pgxpool.Pool the app uses. Tests inject pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultLockTTL is how long an orphaned slot lock may linger before the
// sweep reclaims it.
const DefaultLockTTL = 15 * time.Minute

type App struct {
	DB       DB
	Calendar CalendarAPI // nil when calendar credentials are not configured
	CRM      CRM         // nil when CRM sync is not configured
	Log      *zap.Logger

	// ManageSecret signs the per-booking manage tokens handed to visitors.
	ManageSecret []byte

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	// LockTTL overrides DefaultLockTTL when positive.
	LockTTL time.Duration
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) lockTTL() time.Duration {
	if a.LockTTL > 0 {
		return a.LockTTL
	}
	return DefaultLockTTL
}

func (a *App) log() *zap.Logger {
	if a.Log != nil {
		return a.Log
	}
	return zap.NewNop()
}
