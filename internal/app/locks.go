package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// The slot lock ledger closes the check-then-act window between seeing a
// slot free and committing a booking to it. The unique constraint on
// (scheduled_date, scheduled_time) is the only synchronization primitive:
// concurrent acquirers race at the storage layer and exactly one wins,
// regardless of which handler instance served them.

// AcquireSlotLock claims (date, timeOfDay) for the booking. Returns
// ErrSlotConflict when another booking already holds the slot.
func (a *App) AcquireSlotLock(ctx context.Context, bookingID, date, timeOfDay string) error {
	_, err := a.DB.Exec(ctx,
		`INSERT INTO slot_locks (booking_id, scheduled_date, scheduled_time, created_at)
		 VALUES ($1, $2, $3, now())`,
		bookingID, date, timeOfDay)
	if isUniqueViolation(err) {
		return ErrSlotConflict
	}
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	return nil
}

// MoveSlotLock rewrites the booking's lock to a new slot in place, releasing
// the old (date, time) pair atomically. Returns ErrSlotConflict when the new
// slot is already claimed. A missing row (reaped orphan) is re-acquired.
func (a *App) MoveSlotLock(ctx context.Context, bookingID, newDate, newTime string) error {
	tag, err := a.DB.Exec(ctx,
		`UPDATE slot_locks SET scheduled_date = $2, scheduled_time = $3, created_at = now()
		 WHERE booking_id = $1`,
		bookingID, newDate, newTime)
	if isUniqueViolation(err) {
		return ErrSlotConflict
	}
	if err != nil {
		return fmt.Errorf("move slot lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return a.AcquireSlotLock(ctx, bookingID, newDate, newTime)
	}
	return nil
}

// ReleaseSlotLock drops the booking's lock. Idempotent: releasing an absent
// lock is a no-op.
func (a *App) ReleaseSlotLock(ctx context.Context, bookingID string) error {
	_, err := a.DB.Exec(ctx, `DELETE FROM slot_locks WHERE booking_id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// ListLockedTimes returns the slot times claimed on a date. Used only to
// hide in-flight slots from browsing visitors; the acquire-time constraint
// remains the real guarantee.
func (a *App) ListLockedTimes(ctx context.Context, date string) (map[string]bool, error) {
	rows, err := a.DB.Query(ctx,
		`SELECT to_char(scheduled_time, 'HH24:MI') FROM slot_locks WHERE scheduled_date = $1`,
		date)
	if err != nil {
		return nil, fmt.Errorf("list locked times: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out[t] = true
	}
	return out, nil
}

// ReapStaleLocks deletes locks older than ttl with no live booking behind
// them. A request that died mid-flow leaves such an orphan; without the
// sweep it would block its slot forever.
func (a *App) ReapStaleLocks(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := a.now().Add(-ttl).UTC()
	tag, err := a.DB.Exec(ctx,
		`DELETE FROM slot_locks l
		 WHERE l.created_at < $1
		   AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.id = l.booking_id AND b.status IN ('pending','confirmed')
		   )`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
