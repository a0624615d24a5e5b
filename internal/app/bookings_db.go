package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, name, email, phone, company, notes,
	to_char(scheduled_date, 'YYYY-MM-DD'), to_char(scheduled_time, 'HH24:MI'),
	timezone, calendar_event_id, meeting_link,
	crm_contact_id, crm_deal_id, crm_meeting_id,
	status, is_test, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.Company, &b.Notes,
		&b.ScheduledDate, &b.ScheduledTime,
		&b.Timezone, &b.CalendarEventID, &b.MeetingLink,
		&b.CRMContactID, &b.CRMDealID, &b.CRMMeetingID,
		&b.Status, &b.IsTest, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (a *App) InsertBooking(ctx context.Context, b *Booking) error {
	now := time.Now().UTC()
	_, err := a.DB.Exec(ctx,
		`INSERT INTO bookings
		 (id, name, email, phone, company, notes,
		  scheduled_date, scheduled_time, timezone,
		  calendar_event_id, meeting_link,
		  crm_contact_id, crm_deal_id, crm_meeting_id,
		  status, is_test, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		b.ID, b.Name, b.Email, b.Phone, b.Company, b.Notes,
		b.ScheduledDate, b.ScheduledTime, b.Timezone,
		b.CalendarEventID, b.MeetingLink,
		b.CRMContactID, b.CRMDealID, b.CRMMeetingID,
		b.Status, b.IsTest, now, now)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (a *App) GetBooking(ctx context.Context, id string) (*Booking, error) {
	b, err := scanBooking(a.DB.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// SlotTaken reports whether any live booking other than excludeID already
// occupies the slot. This is the application-level guard layered on top of
// the lock constraint; the two rows are written in separate steps and can
// fail independently.
func (a *App) SlotTaken(ctx context.Context, date, timeOfDay, excludeID string) (bool, error) {
	var id string
	err := a.DB.QueryRow(ctx,
		`SELECT id FROM bookings
		 WHERE scheduled_date = $1 AND scheduled_time = $2
		   AND status IN ('pending','confirmed') AND id <> $3
		 LIMIT 1`,
		date, timeOfDay, excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return true, nil
}

// ListBookedTimes returns slot times held by live bookings on a date. Used
// for availability in test mode, where the calendar is not consulted.
func (a *App) ListBookedTimes(ctx context.Context, date string) (map[string]bool, error) {
	rows, err := a.DB.Query(ctx,
		`SELECT to_char(scheduled_time, 'HH24:MI') FROM bookings
		 WHERE scheduled_date = $1 AND status IN ('pending','confirmed')`,
		date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
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

func (a *App) UpdateBookingSlot(ctx context.Context, id, date, timeOfDay string) error {
	tag, err := a.DB.Exec(ctx,
		`UPDATE bookings SET scheduled_date = $2, scheduled_time = $3, updated_at = now()
		 WHERE id = $1`,
		id, date, timeOfDay)
	if err != nil {
		return fmt.Errorf("update booking slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (a *App) UpdateBookingStatus(ctx context.Context, id, status string) error {
	tag, err := a.DB.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ListBookings returns bookings ordered by slot, optionally restricted to a
// date range. Serves the admin surface.
func (a *App) ListBookings(ctx context.Context, fromDate, toDate string) ([]Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if fromDate != "" && toDate != "" {
		rows, err = a.DB.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings
			 WHERE scheduled_date >= $1 AND scheduled_date <= $2
			 ORDER BY scheduled_date, scheduled_time`,
			fromDate, toDate)
	} else {
		rows, err = a.DB.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings
			 ORDER BY scheduled_date, scheduled_time`)
	}
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}
