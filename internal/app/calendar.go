package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarAPI is the surface of the external calendar service the app
// depends on. The production implementation is GoogleCalendar; tests
// inject stubs.
type CalendarAPI interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	PatchEventTime(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// GoogleCalendar talks to Google Calendar as a service account impersonating
// the host mailbox. The token source caches the bearer credential until near
// expiry and refreshes it on demand.
type GoogleCalendar struct {
	svc *calendar.Service
}

// NewGoogleCalendar builds a client from service-account credentials JSON.
// subject is the host mailbox the service identity acts as.
func NewGoogleCalendar(ctx context.Context, credentialsJSON []byte, subject string) (*GoogleCalendar, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	conf.Subject = subject
	svc, err := calendar.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc}, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	res, err := g.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		MaxResults(250).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (g *GoogleCalendar) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	return g.svc.Events.Insert(calendarID, ev).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
}

func (g *GoogleCalendar) PatchEventTime(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) error {
	patch := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: timezone},
		End:   &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: timezone},
	}
	_, err := g.svc.Events.Patch(calendarID, eventID, patch).
		SendUpdates("all").
		Context(ctx).
		Do()
	return err
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return g.svc.Events.Delete(calendarID, eventID).
		SendUpdates("all").
		Context(ctx).
		Do()
}

// BusyIntervals lists occupied stretches on the host calendar for one date.
// The query window is host-local midnight to midnight, not the UTC day, so
// hosts offset from UTC never see wrong-day events.
func (a *App) BusyIntervals(ctx context.Context, calendarID, date string, loc *time.Location) ([]BusyInterval, error) {
	if a.Calendar == nil {
		return nil, ErrServiceUnavailable
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}
	events, err := a.Calendar.ListEvents(ctx, calendarID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	var out []BusyInterval
	for _, item := range events {
		if item == nil || item.Status == "cancelled" {
			continue
		}
		out = append(out, busyIntervalFromEvent(item, loc))
	}
	return out, nil
}

func busyIntervalFromEvent(item *calendar.Event, loc *time.Location) BusyInterval {
	b := BusyInterval{EventID: item.Id}

	start, okStart := eventTime(item.Start, loc)
	end, okEnd := eventTime(item.End, loc)
	if !okStart || !okEnd {
		// All-day or unbounded event: the whole day is off limits.
		b.BlocksAllDay = true
		return b
	}
	b.Start = start
	b.End = end
	return b
}

// eventTime resolves an event boundary to a concrete instant. Date-only
// boundaries (all-day events) report no concrete time.
func eventTime(edt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if edt == nil || edt.DateTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t.In(loc), true
}

// SlotCheckOptions adjusts a single availability check.
type SlotCheckOptions struct {
	// ExcludeEventID ignores the named event, so a reschedule does not
	// collide with the booking's own existing meeting.
	ExcludeEventID string
	// AssumeFreeOnError disables the fail-closed policy. The zero value is
	// strict: calendar errors report no availability.
	AssumeFreeOnError bool
}

// AvailableSlots filters candidate slot times against the live calendar.
// On any calendar error it fails closed and returns nothing, because
// offering a slot that cannot be verified risks a double booking with a
// meeting the system cannot see.
func (a *App) AvailableSlots(ctx context.Context, calendarID, date string, candidates []string, loc *time.Location, duration time.Duration, opts SlotCheckOptions) []string {
	busy, err := a.BusyIntervals(ctx, calendarID, date, loc)
	if err != nil {
		if opts.AssumeFreeOnError {
			a.log().Warn("calendar unreachable, assuming free", zap.String("date", date), zap.Error(err))
			return append([]string(nil), candidates...)
		}
		a.log().Warn("calendar unreachable, failing closed", zap.String("date", date), zap.Error(err))
		return nil
	}
	return filterAvailable(date, candidates, loc, duration, busy, opts.ExcludeEventID)
}

// IsSlotFree checks a single candidate slot. Calendar errors report false
// unless AssumeFreeOnError is set.
func (a *App) IsSlotFree(ctx context.Context, calendarID, date, timeOfDay string, loc *time.Location, duration time.Duration, opts SlotCheckOptions) bool {
	for _, s := range a.AvailableSlots(ctx, calendarID, date, []string{timeOfDay}, loc, duration, opts) {
		if s == timeOfDay {
			return true
		}
	}
	return false
}

// filterAvailable keeps candidates with zero overlap against every busy
// interval. Intervals are half-open, so boundary-touching slots do not
// conflict. Any all-day block empties the entire day.
func filterAvailable(date string, candidates []string, loc *time.Location, duration time.Duration, busy []BusyInterval, excludeEventID string) []string {
	active := busy[:0:0]
	for _, b := range busy {
		if excludeEventID != "" && b.EventID == excludeEventID {
			continue
		}
		if b.BlocksAllDay {
			return nil
		}
		active = append(active, b)
	}

	var out []string
	for _, tod := range candidates {
		slotStart, err := time.ParseInLocation("2006-01-02 15:04", date+" "+tod, loc)
		if err != nil {
			continue
		}
		slotEnd := slotStart.Add(duration)
		free := true
		for _, b := range active {
			if slotStart.Before(b.End) && slotEnd.After(b.Start) {
				free = false
				break
			}
		}
		if free {
			out = append(out, tod)
		}
	}
	return out
}

// createBookingEvent inserts the calendar event for a new booking and
// returns its id and conferencing link.
func (a *App) createBookingEvent(ctx context.Context, calendarID string, b *Booking, start, end time.Time, timezone string) (string, string, error) {
	ev := &calendar.Event{
		Summary:     fmt.Sprintf("Intro call: %s", b.Name),
		Description: b.Notes,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: timezone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: timezone},
		Attendees: []*calendar.EventAttendee{
			{Email: b.Email, DisplayName: b.Name},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	created, err := a.Calendar.InsertEvent(ctx, calendarID, ev)
	if err != nil {
		return "", "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, created.HangoutLink, nil
}
