package app

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinNoticeDays is how far ahead of the original date a reschedule must
// land. Measured from the original scheduled date, not from now.
const MinNoticeDays = 2

type BookingRequest struct {
	Name     string
	Email    string
	Phone    string
	Company  string
	Notes    string
	Date     string // "YYYY-MM-DD", host timezone
	Time     string // "HH:MM", host timezone
	Timezone string // visitor's zone, recorded for display only
}

type BookingResult struct {
	Booking     *Booking
	ManageToken string
}

// Unavailability reasons reported by the availability surface.
const (
	ReasonPastDate       = "past_date"
	ReasonNotBusinessDay = "not_business_day"
	ReasonBlockedDate    = "blocked_date"
)

// dateBookable checks the calendar-independent rules for a date.
func dateBookable(cfg CalendarConfig, date string, now time.Time, loc *time.Location) (string, bool) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return ReasonPastDate, false
	}
	today := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return ReasonPastDate, false
	}
	if !cfg.AvailableWeekdays[day.Weekday()] {
		return ReasonNotBusinessDay, false
	}
	if cfg.BlockedDates[date] {
		return ReasonBlockedDate, false
	}
	return "", true
}

func (a *App) validateSlotRequest(cfg CalendarConfig, date, timeOfDay string, loc *time.Location) error {
	if _, err := time.ParseInLocation("2006-01-02", date, loc); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}
	if _, err := parseHHMM(timeOfDay); err != nil {
		return fmt.Errorf("%w: bad time %q", ErrValidation, timeOfDay)
	}
	if reason, ok := dateBookable(cfg, date, a.now(), loc); !ok {
		return fmt.Errorf("%w: %s", ErrValidation, reason)
	}
	for _, s := range GenerateSlots(cfg) {
		if s == timeOfDay {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a bookable time", ErrValidation, timeOfDay)
}

// slotSpan resolves a (date, time) pair to concrete start and end instants
// in the host timezone.
func slotSpan(date, timeOfDay string, loc *time.Location, duration time.Duration) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad slot %s %s", ErrValidation, date, timeOfDay)
	}
	return start, start.Add(duration), nil
}

// CreateBooking runs the full create flow: validate, lock, verify against
// the live calendar, create the event, best-effort CRM sync, defensive
// occupancy re-check, persist. Every failure branch after the lock is
// acquired releases it before returning.
func (a *App) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: bad email %q", ErrValidation, req.Email)
	}

	vals := a.loadSettings(ctx)
	cfg := calendarConfigFromSettings(vals)
	loc, err := time.LoadLocation(cfg.HostTimezone)
	if err != nil {
		loc = time.UTC
	}
	if err := a.validateSlotRequest(cfg, req.Date, req.Time, loc); err != nil {
		return nil, err
	}

	b := &Booking{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Company:       req.Company,
		Notes:         req.Notes,
		ScheduledDate: req.Date,
		ScheduledTime: req.Time,
		Timezone:      req.Timezone,
		Status:        StatusConfirmed,
	}

	// Test mode skips every external call so the form can be exercised
	// end to end without touching real calendars or the CRM.
	if testModeEnabled(vals) {
		b.IsTest = true
		b.CalendarEventID = "test-event-" + b.ID
		b.MeetingLink = "https://example.com/meet/" + b.ID
		taken, err := a.SlotTaken(ctx, req.Date, req.Time, b.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlotConflict
		}
		if err := a.InsertBooking(ctx, b); err != nil {
			return nil, err
		}
		return a.finish(b)
	}

	// A booking nobody can attend must never be accepted silently.
	if a.Calendar == nil {
		return nil, fmt.Errorf("%w: calendar not configured", ErrServiceUnavailable)
	}
	calID := hostCalendarID(vals)
	duration := cfg.SlotDuration()
	start, end, err := slotSpan(req.Date, req.Time, loc, duration)
	if err != nil {
		return nil, err
	}

	if err := a.AcquireSlotLock(ctx, b.ID, req.Date, req.Time); err != nil {
		return nil, err
	}

	// The lock only arbitrates between local requests. The live check
	// catches slots already consumed by an external meeting the lock
	// table cannot see.
	if !a.IsSlotFree(ctx, calID, req.Date, req.Time, loc, duration, SlotCheckOptions{}) {
		a.releaseLockLogged(ctx, b.ID)
		return nil, ErrSlotConflict
	}

	eventID, meetLink, err := a.createBookingEvent(ctx, calID, b, start, end, cfg.HostTimezone)
	if err != nil {
		a.log().Error("calendar event creation failed", zap.String("booking_id", b.ID), zap.Error(err))
		a.releaseLockLogged(ctx, b.ID)
		return nil, fmt.Errorf("%w: calendar event creation failed", ErrServiceUnavailable)
	}
	b.CalendarEventID = eventID
	b.MeetingLink = meetLink

	b.CRMContactID, b.CRMDealID, b.CRMMeetingID = a.syncCRM(ctx, req, start, end, meetLink)

	// Guards the gap between lock-acquire and calendar-verify: the lock
	// row and the booking row are written in separate steps and either
	// could have failed independently on a previous attempt.
	taken, err := a.SlotTaken(ctx, req.Date, req.Time, b.ID)
	if err != nil || taken {
		a.deleteEventLogged(ctx, calID, eventID)
		a.releaseLockLogged(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		return nil, ErrSlotConflict
	}

	if err := a.InsertBooking(ctx, b); err != nil {
		// The calendar event stays: deleting a legitimate just-created
		// meeting over a transient write error is worse than a manual
		// reconciliation.
		a.log().Error("booking persist failed after calendar commit",
			zap.String("booking_id", b.ID), zap.String("event_id", eventID), zap.Error(err))
		a.releaseLockLogged(ctx, b.ID)
		return nil, err
	}

	return a.finish(b)
}

func (a *App) finish(b *Booking) (*BookingResult, error) {
	token, err := signManageToken(a.ManageSecret, b.ID, b.Email)
	if err != nil {
		a.log().Error("manage token signing failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
	return &BookingResult{Booking: b, ManageToken: token}, nil
}

// RescheduleBooking moves a booking to a new slot. The lock moves first;
// if anything after that fails, the lock is rolled back to the original
// slot so it never reflects a slot the calendar does not hold.
func (a *App) RescheduleBooking(ctx context.Context, bookingID, token, newDate, newTime string) (*Booking, error) {
	if err := verifyManageToken(a.ManageSecret, token, bookingID); err != nil {
		return nil, err
	}
	b, err := a.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Live() {
		return nil, fmt.Errorf("%w: booking is %s", ErrValidation, b.Status)
	}
	if b.ScheduledDate == "" || b.ScheduledTime == "" {
		return nil, fmt.Errorf("%w: booking has no scheduled slot", ErrValidation)
	}

	vals := a.loadSettings(ctx)
	cfg := calendarConfigFromSettings(vals)
	loc, locErr := time.LoadLocation(cfg.HostTimezone)
	if locErr != nil {
		loc = time.UTC
	}
	if err := a.validateSlotRequest(cfg, newDate, newTime, loc); err != nil {
		return nil, err
	}
	if err := checkMinimumNotice(b.ScheduledDate, newDate, loc); err != nil {
		return nil, err
	}

	if b.IsTest {
		taken, err := a.SlotTaken(ctx, newDate, newTime, b.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrSlotConflict
		}
		if err := a.UpdateBookingSlot(ctx, b.ID, newDate, newTime); err != nil {
			return nil, err
		}
		b.ScheduledDate, b.ScheduledTime = newDate, newTime
		return b, nil
	}

	if a.Calendar == nil {
		return nil, fmt.Errorf("%w: calendar not configured", ErrServiceUnavailable)
	}
	if b.CalendarEventID == "" {
		return nil, fmt.Errorf("%w: booking has no calendar event", ErrValidation)
	}
	calID := hostCalendarID(vals)
	duration := cfg.SlotDuration()
	start, end, err := slotSpan(newDate, newTime, loc, duration)
	if err != nil {
		return nil, err
	}

	oldDate, oldTime := b.ScheduledDate, b.ScheduledTime
	if err := a.MoveSlotLock(ctx, b.ID, newDate, newTime); err != nil {
		return nil, err
	}
	rollbackLock := func() {
		if err := a.MoveSlotLock(ctx, b.ID, oldDate, oldTime); err != nil {
			a.log().Error("slot lock rollback failed",
				zap.String("booking_id", b.ID),
				zap.String("date", oldDate), zap.String("time", oldTime),
				zap.Error(err))
		}
	}

	// The booking's own event must not count against the new slot.
	free := a.IsSlotFree(ctx, calID, newDate, newTime, loc, duration,
		SlotCheckOptions{ExcludeEventID: b.CalendarEventID})
	if !free {
		rollbackLock()
		return nil, ErrSlotConflict
	}

	if err := a.Calendar.PatchEventTime(ctx, calID, b.CalendarEventID, start, end, cfg.HostTimezone); err != nil {
		a.log().Error("calendar event update failed", zap.String("booking_id", b.ID), zap.Error(err))
		rollbackLock()
		return nil, fmt.Errorf("%w: calendar event update failed", ErrServiceUnavailable)
	}

	if a.CRM != nil && b.CRMMeetingID != "" {
		if err := a.CRM.UpdateMeetingTime(ctx, b.CRMMeetingID, start, end); err != nil {
			a.log().Warn("crm meeting update failed",
				zap.String("booking_id", b.ID), zap.String("meeting_id", b.CRMMeetingID), zap.Error(err))
		}
	}

	if err := a.UpdateBookingSlot(ctx, b.ID, newDate, newTime); err != nil {
		// Calendar and lock both hold the new slot already; surface for
		// operator reconciliation instead of unwinding a real meeting.
		a.log().Error("booking slot persist failed after calendar update",
			zap.String("booking_id", b.ID), zap.Error(err))
		return nil, err
	}
	b.ScheduledDate, b.ScheduledTime = newDate, newTime
	return b, nil
}

// checkMinimumNotice enforces the reschedule notice rule: the new date must
// be at least MinNoticeDays after the original scheduled date.
func checkMinimumNotice(originalDate, newDate string, loc *time.Location) error {
	orig, err := time.ParseInLocation("2006-01-02", originalDate, loc)
	if err != nil {
		return fmt.Errorf("%w: bad original date %q", ErrValidation, originalDate)
	}
	next, err := time.ParseInLocation("2006-01-02", newDate, loc)
	if err != nil {
		return fmt.Errorf("%w: bad date %q", ErrValidation, newDate)
	}
	if next.Before(orig.AddDate(0, 0, MinNoticeDays)) {
		return fmt.Errorf("%w: new date must be at least %d days after the original", ErrValidation, MinNoticeDays)
	}
	return nil
}

// CancelBooking releases the slot and marks the booking cancelled. The
// external event delete is best-effort: a stale calendar event is less
// harmful than an un-cancellable booking.
func (a *App) CancelBooking(ctx context.Context, bookingID, token string) error {
	if err := verifyManageToken(a.ManageSecret, token, bookingID); err != nil {
		return err
	}
	b, err := a.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}

	if !b.IsTest && b.CalendarEventID != "" && a.Calendar != nil {
		calID := hostCalendarID(a.loadSettings(ctx))
		a.deleteEventLogged(ctx, calID, b.CalendarEventID)
	}
	if !b.IsTest && a.CRM != nil && b.CRMMeetingID != "" {
		if err := a.CRM.DeleteMeeting(ctx, b.CRMMeetingID); err != nil {
			a.log().Warn("crm meeting delete failed",
				zap.String("booking_id", b.ID), zap.String("meeting_id", b.CRMMeetingID), zap.Error(err))
		}
	}

	a.releaseLockLogged(ctx, b.ID)
	return a.UpdateBookingStatus(ctx, b.ID, StatusCancelled)
}

// syncCRM is the single best-effort path into the CRM. It logs and moves on;
// the calendar event is the binding commitment, the CRM is secondary.
// Contrast with the calendar client, which fails closed.
func (a *App) syncCRM(ctx context.Context, req BookingRequest, start, end time.Time, meetingLink string) (contactID, dealID, meetingID string) {
	if a.CRM == nil {
		return "", "", ""
	}
	contactID, err := a.CRM.UpsertContact(ctx, CRMContact{
		Email:   req.Email,
		Name:    req.Name,
		Phone:   req.Phone,
		Company: req.Company,
	})
	if err != nil {
		a.log().Warn("crm contact sync failed", zap.String("email", req.Email), zap.Error(err))
		return "", "", ""
	}
	dealID, err = a.CRM.CreateDeal(ctx, contactID, fmt.Sprintf("Inbound lead: %s", req.Name))
	if err != nil {
		a.log().Warn("crm deal creation failed", zap.String("contact_id", contactID), zap.Error(err))
		dealID = ""
	}
	meetingID, err = a.CRM.CreateMeeting(ctx, CRMMeeting{
		ContactID:   contactID,
		Title:       fmt.Sprintf("Intro call: %s", req.Name),
		Start:       start,
		End:         end,
		MeetingLink: meetingLink,
	})
	if err != nil {
		a.log().Warn("crm meeting creation failed", zap.String("contact_id", contactID), zap.Error(err))
		meetingID = ""
	}
	return contactID, dealID, meetingID
}

func (a *App) releaseLockLogged(ctx context.Context, bookingID string) {
	if err := a.ReleaseSlotLock(ctx, bookingID); err != nil {
		a.log().Error("slot lock release failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (a *App) deleteEventLogged(ctx context.Context, calendarID, eventID string) {
	if err := a.Calendar.DeleteEvent(ctx, calendarID, eventID); err != nil {
		a.log().Warn("calendar event delete failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
