package app

import "time"

// BusinessHours is the daily booking window in the host's timezone.
type BusinessHours struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
}

// CalendarConfig is the availability configuration resolved from the
// settings table on every request. It is a value, never cached.
type CalendarConfig struct {
	AvailableWeekdays map[time.Weekday]bool
	BusinessHours     BusinessHours
	SlotDurationMins  int
	BufferMins        int
	BlockedDates      map[string]bool // "YYYY-MM-DD"
	HostTimezone      string          // IANA zone name
	SlotOverrides     []string        // "HH:MM"; when non-empty, used verbatim
}

// SlotDuration is the full span a booked slot occupies, buffer included.
func (c CalendarConfig) SlotDuration() time.Duration {
	return time.Duration(c.SlotDurationMins+c.BufferMins) * time.Minute
}

// BusyInterval is one stretch of occupied time on the host calendar.
// An event without concrete start/end times blocks the whole day.
type BusyInterval struct {
	EventID      string
	Start        time.Time
	End          time.Time
	BlocksAllDay bool
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Booking is the durable record of a confirmed meeting.
type Booking struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Company         string    `json:"company,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	ScheduledDate   string    `json:"scheduled_date"` // "YYYY-MM-DD", host timezone
	ScheduledTime   string    `json:"scheduled_time"` // "HH:MM", host timezone
	Timezone        string    `json:"timezone,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	CRMContactID    string    `json:"crm_contact_id,omitempty"`
	CRMDealID       string    `json:"crm_deal_id,omitempty"`
	CRMMeetingID    string    `json:"crm_meeting_id,omitempty"`
	Status          string    `json:"status"`
	IsTest          bool      `json:"is_test"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Live reports whether the booking still occupies its slot.
func (b *Booking) Live() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}
