package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Settings table keys. Values are strings; list-shaped values are JSON.
const (
	settingAvailableDays  = "available_days"        // JSON array of 0..6 (0=Sunday)
	settingBusinessHours  = "business_hours"        // JSON {"start":"09:00","end":"17:00"}
	settingSlotDuration   = "slot_duration_minutes" // integer
	settingBufferMinutes  = "buffer_minutes"        // integer
	settingBlockedDates   = "blocked_dates"         // JSON array of "YYYY-MM-DD"
	settingHostTimezone   = "host_timezone"         // IANA zone
	settingSlotOverrides  = "slot_overrides"        // JSON array of "HH:MM"
	settingTestMode       = "test_mode"             // "true"/"1" to enable
	settingHostCalendarID = "host_calendar_id"      // calendar to book against
)

// DefaultCalendarConfig is Mon-Fri 09:00-17:00, 30-minute slots, no buffer,
// no blocked dates, America/New_York.
func DefaultCalendarConfig() CalendarConfig {
	return CalendarConfig{
		AvailableWeekdays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		BusinessHours:    BusinessHours{Start: "09:00", End: "17:00"},
		SlotDurationMins: 30,
		BufferMins:       0,
		BlockedDates:     map[string]bool{},
		HostTimezone:     "America/New_York",
	}
}

// loadSettings reads the whole settings table into a map. Admins can change
// settings at any time, so this runs fresh on every request. A failed read
// yields an empty map so callers fall back to defaults.
func (a *App) loadSettings(ctx context.Context) map[string]string {
	vals := map[string]string{}
	rows, err := a.DB.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		a.log().Warn("settings read failed, using defaults", zap.Error(err))
		return vals
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		vals[k] = v
	}
	return vals
}

// ResolveCalendarConfig builds the availability configuration for this
// request. Missing or malformed values fall back per field, so one corrupt
// setting never invalidates the rest of the config.
func (a *App) ResolveCalendarConfig(ctx context.Context) CalendarConfig {
	return calendarConfigFromSettings(a.loadSettings(ctx))
}

func calendarConfigFromSettings(vals map[string]string) CalendarConfig {
	cfg := DefaultCalendarConfig()

	if raw, ok := vals[settingAvailableDays]; ok {
		var days []int
		if json.Unmarshal([]byte(raw), &days) == nil {
			set := map[time.Weekday]bool{}
			for _, d := range days {
				if d >= 0 && d <= 6 {
					set[time.Weekday(d)] = true
				}
			}
			if len(set) > 0 {
				cfg.AvailableWeekdays = set
			}
		}
	}

	if raw, ok := vals[settingBusinessHours]; ok {
		var bh BusinessHours
		if json.Unmarshal([]byte(raw), &bh) == nil {
			start, errS := parseHHMM(bh.Start)
			end, errE := parseHHMM(bh.End)
			if errS == nil && errE == nil && end.After(start) {
				cfg.BusinessHours = BusinessHours{Start: start.Format("15:04"), End: end.Format("15:04")}
			}
		}
	}

	if raw, ok := vals[settingSlotDuration]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			cfg.SlotDurationMins = n
		}
	}

	if raw, ok := vals[settingBufferMinutes]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
			cfg.BufferMins = n
		}
	}

	if raw, ok := vals[settingBlockedDates]; ok {
		var dates []string
		if json.Unmarshal([]byte(raw), &dates) == nil {
			blocked := map[string]bool{}
			for _, d := range dates {
				if _, err := time.Parse("2006-01-02", d); err == nil {
					blocked[d] = true
				}
			}
			cfg.BlockedDates = blocked
		}
	}

	if raw, ok := vals[settingHostTimezone]; ok {
		tz := strings.TrimSpace(raw)
		if _, err := time.LoadLocation(tz); err == nil && tz != "" {
			cfg.HostTimezone = tz
		}
	}

	if raw, ok := vals[settingSlotOverrides]; ok {
		var overrides []string
		if json.Unmarshal([]byte(raw), &overrides) == nil {
			var valid []string
			for _, s := range overrides {
				if t, err := parseHHMM(s); err == nil {
					valid = append(valid, t.Format("15:04"))
				}
			}
			cfg.SlotOverrides = valid
		}
	}

	return cfg
}

func testModeEnabled(vals map[string]string) bool {
	v := strings.TrimSpace(strings.ToLower(vals[settingTestMode]))
	return v == "true" || v == "1" || v == "on"
}

func hostCalendarID(vals map[string]string) string {
	if id := strings.TrimSpace(vals[settingHostCalendarID]); id != "" {
		return id
	}
	return "primary"
}

// UpsertSetting writes one settings key. Used by the admin surface.
func (a *App) UpsertSetting(ctx context.Context, key, value string) error {
	_, err := a.DB.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}
