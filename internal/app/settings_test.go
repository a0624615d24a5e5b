package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarConfigDefaultsWhenEmpty(t *testing.T) {
	cfg := calendarConfigFromSettings(map[string]string{})

	assert.Equal(t, "09:00", cfg.BusinessHours.Start)
	assert.Equal(t, "17:00", cfg.BusinessHours.End)
	assert.Equal(t, 30, cfg.SlotDurationMins)
	assert.Equal(t, 0, cfg.BufferMins)
	assert.Equal(t, "America/New_York", cfg.HostTimezone)
	assert.True(t, cfg.AvailableWeekdays[time.Monday])
	assert.True(t, cfg.AvailableWeekdays[time.Friday])
	assert.False(t, cfg.AvailableWeekdays[time.Saturday])
	assert.Empty(t, cfg.BlockedDates)
}

func TestCalendarConfigAppliesValidSettings(t *testing.T) {
	cfg := calendarConfigFromSettings(map[string]string{
		settingAvailableDays: `[2,4]`,
		settingBusinessHours: `{"start":"10:00","end":"15:00"}`,
		settingSlotDuration:  "45",
		settingBufferMinutes: "15",
		settingBlockedDates:  `["2026-12-25"]`,
		settingHostTimezone:  "Europe/Berlin",
		settingSlotOverrides: `["10:00","13:30"]`,
	})

	assert.Equal(t, map[time.Weekday]bool{time.Tuesday: true, time.Thursday: true}, cfg.AvailableWeekdays)
	assert.Equal(t, BusinessHours{Start: "10:00", End: "15:00"}, cfg.BusinessHours)
	assert.Equal(t, 45, cfg.SlotDurationMins)
	assert.Equal(t, 15, cfg.BufferMins)
	assert.True(t, cfg.BlockedDates["2026-12-25"])
	assert.Equal(t, "Europe/Berlin", cfg.HostTimezone)
	assert.Equal(t, []string{"10:00", "13:30"}, cfg.SlotOverrides)
}

// One corrupt field must not invalidate the rest of the config.
func TestCalendarConfigPerFieldFallback(t *testing.T) {
	cfg := calendarConfigFromSettings(map[string]string{
		settingAvailableDays: `not json`,
		settingBusinessHours: `{"start":"26:00","end":"17:00"}`,
		settingSlotDuration:  "-5",
		settingHostTimezone:  "Mars/Olympus_Mons",
		settingBufferMinutes: "10",
	})

	// Corrupt fields fall back individually.
	assert.True(t, cfg.AvailableWeekdays[time.Monday])
	assert.Equal(t, BusinessHours{Start: "09:00", End: "17:00"}, cfg.BusinessHours)
	assert.Equal(t, 30, cfg.SlotDurationMins)
	assert.Equal(t, "America/New_York", cfg.HostTimezone)
	// The valid field still applies.
	assert.Equal(t, 10, cfg.BufferMins)
}

func TestTestModeEnabled(t *testing.T) {
	assert.False(t, testModeEnabled(map[string]string{}))
	assert.False(t, testModeEnabled(map[string]string{settingTestMode: "false"}))
	assert.True(t, testModeEnabled(map[string]string{settingTestMode: "true"}))
	assert.True(t, testModeEnabled(map[string]string{settingTestMode: "1"}))
	assert.True(t, testModeEnabled(map[string]string{settingTestMode: " TRUE "}))
}

func TestHostCalendarID(t *testing.T) {
	assert.Equal(t, "primary", hostCalendarID(map[string]string{}))
	assert.Equal(t, "host@example.com", hostCalendarID(map[string]string{settingHostCalendarID: "host@example.com"}))
}
