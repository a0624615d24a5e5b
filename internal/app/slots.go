package app

import (
	"fmt"
	"time"
)

// GenerateSlots expands the config into the ordered candidate slot times for
// one business day. Starting at business-hours start it emits a time then
// advances by slot duration plus buffer, stopping strictly before the end.
// A non-empty override list is used verbatim instead.
func GenerateSlots(cfg CalendarConfig) []string {
	if len(cfg.SlotOverrides) > 0 {
		return append([]string(nil), cfg.SlotOverrides...)
	}

	start, err := parseHHMM(cfg.BusinessHours.Start)
	if err != nil {
		return nil
	}
	end, err := parseHHMM(cfg.BusinessHours.End)
	if err != nil {
		return nil
	}
	step := cfg.SlotDuration()
	if step <= 0 {
		return nil
	}

	var out []string
	for t := start; t.Before(end); t = t.Add(step) {
		out = append(out, t.Format("15:04"))
	}
	return out
}

func parseHHMM(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("invalid time string: %q", s)
	}
	tt, err := time.Parse("15:04", s[:5])
	if err != nil {
		return time.Time{}, err
	}
	return tt, nil
}
