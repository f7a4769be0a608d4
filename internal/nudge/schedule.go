package nudge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mode selects one of the three recurrence strategies.
type Mode string

const (
	// ModeInterval fires every N minutes from the last fire time.
	ModeInterval Mode = "interval"
	// ModeFixed fires at fixed times of day on selected weekdays.
	ModeFixed Mode = "fixed"
	// ModeHourly fires once per hour at a fixed minute on selected weekdays.
	ModeHourly Mode = "hourly"
)

// Schedule is the recurrence configuration of a nudge. It is a tagged union:
// Mode decides which of the remaining fields are meaningful.
//
// The JSON layout matches the persisted record format:
//
//	{"mode":"interval","intervalMinutes":45}
//	{"mode":"fixed","days":[1,3,5],"times":["09:00","18:00"]}
//	{"mode":"hourly","days":[0,1,2,3,4,5,6],"minuteOfHour":15}
type Schedule struct {
	Mode Mode `json:"mode"`

	// IntervalMinutes is the period for ModeInterval (must be > 0).
	IntervalMinutes int `json:"intervalMinutes,omitempty"`

	// Days holds selected weekdays for ModeFixed/ModeHourly (0=Sunday..6=Saturday).
	Days []int `json:"days,omitempty"`

	// Times holds "HH:MM" entries for ModeFixed.
	Times []string `json:"times,omitempty"`

	// MinuteOfHour is the minute [0,59] for ModeHourly.
	MinuteOfHour int `json:"minuteOfHour,omitempty"`
}

// Validate reports whether the schedule is structurally sound. Degenerate but
// well-formed configurations (empty days/times) pass validation: the engine
// treats them as immediately due rather than as errors.
func (s Schedule) Validate() error {
	switch s.Mode {
	case ModeInterval:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("interval schedule: intervalMinutes must be > 0, got %d", s.IntervalMinutes)
		}
	case ModeFixed:
		for _, d := range s.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("fixed schedule: day %d out of range 0..6", d)
			}
		}
		for _, t := range s.Times {
			if _, _, err := ParseHHMM(t); err != nil {
				return fmt.Errorf("fixed schedule: %w", err)
			}
		}
	case ModeHourly:
		for _, d := range s.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("hourly schedule: day %d out of range 0..6", d)
			}
		}
		if s.MinuteOfHour < 0 || s.MinuteOfHour > 59 {
			return fmt.Errorf("hourly schedule: minuteOfHour %d out of range 0..59", s.MinuteOfHour)
		}
	default:
		return fmt.Errorf("unknown schedule mode %q", s.Mode)
	}
	return nil
}

// Degenerate reports whether the schedule lacks the data needed to compute a
// meaningful future trigger (empty days/times for the day-based modes).
func (s Schedule) Degenerate() bool {
	switch s.Mode {
	case ModeFixed:
		return len(s.Days) == 0 || len(s.Times) == 0
	case ModeHourly:
		return len(s.Days) == 0
	case ModeInterval:
		return s.IntervalMinutes <= 0
	default:
		return true
	}
}

// DaySet returns the selected weekdays as a membership array.
func (s Schedule) DaySet() [7]bool {
	var set [7]bool
	for _, d := range s.Days {
		if d >= 0 && d <= 6 {
			set[d] = true
		}
	}
	return set
}

// TimesAsMinutes converts the HH:MM entries to sorted minutes-of-day.
// Malformed entries are skipped.
func (s Schedule) TimesAsMinutes() []int {
	out := make([]int, 0, len(s.Times))
	for _, t := range s.Times {
		h, m, err := ParseHHMM(t)
		if err != nil {
			continue
		}
		out = append(out, h*60+m)
	}
	sort.Ints(out)
	return out
}

// ParseHHMM parses a 24-hour "HH:MM" string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
