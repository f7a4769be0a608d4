// Package recurrence computes the next trigger time for a nudge schedule.
//
// The calculation is pure: given the same clock reading and schedule it always
// produces the same result, and it never fails. Degenerate schedules (no days
// selected, no times listed, unknown mode) evaluate to the current time, which
// callers must treat as "immediately due" rather than as an error — one bad
// rule must never block the others.
package recurrence

import (
	"time"

	"nudgeloop/internal/nudge"
)

// Engine evaluates schedules against a wall clock in a fixed location.
type Engine struct {
	loc *time.Location
	now func() time.Time
}

// NewEngine constructs an Engine. A nil location defaults to time.Local and a
// nil clock to time.Now; tests inject a fixed clock.
func NewEngine(loc *time.Location, now func() time.Time) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{loc: loc, now: now}
}

// Location returns the engine's evaluation timezone.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the current instant in the engine's location.
func (e *Engine) Now() time.Time { return e.now().In(e.loc) }

// Next returns the next trigger time for the schedule, strictly after now for
// any non-degenerate schedule. lastFire anchors interval schedules; pass the
// zero time when there is no previous firing.
func (e *Engine) Next(s nudge.Schedule, lastFire time.Time) time.Time {
	now := e.Now()
	switch s.Mode {
	case nudge.ModeInterval:
		return nextInterval(s.IntervalMinutes, lastFire, now)
	case nudge.ModeFixed:
		return nextFixed(s, now, e.loc)
	case nudge.ModeHourly:
		return nextHourly(s, now, e.loc)
	default:
		return now
	}
}

func nextInterval(minutes int, lastFire, now time.Time) time.Time {
	if minutes <= 0 {
		return now
	}
	period := time.Duration(minutes) * time.Minute
	anchor := lastFire
	if anchor.IsZero() {
		anchor = now
	}
	candidate := anchor.Add(period)
	if candidate.After(now) {
		return candidate
	}
	// The anchored time already passed (idle rule or clock jump): restart the
	// period from now instead of firing a catch-up burst.
	return now.Add(period)
}

func nextFixed(s nudge.Schedule, now time.Time, loc *time.Location) time.Time {
	days := s.DaySet()
	times := s.TimesAsMinutes()
	if len(s.Days) == 0 || len(times) == 0 {
		return now
	}

	curDay := int(now.Weekday())
	curMinute := now.Hour()*60 + now.Minute()

	if days[curDay] {
		for _, t := range times {
			if t > curMinute {
				return atMinuteOfDay(now, 0, t, loc)
			}
		}
	}

	for i := 1; i <= 7; i++ {
		if days[(curDay+i)%7] {
			return atMinuteOfDay(now, i, times[0], loc)
		}
	}
	return now
}

func nextHourly(s nudge.Schedule, now time.Time, loc *time.Location) time.Time {
	days := s.DaySet()
	if len(s.Days) == 0 {
		return now
	}

	curDay := int(now.Weekday())
	y, m, d := now.Date()

	if days[curDay] {
		if now.Minute() < s.MinuteOfHour {
			return time.Date(y, m, d, now.Hour(), s.MinuteOfHour, 0, 0, loc)
		}
		if now.Hour() < 23 {
			return time.Date(y, m, d, now.Hour()+1, s.MinuteOfHour, 0, 0, loc)
		}
	}

	for i := 1; i <= 7; i++ {
		if days[(curDay+i)%7] {
			return time.Date(y, m, d+i, 0, s.MinuteOfHour, 0, 0, loc)
		}
	}
	return now
}

// atMinuteOfDay returns the instant daysAhead days after now's date at the
// given minute-of-day, with seconds zeroed.
func atMinuteOfDay(now time.Time, daysAhead, minuteOfDay int, loc *time.Location) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+daysAhead, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
}
