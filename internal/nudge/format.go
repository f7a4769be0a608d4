package nudge

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var shortDayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// DescribeSchedule renders a schedule as a short human-readable phrase,
// e.g. "every 45 min", "Mon, Wed, Fri at 09:00, 18:00", "every day at :15".
func DescribeSchedule(s Schedule) string {
	switch s.Mode {
	case ModeInterval:
		if s.IntervalMinutes <= 0 {
			return "never"
		}
		if s.IntervalMinutes%60 == 0 {
			h := s.IntervalMinutes / 60
			if h == 1 {
				return "every hour"
			}
			return fmt.Sprintf("every %d h", h)
		}
		return fmt.Sprintf("every %d min", s.IntervalMinutes)
	case ModeFixed:
		if len(s.Days) == 0 || len(s.Times) == 0 {
			return "never"
		}
		times := append([]string(nil), s.Times...)
		sort.Strings(times)
		return fmt.Sprintf("%s at %s", describeDays(s.Days), strings.Join(times, ", "))
	case ModeHourly:
		if len(s.Days) == 0 {
			return "never"
		}
		return fmt.Sprintf("%s hourly at :%02d", describeDays(s.Days), s.MinuteOfHour)
	default:
		return "unknown"
	}
}

func describeDays(days []int) string {
	set := [7]bool{}
	n := 0
	for _, d := range days {
		if d >= 0 && d <= 6 && !set[d] {
			set[d] = true
			n++
		}
	}
	if n == 7 {
		return "every day"
	}
	if n == 5 && !set[0] && !set[6] {
		return "weekdays"
	}
	if n == 2 && set[0] && set[6] {
		return "weekends"
	}
	names := make([]string, 0, n)
	for d := 0; d < 7; d++ {
		if set[d] {
			names = append(names, shortDayNames[d])
		}
	}
	return strings.Join(names, ", ")
}

// FormatNextReminder renders the next trigger time relative to now,
// e.g. "in 12 min", "today 18:00", "Fri 09:00".
func FormatNextReminder(next, now time.Time) string {
	if next.IsZero() {
		return ""
	}
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	if d < time.Hour {
		min := int(d.Round(time.Minute) / time.Minute)
		if min <= 1 {
			return "in 1 min"
		}
		return fmt.Sprintf("in %d min", min)
	}
	ny, nm, nd := now.Date()
	ty, tm, td := next.Date()
	switch {
	case ny == ty && nm == tm && nd == td:
		return "today " + next.Format("15:04")
	case next.Sub(now) < 7*24*time.Hour:
		return shortDayNames[int(next.Weekday())] + " " + next.Format("15:04")
	default:
		return next.Format("2006-01-02 15:04")
	}
}
