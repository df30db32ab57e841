package schedule

import (
	"fmt"
	"time"
)

// fallbackLabel is shown when a weekly team has a reset day we cannot parse.
const fallbackLabel = "Several Days"

// Countdown is what a client renders for the time left in the current cycle.
// ResetAt is zero when the frequency could not be resolved.
type Countdown struct {
	Label     string
	Urgency   Urgency
	Remaining time.Duration
	ResetAt   time.Time
}

// Compute returns the countdown for f at now. It has no side effects.
func Compute(f Frequency, now time.Time) Countdown {
	switch f.Kind {
	case KindDaily:
		reset := dayStart(now, 1)
		remaining := reset.Sub(now)
		label := FormatClock(remaining)
		if now.Equal(dayStart(now, 0)) {
			// The rollover instant closes the previous day.
			label = FormatClock(0)
		}
		return Countdown{
			Label:     label,
			Urgency:   urgencyFor(remaining),
			Remaining: remaining,
			ResetAt:   reset,
		}
	case KindWeekly:
		wd, ok := f.Weekday()
		if !ok {
			break
		}
		days := daysUntil(now.Weekday(), wd)
		reset := dayStart(now, days+1)
		if !now.Before(reset) {
			days += 7
			reset = dayStart(reset, 7)
		}
		cd := Countdown{Remaining: reset.Sub(now), ResetAt: reset}
		clock := reset.Add(-time.Minute).Format("3:04 PM")
		switch days {
		case 0:
			cd.Label, cd.Urgency = "Today, "+clock, UrgencyUrgent
		case 1:
			cd.Label, cd.Urgency = "Tomorrow, "+clock, UrgencyWarning
		default:
			cd.Label = fmt.Sprintf("%d Days (%s)", days, wd.String()[:3])
			cd.Urgency = UrgencyNormal
		}
		return cd
	}
	return Countdown{Label: fallbackLabel, Urgency: UrgencyNormal}
}

// NextBoundary returns the first reset boundary strictly after from.
// Daily cycles end at local midnight, weekly cycles at the end of the reset day.
// For an unresolvable frequency it falls back to a week after from's midnight and reports ok=false.
func NextBoundary(f Frequency, from time.Time) (time.Time, bool) {
	switch f.Kind {
	case KindDaily:
		return dayStart(from, 1), true
	case KindWeekly:
		if wd, ok := f.Weekday(); ok {
			return dayStart(from, daysUntil(from.Weekday(), wd)+1), true
		}
	}
	return dayStart(from, 7), false
}

// WindowStart is the start of the cycle window containing now.
func WindowStart(f Frequency, now time.Time) time.Time {
	if f.Kind == KindWeekly {
		if next, ok := NextBoundary(f, now); ok {
			return dayStart(next, -7)
		}
	}
	return dayStart(now, 0)
}

// IsLoggingDay reports whether partners are expected to log today.
func IsLoggingDay(f Frequency, now time.Time) bool {
	switch f.Kind {
	case KindDaily:
		return true
	case KindWeekly:
		wd, ok := f.Weekday()
		return ok && now.Weekday() == wd
	default:
		return false
	}
}

// RefreshInterval is how often a client should recompute the countdown.
func RefreshInterval(f Frequency) time.Duration {
	if f.Kind == KindDaily {
		return time.Second
	}
	return time.Minute
}

// FormatClock renders d as HH:MM:SS, flooring to whole seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// dayStart returns local midnight n days after t's date. time.Date normalises
// the day overflow, so this stays correct across month ends and DST shifts.
func dayStart(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}

func daysUntil(from, to time.Weekday) int {
	return (int(to) - int(from) + 7) % 7
}
