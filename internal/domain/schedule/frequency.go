package schedule

import (
	"strings"
	"time"
)

// Kind is the recurrence of a team's commitment.
type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

func (k Kind) Valid() bool {
	return k == KindDaily || k == KindWeekly
}

// Frequency describes when a team's cycle resets. Day is only read for weekly teams.
type Frequency struct {
	Kind Kind
	Day  string
}

func Daily() Frequency {
	return Frequency{Kind: KindDaily}
}

func Weekly(day string) Frequency {
	return Frequency{Kind: KindWeekly, Day: day}
}

func (f Frequency) String() string {
	if f.Kind == KindWeekly {
		return string(f.Kind) + ":" + f.Day
	}
	return string(f.Kind)
}

// Weekday resolves the configured reset day. ok is false for daily teams and unknown names.
func (f Frequency) Weekday() (time.Weekday, bool) {
	if f.Kind != KindWeekly {
		return time.Sunday, false
	}
	return ParseWeekday(f.Day)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday accepts full or three-letter English day names in any case.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}
