package app

import "time"

// Clock returns the current time in the zone whose midnight ends a daily cycle.
type Clock func() time.Time

func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return func() time.Time { return time.Now().In(loc) }
}
