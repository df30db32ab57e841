package schedule

import "time"

// Urgency buckets the time left until a reset.
type Urgency string

const (
	UrgencyNormal  Urgency = "normal"
	UrgencyWarning Urgency = "warning"
	UrgencyUrgent  Urgency = "urgent"
)

const (
	WarningThreshold = 6 * time.Hour
	UrgentThreshold  = time.Hour
)

func urgencyFor(remaining time.Duration) Urgency {
	switch {
	case remaining < UrgentThreshold:
		return UrgencyUrgent
	case remaining < WarningThreshold:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Trigger names the warning point an urgency bucket corresponds to.
// It is empty for normal urgency, which never fires a warning.
func Trigger(kind Kind, u Urgency) string {
	switch {
	case kind == KindDaily && u == UrgencyWarning:
		return "<6h"
	case kind == KindDaily && u == UrgencyUrgent:
		return "<1h"
	case kind == KindWeekly && u == UrgencyWarning:
		return "<2d"
	case kind == KindWeekly && u == UrgencyUrgent:
		return "<1d"
	default:
		return ""
	}
}
