package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// InvestigationWindow bounds a telemetry query window around a trigger
// time, swapping look-back/look-forward into chronological order.
func InvestigationWindow(trigger time.Time, lookBack, lookForward time.Duration) (time.Time, time.Time) {
	start := trigger.Add(-lookBack)
	end := trigger.Add(lookForward)
	if end.Before(start) {
		start, end = end, start
	}
	return start, end
}
