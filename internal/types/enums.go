package types

import "fmt"

// PeriodUnit is the unit of a timelapse bucket period. Bucket math uses
// fixed-length approximations for month and year (30 and 365 days); bucket
// boundaries therefore do not align with calendar months or years. Callers
// must not assume otherwise.
type PeriodUnit string

const (
	PeriodHour  PeriodUnit = "hour"
	PeriodDay   PeriodUnit = "day"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// Millis returns the length of one period unit in milliseconds.
func (u PeriodUnit) Millis() int64 {
	switch u {
	case PeriodHour:
		return 3600_000
	case PeriodDay:
		return 86_400_000
	case PeriodMonth:
		return 30 * 86_400_000
	case PeriodYear:
		return 365 * 86_400_000
	default:
		return 0
	}
}

// Valid reports whether u is one of the known period units.
func (u PeriodUnit) Valid() bool {
	return u.Millis() != 0
}

// ParsePeriodUnit converts a string into a PeriodUnit, rejecting unknown values.
func ParsePeriodUnit(s string) (PeriodUnit, error) {
	u := PeriodUnit(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown period unit %q", s)
	}
	return u, nil
}

// EventType identifies the direction of a parking event.
type EventType string

const (
	EventEntry EventType = "entry"
	EventExit  EventType = "exit"
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	return e == EventEntry || e == EventExit
}
