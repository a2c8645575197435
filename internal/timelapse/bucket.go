// Package timelapse implements the capture-and-assembly pipeline: a periodic
// scheduler samples still frames from each enabled camera's live feed, and
// when a configured time bucket elapses, the accumulated frames are encoded
// into a single timelapse video while the next bucket keeps capturing.
package timelapse

import (
	"fmt"
	"time"

	"lotwatch/internal/types"
)

// BucketID maps a wall-clock instant to the identifier of the bucket it falls
// in for the given period configuration. Pure function, no I/O.
//
// Two timestamps map to the same ID iff they fall in the same
// periodValue*unitMillis window. The ID embeds unit, value, and the window
// index, so IDs remain distinct across configuration changes and are
// monotonically non-decreasing as time advances under a fixed configuration.
//
// Month and year use fixed 30-day/365-day lengths; bucket boundaries do not
// align with calendar months or years (see types.PeriodUnit).
func BucketID(now time.Time, periodValue int, unit types.PeriodUnit) string {
	if periodValue < 1 {
		periodValue = 1
	}
	if !unit.Valid() {
		// Settings validation rejects unknown units before they reach the
		// scheduler; treat any stray value as the smallest window.
		unit = types.PeriodHour
	}
	duration := int64(periodValue) * unit.Millis()
	return fmt.Sprintf("%s_%d_%d", unit, periodValue, now.UnixMilli()/duration)
}
