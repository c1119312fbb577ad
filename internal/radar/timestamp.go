package radar

import "time"

// maxCalendarYear bounds timestamps to representable calendar instants,
// matching the upstream behavior of rejecting out-of-range epochs.
const maxCalendarYear = 9999

// EpochMSToTime converts an epoch-millisecond timestamp into a canonical UTC
// instant. Zero, negative, or out-of-range values fall back to the current
// time; this is a documented approximation, not an error.
func EpochMSToTime(epochMS int64) time.Time {
	if epochMS <= 0 {
		return time.Now().UTC()
	}
	t := time.UnixMilli(epochMS).UTC()
	if t.Year() > maxCalendarYear {
		return time.Now().UTC()
	}
	return t
}
