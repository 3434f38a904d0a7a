package schedule

import (
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

// GenerateSlots returns the bookable start times of intervals, in interval order.
// A slot is emitted only when it ends at or before its interval's end. The intervals are
// assumed to be ordered and non-overlapping; NormalizeIntervals enforces that on write.
func GenerateSlots(intervals []Interval, slotDuration time.Duration) []TimeOfDay {
	if slotDuration <= 0 {
		return nil
	}
	var slots []TimeOfDay
	for _, iv := range intervals {
		for cur := iv.Start; cur.Add(slotDuration) <= iv.End; cur = cur.Add(slotDuration) {
			slots = append(slots, cur)
		}
	}
	return slots
}

// IsSlot reports whether t is one of the generated slots.
func IsSlot(intervals []Interval, slotDuration time.Duration, t TimeOfDay) bool {
	if slotDuration <= 0 {
		return false
	}
	for _, iv := range intervals {
		if t < iv.Start || t.Add(slotDuration) > iv.End {
			continue
		}
		if (t-iv.Start)%TimeOfDay(slotDuration) == 0 {
			return true
		}
	}
	return false
}

func ValidateSlotDuration(d time.Duration) error {
	if d <= 0 {
		return apperr.Validation("slot_duration", "slot duration must be positive")
	}
	return nil
}
