package schedule

import (
	"fmt"
	"sort"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

// Interval is a half-open opening range [Start, End) within one day.
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (i Interval) Contains(t TimeOfDay) bool {
	return i.Start <= t && t < i.End
}

func (i Interval) Overlaps(start, end TimeOfDay) bool {
	return i.Start < end && start < i.End
}

func (i Interval) String() string {
	return fmt.Sprintf("%s-%s", i.Start, i.End)
}

// NormalizeIntervals validates that every interval is chronological and inside one day,
// and that no two overlap. It returns a copy sorted by start time.
func NormalizeIntervals(intervals []Interval) ([]Interval, error) {
	for i, iv := range intervals {
		field := fmt.Sprintf("intervals[%d]", i)
		if iv.Start < 0 || iv.End > EndOfDay {
			return nil, apperr.Validation(field, "interval must lie within one day")
		}
		if iv.Start >= iv.End {
			return nil, apperr.Validation(field, fmt.Sprintf("start %s must be before end %s", iv.Start, iv.End))
		}
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start < sorted[b].Start })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return nil, apperr.Validation("intervals",
				fmt.Sprintf("interval %s overlaps %s", sorted[i], sorted[i-1]))
		}
	}
	return sorted, nil
}

// ContainsAny reports whether t falls inside at least one interval.
func ContainsAny(intervals []Interval, t TimeOfDay) bool {
	for _, iv := range intervals {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// SubtractRange removes [start, end) from every interval. Intervals fully inside the range
// are dropped, intervals straddling one boundary are truncated and intervals straddling
// both are split in two.
func SubtractRange(intervals []Interval, start, end TimeOfDay) []Interval {
	out := make([]Interval, 0, len(intervals)+1)
	for _, iv := range intervals {
		if !iv.Overlaps(start, end) {
			out = append(out, iv)
			continue
		}
		if iv.Start < start {
			out = append(out, Interval{Start: iv.Start, End: start})
		}
		if end < iv.End {
			out = append(out, Interval{Start: end, End: iv.End})
		}
	}
	return out
}
