package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlotsMorningAndAfternoon(t *testing.T) {
	intervals := []Interval{
		{Start: Clock(8, 0), End: Clock(12, 0)},
		{Start: Clock(14, 0), End: Clock(18, 0)},
	}

	slots := GenerateSlots(intervals, 15*time.Minute)

	require.Len(t, slots, 32)
	assert.Equal(t, Clock(8, 0), slots[0])
	assert.Equal(t, Clock(8, 15), slots[1])
	assert.Equal(t, Clock(11, 45), slots[15])
	assert.Equal(t, Clock(14, 0), slots[16])
	assert.Equal(t, Clock(17, 45), slots[31])

	for _, s := range slots {
		end := s.Add(15 * time.Minute)
		assert.True(t, end <= Clock(12, 0) || (s >= Clock(14, 0) && end <= Clock(18, 0)),
			"slot %s overruns its interval", s)
	}
}

func TestGenerateSlotsEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		duration  time.Duration
		want      []TimeOfDay
	}{
		{"empty intervals", nil, 15 * time.Minute, nil},
		{"duration longer than interval", []Interval{{Clock(9, 0), Clock(9, 20)}}, 30 * time.Minute, nil},
		{"partial tail dropped", []Interval{{Clock(9, 0), Clock(9, 50)}}, 20 * time.Minute, []TimeOfDay{Clock(9, 0), Clock(9, 20)}},
		{"exact fit", []Interval{{Clock(9, 0), Clock(10, 0)}}, 30 * time.Minute, []TimeOfDay{Clock(9, 0), Clock(9, 30)}},
		{"zero duration", []Interval{{Clock(9, 0), Clock(10, 0)}}, 0, nil},
		{"one short interval among long", []Interval{{Clock(8, 0), Clock(8, 10)}, {Clock(9, 0), Clock(9, 30)}}, 15 * time.Minute, []TimeOfDay{Clock(9, 0), Clock(9, 15)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlots(tt.intervals, tt.duration))
		})
	}
}

func TestGenerateSlotsStrictlyIncreasing(t *testing.T) {
	intervals := []Interval{
		{Start: Clock(7, 10), End: Clock(9, 0)},
		{Start: Clock(9, 0), End: Clock(11, 5)},
		{Start: Clock(13, 30), End: Clock(20, 0)},
	}
	for _, d := range []time.Duration{5 * time.Minute, 7 * time.Minute, 20 * time.Minute, 45 * time.Minute} {
		slots := GenerateSlots(intervals, d)
		for i := 1; i < len(slots); i++ {
			assert.Less(t, slots[i-1], slots[i], "duration %s", d)
		}
		for _, s := range slots {
			assert.True(t, IsSlot(intervals, d, s), "slot %s with duration %s", s, d)
		}
	}
}

func TestIsSlot(t *testing.T) {
	intervals := []Interval{{Start: Clock(8, 0), End: Clock(9, 0)}}

	assert.True(t, IsSlot(intervals, 15*time.Minute, Clock(8, 45)))
	assert.False(t, IsSlot(intervals, 15*time.Minute, Clock(8, 50)))
	assert.False(t, IsSlot(intervals, 15*time.Minute, Clock(9, 0)))
	assert.False(t, IsSlot(intervals, 15*time.Minute, Clock(7, 45)))
	assert.False(t, IsSlot(intervals, 0, Clock(8, 0)))
}

func TestValidateSlotDuration(t *testing.T) {
	assert.NoError(t, ValidateSlotDuration(time.Minute))
	assert.Error(t, ValidateSlotDuration(0))
	assert.Error(t, ValidateSlotDuration(-time.Minute))
}
