package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrScheduleNotFound = errors.New("schedule not found")

type Kind string

const (
	KindWeekly      Kind = "weekly"
	KindSpecialDate Kind = "special_date"
)

// Schedule is either a weekly template (Weekday set) or a date override (Date set).
type Schedule struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	Kind        Kind
	Weekday     time.Weekday
	Date        time.Time
	IsAvailable bool
	Intervals   []Interval
}

// OpenIntervals is empty for an unavailable schedule regardless of stored intervals.
func (s Schedule) OpenIntervals() []Interval {
	if !s.IsAvailable {
		return nil
	}
	return s.Intervals
}

// Source looks schedules up. Both methods return ErrScheduleNotFound when no row exists.
type Source interface {
	SpecialDateSchedule(ctx context.Context, clinicID uuid.UUID, date time.Time) (*Schedule, error)
	WeeklySchedule(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) (*Schedule, error)
}

// Resolve returns the effective schedule of clinicID on date: the date override when one
// exists, otherwise the weekly template. A missing template resolves to a closed day.
func Resolve(ctx context.Context, src Source, clinicID uuid.UUID, date time.Time) (Schedule, error) {
	special, err := src.SpecialDateSchedule(ctx, clinicID, date)
	switch {
	case err == nil:
		return *special, nil
	case !errors.Is(err, ErrScheduleNotFound):
		return Schedule{}, fmt.Errorf("load special date schedule: %w", err)
	}

	weekly, err := src.WeeklySchedule(ctx, clinicID, date.Weekday())
	switch {
	case err == nil:
		return *weekly, nil
	case errors.Is(err, ErrScheduleNotFound):
		return Schedule{ClinicID: clinicID, Kind: KindWeekly, Weekday: date.Weekday()}, nil
	default:
		return Schedule{}, fmt.Errorf("load weekly schedule: %w", err)
	}
}
