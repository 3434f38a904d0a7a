package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

func TestReplaceWeeklyIntervalsCancelsOnlyMisfits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	late := f.book(t, uuid.New(), wednesday, schedule.Clock(10, 0))
	early := f.book(t, uuid.New(), wednesday, schedule.Clock(8, 30))

	// an override on next Wednesday keeps its own hours
	_, err := f.svc.ReplaceSpecialDateIntervals(ctx, f.clinicID, nextWed,
		[]schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)}}, f.staffID)
	require.NoError(t, err)
	protected := f.book(t, uuid.New(), nextWed, schedule.Clock(10, 0))

	res, err := f.svc.ReplaceWeeklyIntervals(ctx, f.clinicID, time.Wednesday,
		[]schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(9, 0)}}, f.staffID)
	require.NoError(t, err)

	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, late.ID, res.Cancelled[0].ID)
	assert.Equal(t, []schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(9, 0)}}, res.Schedule.Intervals)
	assert.False(t, schedule.ContainsAny(res.Schedule.OpenIntervals(), schedule.Clock(10, 0)))

	cancelled := f.appointment(t, late.ID)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, ReasonScheduleChanged, cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.staffID, *cancelled.CancelledBy)

	assert.Equal(t, StatusWaiting, f.appointment(t, early.ID).Status)
	assert.Equal(t, StatusWaiting, f.appointment(t, protected.ID).Status)

	slots, err := f.svc.ListSlots(ctx, f.clinicID, wednesday)
	require.NoError(t, err)
	assert.Len(t, slots, 4)
	assert.NotContains(t, slotTimes(slots), schedule.Clock(10, 0))

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, late.PatientID, f.notifier.sent[0].PatientID)
	assert.Contains(t, f.notifier.sent[0].Message.Body, "Northside")
	assert.Contains(t, f.notifier.sent[0].Message.Body, "Wednesday, November 4 at 10:00")
}

func TestReplaceWeeklyIntervalsValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, uuid.New(), wednesday, schedule.Clock(10, 0))

	_, err := f.svc.ReplaceWeeklyIntervals(ctx, f.clinicID, time.Wednesday, []schedule.Interval{
		{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)},
		{Start: schedule.Clock(11, 0), End: schedule.Clock(13, 0)},
	}, f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.ReplaceWeeklyIntervals(ctx, f.clinicID, time.Weekday(7), nil, f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, "weekday", apperr.FieldOf(err))

	assert.Equal(t, StatusWaiting, f.appointment(t, appt.ID).Status)
}

func TestMarkWeekdayUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, uuid.New(), wednesday, schedule.Clock(8, 0))
	b := f.book(t, uuid.New(), nextWed, schedule.Clock(17, 45))
	other := f.book(t, uuid.New(), day(2026, 11, 5), schedule.Clock(10, 0))

	res, err := f.svc.MarkWeekdayUnavailable(ctx, f.clinicID, time.Wednesday, f.staffID)
	require.NoError(t, err)
	assert.Len(t, res.Cancelled, 2)
	assert.False(t, res.Schedule.IsAvailable)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got := f.appointment(t, id)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, ReasonDayClosed, got.CancelReason)
	}
	assert.Equal(t, StatusWaiting, f.appointment(t, other.ID).Status)

	slots, err := f.svc.ListSlots(ctx, f.clinicID, wednesday)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Len(t, f.notifier.sent, 2)
}

func TestCascadesLeaveStartedVisitsAlone(t *testing.T) {
	// the clock sits at Monday 09:00
	f := newFixture(t)
	ctx := context.Background()

	overdue := Appointment{
		ID: uuid.New(), PatientID: uuid.New(), ClinicID: f.clinicID,
		VisitDate: monday, VisitTime: schedule.Clock(8, 30), Status: StatusWaiting,
	}
	startingNow := Appointment{
		ID: uuid.New(), PatientID: uuid.New(), ClinicID: f.clinicID,
		VisitDate: monday, VisitTime: schedule.Clock(9, 0), Status: StatusWaiting,
	}
	f.store.putAppointment(overdue)
	f.store.putAppointment(startingNow)
	ahead := f.book(t, uuid.New(), monday, schedule.Clock(10, 0))

	res, err := f.svc.MarkWeekdayUnavailable(ctx, f.clinicID, time.Monday, f.staffID)
	require.NoError(t, err)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, ahead.ID, res.Cancelled[0].ID)
	assert.Equal(t, StatusWaiting, f.appointment(t, overdue.ID).Status)
	assert.Equal(t, StatusWaiting, f.appointment(t, startingNow.ID).Status)

	res, err = f.svc.MarkSpecialDateUnavailable(ctx, f.clinicID, monday, f.staffID)
	require.NoError(t, err)
	assert.Empty(t, res.Cancelled)
	assert.Equal(t, StatusWaiting, f.appointment(t, overdue.ID).Status)
}

func TestReplaceSpecialDateIntervals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.book(t, uuid.New(), wednesday, schedule.Clock(15, 0))
	dropped := f.book(t, uuid.New(), wednesday, schedule.Clock(9, 0))

	res, err := f.svc.ReplaceSpecialDateIntervals(ctx, f.clinicID, wednesday,
		[]schedule.Interval{{Start: schedule.Clock(14, 0), End: schedule.Clock(16, 0)}}, f.staffID)
	require.NoError(t, err)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, dropped.ID, res.Cancelled[0].ID)
	assert.Equal(t, schedule.KindSpecialDate, res.Schedule.Kind)
	assert.Equal(t, StatusWaiting, f.appointment(t, kept.ID).Status)

	slots, err := f.svc.ListSlots(ctx, f.clinicID, wednesday)
	require.NoError(t, err)
	assert.Len(t, slots, 8)

	weekly, err := f.svc.ListSlots(ctx, f.clinicID, nextWed)
	require.NoError(t, err)
	assert.Len(t, weekly, 32)
}

func TestSpecialDateEditsRejectPastDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yesterday := day(2026, 11, 1)

	_, err := f.svc.ReplaceSpecialDateIntervals(ctx, f.clinicID, yesterday, nil, f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrTooLate))

	_, err = f.svc.DeleteWorkingHourRange(ctx, f.clinicID, yesterday, schedule.Clock(9, 0), schedule.Clock(10, 0), f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrTooLate))

	_, err = f.svc.MarkSpecialDateUnavailable(ctx, f.clinicID, yesterday, f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrTooLate))

	_, err = f.svc.ReplaceSpecialDateIntervals(ctx, f.clinicID, monday,
		[]schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)}}, f.staffID)
	assert.NoError(t, err)
}

func TestDeleteWorkingHourRangeCopiesWeeklyHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inRange := f.book(t, uuid.New(), wednesday, schedule.Clock(9, 30))
	boundary := f.book(t, uuid.New(), wednesday, schedule.Clock(10, 0))

	res, err := f.svc.DeleteWorkingHourRange(ctx, f.clinicID, wednesday, schedule.Clock(9, 0), schedule.Clock(10, 0), f.staffID)
	require.NoError(t, err)

	assert.Equal(t, []schedule.Interval{
		{Start: schedule.Clock(8, 0), End: schedule.Clock(9, 0)},
		{Start: schedule.Clock(10, 0), End: schedule.Clock(12, 0)},
		{Start: schedule.Clock(14, 0), End: schedule.Clock(18, 0)},
	}, res.Schedule.Intervals)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, inRange.ID, res.Cancelled[0].ID)
	assert.Equal(t, ReasonHoursClosed, f.appointment(t, inRange.ID).CancelReason)
	assert.Equal(t, StatusWaiting, f.appointment(t, boundary.ID).Status)

	slots, err := f.svc.ListSlots(ctx, f.clinicID, wednesday)
	require.NoError(t, err)
	assert.Len(t, slots, 28)
	assert.NotContains(t, slotTimes(slots), schedule.Clock(9, 45))

	// the weekday template is untouched
	weekly, err := f.store.WeeklySchedule(ctx, f.clinicID, time.Wednesday)
	require.NoError(t, err)
	assert.Len(t, weekly.Intervals, 2)

	// a second range on the same date edits the override, not the template
	res, err = f.svc.DeleteWorkingHourRange(ctx, f.clinicID, wednesday, schedule.Clock(14, 0), schedule.Clock(18, 0), f.staffID)
	require.NoError(t, err)
	assert.Len(t, res.Schedule.Intervals, 2)
}

func TestDeleteWorkingHourRangeValidatesRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.DeleteWorkingHourRange(context.Background(), f.clinicID, wednesday, schedule.Clock(10, 0), schedule.Clock(9, 0), f.staffID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, "range", apperr.FieldOf(err))
}

func TestMarkSpecialDateUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, uuid.New(), wednesday, schedule.Clock(8, 0))
	b := f.book(t, uuid.New(), wednesday, schedule.Clock(14, 0))
	later := f.book(t, uuid.New(), nextWed, schedule.Clock(8, 0))

	res, err := f.svc.MarkSpecialDateUnavailable(ctx, f.clinicID, wednesday, f.staffID)
	require.NoError(t, err)
	assert.Len(t, res.Cancelled, 2)
	assert.Empty(t, res.Schedule.OpenIntervals())

	assert.Equal(t, StatusCancelled, f.appointment(t, a.ID).Status)
	assert.Equal(t, StatusCancelled, f.appointment(t, b.ID).Status)
	assert.Equal(t, StatusWaiting, f.appointment(t, later.ID).Status)

	_, err = f.svc.Book(ctx, BookRequest{PatientID: uuid.New(), ClinicID: f.clinicID, Date: wednesday, Time: schedule.Clock(8, 0)})
	assert.True(t, errors.Is(err, apperr.ErrInvalidSlot))
}

func TestCascadeRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, uuid.New(), wednesday, schedule.Clock(10, 0))

	f.store.failEvents = true
	_, err := f.svc.ReplaceWeeklyIntervals(ctx, f.clinicID, time.Wednesday,
		[]schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(9, 0)}}, f.staffID)
	require.Error(t, err)

	assert.Equal(t, StatusWaiting, f.appointment(t, appt.ID).Status)
	slots, err := f.svc.ListSlots(ctx, f.clinicID, wednesday)
	require.NoError(t, err)
	assert.Len(t, slots, 32)
	assert.Empty(t, f.notifier.sent)
}
