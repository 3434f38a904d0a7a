package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// cascadeEdit mutates a locked schedule and returns it together with the ids of the
// waiting appointments it invalidates.
type cascadeEdit func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error)

// runCascade applies edit and cancels what it invalidates in one transaction. Patients
// are notified only after the commit.
func (s *Service) runCascade(ctx context.Context, op string, clinic directory.Clinic, actorID uuid.UUID, reason CancelReason, edit cascadeEdit) (*CascadeResult, error) {
	started := time.Now()
	var result CascadeResult

	err := s.withRetry(ctx, op, func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			sched, ids, err := edit(ctx, tx)
			if err != nil {
				return err
			}
			now := s.now()
			cancelled, err := tx.CancelAppointments(ctx, ids, now, actorID, reason)
			if err != nil {
				return err
			}
			for i := range cancelled {
				if err := s.logEvent(ctx, tx, EventAppointmentCancelled, &cancelled[i], now, map[string]any{
					"cancelled_by": actorID,
					"reason":       reason,
				}); err != nil {
					return err
				}
			}
			result = CascadeResult{Schedule: sched, Cancelled: cancelled}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCascade(op, time.Since(started).Seconds())
	s.metrics.Cancelled(string(reason), len(result.Cancelled))
	s.log.Info("schedule updated",
		zap.String("operation", op),
		zap.String("clinic_id", clinic.ID.String()),
		zap.Int("cancelled", len(result.Cancelled)),
	)
	for i := range result.Cancelled {
		a := &result.Cancelled[i]
		s.notify(a.PatientID, cancellationMessage(clinic, a, reason))
	}
	return &result, nil
}

func cancellationMessage(clinic directory.Clinic, a *Appointment, reason CancelReason) notify.Message {
	why := "the clinic changed its opening hours"
	if reason == ReasonDayClosed {
		why = "the clinic is closed that day"
	}
	visit := a.VisitAt(clinic.Location).Format("Monday, January 2 at 15:04")
	return notify.Message{
		Subject: "Your appointment was cancelled",
		Body:    fmt.Sprintf("Your appointment at %s on %s was cancelled because %s. Please book a new time.", clinic.Name, visit, why),
	}
}

// upcoming drops appointments whose visit has already started. A cascade on today's
// schedule only touches the visits still ahead.
func (s *Service) upcoming(clinic directory.Clinic, appts []Appointment) []Appointment {
	now := clinic.Now(s.now())
	kept := appts[:0]
	for _, a := range appts {
		if a.VisitAt(clinic.Location).After(now) {
			kept = append(kept, a)
		}
	}
	return kept
}

func outside(intervals []schedule.Interval, appts []Appointment) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range appts {
		if !schedule.ContainsAny(intervals, a.VisitTime) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func allIDs(appts []Appointment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	return ids
}

func validWeekday(weekday time.Weekday) error {
	if weekday < time.Sunday || weekday > time.Saturday {
		return apperr.Validation("weekday", fmt.Sprintf("weekday must be 0-6, got %d", weekday))
	}
	return nil
}

// futureDate rejects dates before today in the clinic's timezone.
func (s *Service) futureDate(clinic directory.Clinic, date time.Time) error {
	if date.Before(schedule.DateOf(clinic.Now(s.now()))) {
		return apperr.TooLate("date", "date is in the past")
	}
	return nil
}

// ReplaceWeeklyIntervals sets the open hours of a weekday and cancels waiting appointments
// on upcoming non-overridden dates of that weekday that fall outside them.
func (s *Service) ReplaceWeeklyIntervals(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, intervals []schedule.Interval, actorID uuid.UUID) (_ *CascadeResult, err error) {
	ctx, span := startSpan(ctx, "appointment.ReplaceWeeklyIntervals",
		attribute.String("clinic.id", clinicID.String()),
		attribute.Int("weekday", int(weekday)),
	)
	defer func() { endSpan(span, err) }()

	if err := validWeekday(weekday); err != nil {
		return nil, err
	}
	normalized, err := schedule.NormalizeIntervals(intervals)
	if err != nil {
		return nil, err
	}
	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	return s.runCascade(ctx, "replace_weekly_intervals", clinic, actorID, ReasonScheduleChanged,
		func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error) {
			sched, err := tx.LockWeeklySchedule(ctx, clinicID, weekday)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting, err := tx.ListWaitingForWeekday(ctx, clinicID, weekday, schedule.DateOf(clinic.Now(s.now())))
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting = s.upcoming(clinic, waiting)
			if err := tx.ReplaceIntervals(ctx, sched, normalized, true); err != nil {
				return schedule.Schedule{}, nil, err
			}
			sched.Intervals, sched.IsAvailable = normalized, true
			return *sched, outside(normalized, waiting), nil
		})
}

// MarkWeekdayUnavailable closes a weekday and cancels every waiting appointment on its
// upcoming non-overridden dates.
func (s *Service) MarkWeekdayUnavailable(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, actorID uuid.UUID) (_ *CascadeResult, err error) {
	ctx, span := startSpan(ctx, "appointment.MarkWeekdayUnavailable",
		attribute.String("clinic.id", clinicID.String()),
		attribute.Int("weekday", int(weekday)),
	)
	defer func() { endSpan(span, err) }()

	if err := validWeekday(weekday); err != nil {
		return nil, err
	}
	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	return s.runCascade(ctx, "mark_weekday_unavailable", clinic, actorID, ReasonDayClosed,
		func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error) {
			sched, err := tx.LockWeeklySchedule(ctx, clinicID, weekday)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting, err := tx.ListWaitingForWeekday(ctx, clinicID, weekday, schedule.DateOf(clinic.Now(s.now())))
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting = s.upcoming(clinic, waiting)
			if err := tx.ReplaceIntervals(ctx, sched, nil, false); err != nil {
				return schedule.Schedule{}, nil, err
			}
			sched.Intervals, sched.IsAvailable = nil, false
			return *sched, allIDs(waiting), nil
		})
}

// ReplaceSpecialDateIntervals overrides the open hours of one upcoming date.
func (s *Service) ReplaceSpecialDateIntervals(ctx context.Context, clinicID uuid.UUID, date time.Time, intervals []schedule.Interval, actorID uuid.UUID) (_ *CascadeResult, err error) {
	ctx, span := startSpan(ctx, "appointment.ReplaceSpecialDateIntervals",
		attribute.String("clinic.id", clinicID.String()),
		attribute.String("date", schedule.FormatDate(date)),
	)
	defer func() { endSpan(span, err) }()

	date = schedule.DateOf(date)
	normalized, err := schedule.NormalizeIntervals(intervals)
	if err != nil {
		return nil, err
	}
	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if err := s.futureDate(clinic, date); err != nil {
		return nil, err
	}

	return s.runCascade(ctx, "replace_special_date_intervals", clinic, actorID, ReasonScheduleChanged,
		func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error) {
			sched, _, err := tx.LockSpecialDateSchedule(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting, err := tx.ListWaitingOnDate(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting = s.upcoming(clinic, waiting)
			if err := tx.ReplaceIntervals(ctx, sched, normalized, true); err != nil {
				return schedule.Schedule{}, nil, err
			}
			sched.Intervals, sched.IsAvailable = normalized, true
			return *sched, outside(normalized, waiting), nil
		})
}

// DeleteWorkingHourRange removes [start, end) from one date's hours. A date without an
// override starts from a copy of its weekday template; the template is left untouched.
func (s *Service) DeleteWorkingHourRange(ctx context.Context, clinicID uuid.UUID, date time.Time, start, end schedule.TimeOfDay, actorID uuid.UUID) (_ *CascadeResult, err error) {
	ctx, span := startSpan(ctx, "appointment.DeleteWorkingHourRange",
		attribute.String("clinic.id", clinicID.String()),
		attribute.String("date", schedule.FormatDate(date)),
		attribute.String("range", start.String()+"-"+end.String()),
	)
	defer func() { endSpan(span, err) }()

	date = schedule.DateOf(date)
	if start < 0 || end > schedule.EndOfDay || start >= end {
		return nil, apperr.Validation("range", fmt.Sprintf("invalid range %s-%s", start, end))
	}
	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if err := s.futureDate(clinic, date); err != nil {
		return nil, err
	}

	closing := schedule.Interval{Start: start, End: end}
	return s.runCascade(ctx, "delete_working_hour_range", clinic, actorID, ReasonHoursClosed,
		func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error) {
			sched, created, err := tx.LockSpecialDateSchedule(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			base := sched.OpenIntervals()
			if created {
				weekly, err := schedule.Resolve(ctx, weeklyOnly{tx}, clinicID, date)
				if err != nil {
					return schedule.Schedule{}, nil, err
				}
				base = weekly.OpenIntervals()
			}
			remaining := schedule.SubtractRange(base, start, end)

			waiting, err := tx.ListWaitingOnDate(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting = s.upcoming(clinic, waiting)
			var ids []uuid.UUID
			for _, a := range waiting {
				if closing.Contains(a.VisitTime) {
					ids = append(ids, a.ID)
				}
			}

			if err := tx.ReplaceIntervals(ctx, sched, remaining, true); err != nil {
				return schedule.Schedule{}, nil, err
			}
			sched.Intervals, sched.IsAvailable = remaining, true
			return *sched, ids, nil
		})
}

// MarkSpecialDateUnavailable closes one upcoming date and cancels all its waiting
// appointments.
func (s *Service) MarkSpecialDateUnavailable(ctx context.Context, clinicID uuid.UUID, date time.Time, actorID uuid.UUID) (_ *CascadeResult, err error) {
	ctx, span := startSpan(ctx, "appointment.MarkSpecialDateUnavailable",
		attribute.String("clinic.id", clinicID.String()),
		attribute.String("date", schedule.FormatDate(date)),
	)
	defer func() { endSpan(span, err) }()

	date = schedule.DateOf(date)
	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if err := s.futureDate(clinic, date); err != nil {
		return nil, err
	}

	return s.runCascade(ctx, "mark_special_date_unavailable", clinic, actorID, ReasonDayClosed,
		func(ctx context.Context, tx Tx) (schedule.Schedule, []uuid.UUID, error) {
			sched, _, err := tx.LockSpecialDateSchedule(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting, err := tx.ListWaitingOnDate(ctx, clinicID, date)
			if err != nil {
				return schedule.Schedule{}, nil, err
			}
			waiting = s.upcoming(clinic, waiting)
			if err := tx.ReplaceIntervals(ctx, sched, nil, false); err != nil {
				return schedule.Schedule{}, nil, err
			}
			sched.Intervals, sched.IsAvailable = nil, false
			return *sched, allIDs(waiting), nil
		})
}

// weeklyOnly resolves through the weekly template, hiding the override row this
// transaction just created.
type weeklyOnly struct {
	schedule.Source
}

func (weeklyOnly) SpecialDateSchedule(context.Context, uuid.UUID, time.Time) (*schedule.Schedule, error) {
	return nil, schedule.ErrScheduleNotFound
}
