package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// reminderOffsets are the lead times before a visit at which reminders fire.
var reminderOffsets = []struct {
	label  string
	before time.Duration
}{
	{"24h", 24 * time.Hour},
	{"1h", time.Hour},
	{"15m", 15 * time.Minute},
}

// ListSlots returns every slot the clinic offers on date with its booked flag.
func (s *Service) ListSlots(ctx context.Context, clinicID uuid.UUID, date time.Time) (_ []SlotView, err error) {
	ctx, span := startSpan(ctx, "appointment.ListSlots", attribute.String("clinic.id", clinicID.String()))
	defer func() { endSpan(span, err) }()

	clinic, err := s.clinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if err := schedule.ValidateSlotDuration(clinic.SlotDuration); err != nil {
		return nil, err
	}
	date = schedule.DateOf(date)

	sched, err := schedule.Resolve(ctx, s.store, clinicID, date)
	if err != nil {
		return nil, err
	}
	slots := schedule.GenerateSlots(sched.OpenIntervals(), clinic.SlotDuration)

	booked, err := s.store.BookedTimes(ctx, clinicID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[schedule.TimeOfDay]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	views := make([]SlotView, 0, len(slots))
	for _, t := range slots {
		views = append(views, SlotView{Time: t, IsBooked: taken[t]})
	}
	return views, nil
}

// Book creates a waiting appointment on a free slot of the clinic's effective schedule.
func (s *Service) Book(ctx context.Context, req BookRequest) (_ *Appointment, err error) {
	ctx, span := startSpan(ctx, "appointment.Book",
		attribute.String("clinic.id", req.ClinicID.String()),
		attribute.String("patient.id", req.PatientID.String()),
	)
	defer func() { endSpan(span, err) }()

	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id", "patient_id is required")
	}
	clinic, err := s.clinic(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	if err := schedule.ValidateSlotDuration(clinic.SlotDuration); err != nil {
		return nil, err
	}
	req.Date = schedule.DateOf(req.Date)

	var appt *Appointment
	err = s.withRetry(ctx, "book", func() error {
		var err error
		appt, err = s.bookOnce(ctx, clinic, req)
		return err
	})
	if isTransient(err) {
		err = apperr.SlotConflict("slot is being booked by someone else")
	}
	if err != nil {
		s.metrics.BookingOutcome(bookingOutcome(err))
		return nil, err
	}
	s.metrics.BookingOutcome("booked")

	s.log.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("clinic_id", appt.ClinicID.String()),
		zap.String("visit", schedule.FormatDate(appt.VisitDate)+" "+appt.VisitTime.String()),
	)
	s.scheduleReminders(ctx, appt, clinic)
	return appt, nil
}

func bookingOutcome(err error) string {
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func (s *Service) bookOnce(ctx context.Context, clinic directory.Clinic, req BookRequest) (*Appointment, error) {
	now := clinic.Now(s.now())
	today := schedule.DateOf(now)
	if req.Date.Before(today) {
		return nil, apperr.TooLate("date", "visit date is in the past")
	}
	if !req.Time.On(req.Date, clinic.Location).After(now) {
		return nil, apperr.TooLate("time", "visit time has already passed")
	}

	var appt *Appointment
	err := s.locker.WithLock(ctx, slotLockKey(clinic.ID, req.Date, req.Time), func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			sched, err := tx.ResolveForShare(ctx, clinic.ID, req.Date)
			if err != nil {
				return err
			}
			if !schedule.IsSlot(sched.OpenIntervals(), clinic.SlotDuration, req.Time) {
				return apperr.InvalidSlot("time", fmt.Sprintf("%s is not a bookable slot on %s", req.Time, schedule.FormatDate(req.Date)))
			}

			taken, err := tx.SlotOccupied(ctx, clinic.ID, req.Date, req.Time, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				return apperr.SlotConflict("slot is already booked")
			}

			a := &Appointment{
				ID:        uuid.New(),
				PatientID: req.PatientID,
				ClinicID:  clinic.ID,
				VisitDate: req.Date,
				VisitTime: req.Time,
				Status:    StatusWaiting,
				Notes:     req.Notes,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertAppointment(ctx, a); err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return apperr.SlotConflict("slot is already booked")
				}
				return err
			}
			if err := s.logEvent(ctx, tx, EventAppointmentBooked, a, now, nil); err != nil {
				return err
			}
			appt = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func slotLockKey(clinicID uuid.UUID, date time.Time, at schedule.TimeOfDay) string {
	return fmt.Sprintf("slot:%s:%s:%s", clinicID, schedule.FormatDate(date), at)
}

// scheduleReminders registers the reminder jobs of a just-committed appointment.
// Failures are logged; the booking stands.
func (s *Service) scheduleReminders(ctx context.Context, a *Appointment, clinic directory.Clinic) {
	if s.reminders == nil {
		return
	}
	visitAt := a.VisitAt(clinic.Location)
	now := s.now()
	for _, off := range reminderOffsets {
		fireAt := visitAt.Add(-off.before)
		if !fireAt.After(now) {
			continue
		}
		jobID := fmt.Sprintf("%s:%s", a.ID, off.label)
		if err := s.reminders.ScheduleOnce(ctx, jobID, fireAt, a.ID); err != nil {
			s.log.Warn("failed to schedule reminder",
				zap.String("appointment_id", a.ID.String()),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		}
	}
}
