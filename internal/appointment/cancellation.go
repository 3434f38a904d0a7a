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

// CancellationWindow is how long before the visit a patient may still cancel.
const CancellationWindow = 24 * time.Hour

// Cancel lets the owning patient cancel a waiting appointment at least a day ahead.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (_ *Appointment, err error) {
	ctx, span := startSpan(ctx, "appointment.Cancel", attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	var appt *Appointment
	err = s.withRetry(ctx, "cancel", func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			a, err := s.getForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if a.PatientID != actorID {
				return apperr.Forbidden("only the patient who booked the appointment can cancel it")
			}
			if a.Status != StatusWaiting {
				return apperr.InvalidState(fmt.Sprintf("appointment is %s, only waiting appointments can be cancelled", a.Status))
			}

			clinic, err := s.clinic(ctx, a.ClinicID)
			if err != nil {
				return err
			}
			now := clinic.Now(s.now())
			if a.VisitAt(clinic.Location).Sub(now) < CancellationWindow {
				return apperr.TooLate("visit_date", "appointments can only be cancelled at least 24 hours in advance")
			}

			if err := a.cancel(now, actorID, ReasonPatient); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, EventAppointmentCancelled, a, now, map[string]any{
				"cancelled_by": actorID,
				"reason":       ReasonPatient,
			}); err != nil {
				return err
			}
			appt = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Cancelled(string(ReasonPatient), 1)
	s.log.Info("appointment cancelled",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("actor_id", actorID.String()),
	)
	return appt, nil
}

// Rebook restores an appointment the same patient cancelled, if its slot is still free,
// still offered and still in the future.
func (s *Service) Rebook(ctx context.Context, id, actorID uuid.UUID) (_ *Appointment, err error) {
	ctx, span := startSpan(ctx, "appointment.Rebook", attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	var (
		appt   *Appointment
		clinic directory.Clinic
	)
	err = s.withRetry(ctx, "rebook", func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			a, err := s.getForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if a.PatientID != actorID {
				return apperr.Forbidden("only the patient who booked the appointment can rebook it")
			}
			if a.Status != StatusCancelled {
				return apperr.InvalidState(fmt.Sprintf("appointment is %s, only cancelled appointments can be rebooked", a.Status))
			}
			if a.CancelledBy == nil || *a.CancelledBy != actorID {
				return apperr.Forbidden("only appointments cancelled by the patient can be rebooked")
			}

			clinic, err = s.clinic(ctx, a.ClinicID)
			if err != nil {
				return err
			}
			now := clinic.Now(s.now())
			if !a.VisitAt(clinic.Location).After(now) {
				return apperr.TooLate("visit_date", "visit time has already passed")
			}

			taken, err := tx.SlotOccupied(ctx, a.ClinicID, a.VisitDate, a.VisitTime, a.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.SlotConflict("slot has been booked by someone else")
			}

			sched, err := tx.ResolveForShare(ctx, a.ClinicID, a.VisitDate)
			if err != nil {
				return err
			}
			if !schedule.IsSlot(sched.OpenIntervals(), clinic.SlotDuration, a.VisitTime) {
				return apperr.InvalidSlot("visit_time", "slot is no longer offered by the clinic")
			}

			if err := a.Transition(StatusWaiting, now); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return apperr.SlotConflict("slot has been booked by someone else")
				}
				return err
			}
			if err := s.logEvent(ctx, tx, EventAppointmentRebooked, a, now, map[string]any{"actor_id": actorID}); err != nil {
				return err
			}
			appt = a
			return nil
		})
	})
	if isTransient(err) {
		err = apperr.SlotConflict("slot is being booked by someone else")
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment rebooked", zap.String("appointment_id", appt.ID.String()))
	s.scheduleReminders(ctx, appt, clinic)
	return appt, nil
}
