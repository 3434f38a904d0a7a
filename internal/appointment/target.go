package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/reminder"
)

// ReminderTarget resolves a reminder job to what the worker needs to send it.
func (s *Service) ReminderTarget(ctx context.Context, id uuid.UUID) (reminder.Target, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return reminder.Target{}, reminder.ErrTargetGone
		}
		return reminder.Target{}, err
	}
	clinic, err := s.clinics.GetClinic(ctx, a.ClinicID)
	if err != nil {
		if errors.Is(err, directory.ErrClinicNotFound) {
			return reminder.Target{}, reminder.ErrTargetGone
		}
		return reminder.Target{}, err
	}

	t := reminder.Target{
		AppointmentID: a.ID,
		ClinicName:    clinic.Name,
		VisitAt:       a.VisitAt(clinic.Location),
		Active:        a.Status == StatusWaiting,
	}
	if s.patients != nil {
		contact, err := s.patients.PatientContact(ctx, a.PatientID)
		switch {
		case err == nil:
			t.Recipient = contact
		case errors.Is(err, directory.ErrPatientNotFound):
			// unreachable recipient; the worker records it
		default:
			return reminder.Target{}, fmt.Errorf("load patient contact: %w", err)
		}
	}
	return t, nil
}
