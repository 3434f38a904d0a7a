package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

// ChangeStatus advances a visit through consultation. Cancellation and rebooking have
// their own operations.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to Status, actorID uuid.UUID) (_ *Appointment, err error) {
	ctx, span := startSpan(ctx, "appointment.ChangeStatus",
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.status", string(to)),
	)
	defer func() { endSpan(span, err) }()

	if !to.Valid() {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown status %q", to))
	}
	switch to {
	case StatusInConsultation, StatusCompleted, StatusAbsent:
	default:
		return nil, apperr.InvalidTransition(fmt.Sprintf("status %s cannot be set directly", to))
	}

	var appt *Appointment
	err = s.withRetry(ctx, "change_status", func() error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			a, err := s.getForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			from := a.Status
			now := s.now()
			if err := a.Transition(to, now); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, EventAppointmentStatusChanged, a, now, map[string]any{
				"from":     from,
				"actor_id": actorID,
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

	s.metrics.StatusChanged(string(to))
	return appt, nil
}
