package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

var tracer = otel.Tracer("github.com/hackgods/clinic-appointment-scheduling/internal/appointment")

type ClinicDirectory interface {
	GetClinic(ctx context.Context, id uuid.UUID) (directory.Clinic, error)
}

type PatientDirectory interface {
	PatientContact(ctx context.Context, id uuid.UUID) (notify.Recipient, error)
}

type ReminderScheduler interface {
	ScheduleOnce(ctx context.Context, jobID string, fireAt time.Time, appointmentID uuid.UUID) error
}

// Notifier queues a message for a patient without blocking the caller.
type Notifier interface {
	Dispatch(patientID uuid.UUID, msg notify.Message)
}

type Deps struct {
	Clinics   ClinicDirectory
	Patients  PatientDirectory
	Reminders ReminderScheduler
	Notifier  Notifier
	Locker    redisclient.Locker
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Now       func() time.Time
}

type Service struct {
	store     Store
	clinics   ClinicDirectory
	patients  PatientDirectory
	reminders ReminderScheduler
	notifier  Notifier
	locker    redisclient.Locker
	log       *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	retryDelay time.Duration
}

func NewService(store Store, deps Deps) *Service {
	if store == nil {
		panic("appointment: store required")
	}
	if deps.Clinics == nil {
		panic("appointment: clinic directory required")
	}
	s := &Service{
		store:      store,
		clinics:    deps.Clinics,
		patients:   deps.Patients,
		reminders:  deps.Reminders,
		notifier:   deps.Notifier,
		locker:     deps.Locker,
		log:        deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
		retryDelay: 50 * time.Millisecond,
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clinic(ctx context.Context, id uuid.UUID) (directory.Clinic, error) {
	c, err := s.clinics.GetClinic(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrClinicNotFound) {
			return directory.Clinic{}, apperr.NotFound("clinic_id", "clinic not found")
		}
		return directory.Clinic{}, err
	}
	return c, nil
}

func (s *Service) getForUpdate(ctx context.Context, tx Tx, id uuid.UUID) (*Appointment, error) {
	a, err := tx.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("appointment_id", "appointment not found")
		}
		return nil, err
	}
	return a, nil
}

// GetAppointment loads one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("appointment_id", "appointment not found")
		}
		return nil, err
	}
	return a, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, redisclient.ErrLockNotAcquired)
}

// withRetry runs op and repeats it once after a transient failure.
func (s *Service) withRetry(ctx context.Context, name string, op func() error) error {
	err := op()
	if !isTransient(err) {
		return err
	}
	s.log.Info("retrying after transient failure", zap.String("operation", name), zap.Error(err))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.retryDelay):
	}
	return op()
}

func newEvent(eventType string, a *Appointment, at time.Time, extra map[string]any) (EventLog, error) {
	payload := map[string]any{
		"clinic_id":  a.ClinicID,
		"patient_id": a.PatientID,
		"visit_date": a.VisitDate.Format(time.DateOnly),
		"visit_time": a.VisitTime.String(),
		"status":     a.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventLog{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	id := a.ID
	return EventLog{EventType: eventType, AppointmentID: &id, Payload: raw, CreatedAt: at}, nil
}

func (s *Service) logEvent(ctx context.Context, tx Tx, eventType string, a *Appointment, at time.Time, extra map[string]any) error {
	ev, err := newEvent(eventType, a, at, extra)
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, ev)
}

func (s *Service) notify(patientID uuid.UUID, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(patientID, msg)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
