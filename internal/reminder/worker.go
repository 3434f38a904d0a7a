package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
)

// ErrTargetGone is returned by a TargetLoader when the appointment no longer exists.
var ErrTargetGone = errors.New("reminder target no longer exists")

// Target is everything needed to remind a patient of one visit.
type Target struct {
	AppointmentID uuid.UUID
	ClinicName    string
	VisitAt       time.Time
	Active        bool // false once the appointment left the waiting state
	Recipient     notify.Recipient
}

type TargetLoader interface {
	ReminderTarget(ctx context.Context, appointmentID uuid.UUID) (Target, error)
}

type claimer interface {
	Claim(ctx context.Context, now time.Time, limit int64) ([]Job, error)
}

type Worker struct {
	queue    claimer
	loader   TargetLoader
	notifier notify.Notifier
	log      *zap.Logger
	metrics  *metrics.Collector
	batch    int64
	now      func() time.Time
}

func NewWorker(queue claimer, loader TargetLoader, notifier notify.Notifier, log *zap.Logger, m *metrics.Collector, batch int64) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Worker{
		queue:    queue,
		loader:   loader,
		notifier: notifier,
		log:      log,
		metrics:  m,
		batch:    batch,
		now:      time.Now,
	}
}

// RunOnce drains every job due now and returns how many were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		jobs, err := w.queue.Claim(ctx, w.now(), w.batch)
		if err != nil {
			return total, err
		}
		for _, job := range jobs {
			w.handle(ctx, job)
		}
		total += len(jobs)
		if int64(len(jobs)) < w.batch {
			return total, nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	logger := w.log.With(zap.String("job_id", job.JobID), zap.String("appointment_id", job.AppointmentID.String()))

	target, err := w.loader.ReminderTarget(ctx, job.AppointmentID)
	if errors.Is(err, ErrTargetGone) {
		logger.Debug("reminder: appointment gone, skipping")
		w.metrics.ReminderDispatched("gone")
		return
	}
	if err != nil {
		logger.Error("reminder: load target failed", zap.Error(err))
		w.metrics.ReminderDispatched("error")
		return
	}
	if !target.Active {
		logger.Debug("reminder: appointment no longer waiting, skipping")
		w.metrics.ReminderDispatched("inactive")
		return
	}
	if !target.Recipient.Reachable() {
		logger.Debug("reminder: patient has no contact, skipping")
		w.metrics.ReminderDispatched("unreachable")
		return
	}

	if err := w.notifier.Send(ctx, target.Recipient, reminderMessage(target)); err != nil {
		logger.Warn("reminder: send failed", zap.Error(err))
		w.metrics.ReminderDispatched("failed")
		return
	}
	w.metrics.ReminderDispatched("sent")
}

// Run calls RunOnce at every tick until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("reminder worker stopping")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := w.RunOnce(runCtx)
	if err != nil {
		w.log.Error("reminder run failed", zap.Error(err), zap.Int("processed", n))
		return
	}
	if n > 0 {
		w.log.Info("reminder run complete", zap.Int("processed", n), zap.Duration("took", time.Since(start)))
	}
}

func reminderMessage(t Target) notify.Message {
	return notify.Message{
		Subject: "Appointment reminder",
		Body: fmt.Sprintf("Hello %s, this is a reminder of your appointment at %s on %s.",
			t.Recipient.Name, t.ClinicName, t.VisitAt.Format("Monday, January 2 at 15:04")),
	}
}
