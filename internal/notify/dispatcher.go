package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

// ContactLookup resolves a patient to a Recipient.
type ContactLookup interface {
	PatientContact(ctx context.Context, patientID uuid.UUID) (Recipient, error)
}

// Dispatcher sends notifications in the background after the triggering transaction has
// committed. Failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	notifier Notifier
	contacts ContactLookup
	log      *zap.Logger
	metrics  *metrics.Collector
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, contacts ContactLookup, log *zap.Logger, m *metrics.Collector) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		notifier: notifier,
		contacts: contacts,
		log:      log,
		metrics:  m,
		timeout:  10 * time.Second,
	}
}

// Dispatch queues msg for patientID and returns immediately.
func (d *Dispatcher) Dispatch(patientID uuid.UUID, msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		to, err := d.contacts.PatientContact(ctx, patientID)
		if err != nil {
			d.log.Warn("notify: contact lookup failed", zap.String("patient_id", patientID.String()), zap.Error(err))
			d.metrics.NotificationSent("lookup_failed")
			return
		}
		if err := d.notifier.Send(ctx, to, msg); err != nil {
			d.log.Warn("notify: send failed", zap.String("patient_id", patientID.String()), zap.Error(err))
			d.metrics.NotificationSent("failed")
			return
		}
		d.metrics.NotificationSent("sent")
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
