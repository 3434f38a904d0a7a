package appointment

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type QueueEntry struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	VisitTime     schedule.TimeOfDay `json:"visit_time"`
	Status        Status             `json:"status"`
}

type QueueEstimate struct {
	AppointmentID uuid.UUID
	// QueueAhead holds live appointments of the same day up to and including this one,
	// latest first.
	QueueAhead           []QueueEntry
	Position             int
	AverageDelay         time.Duration
	EstimatedStart       time.Time
	EstimatedWaitMinutes int
}

// EstimateQueue reports how many visits precede an appointment and when it will likely
// start, shifting the booked time by the day's mean positive start delay.
func (s *Service) EstimateQueue(ctx context.Context, id uuid.UUID) (_ *QueueEstimate, err error) {
	ctx, span := startSpan(ctx, "appointment.EstimateQueue", attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	clinic, err := s.clinic(ctx, appt.ClinicID)
	if err != nil {
		return nil, err
	}
	day, err := s.store.ListDay(ctx, appt.ClinicID, appt.VisitDate)
	if err != nil {
		return nil, err
	}

	est := estimate(appt, day, clinic.Location, s.now())
	return &est, nil
}

func estimate(appt *Appointment, day []Appointment, loc *time.Location, now time.Time) QueueEstimate {
	est := QueueEstimate{AppointmentID: appt.ID}

	var (
		total   time.Duration
		samples int
	)
	for _, a := range day {
		if a.ActualStartTime != nil && a.ActualEndTime != nil {
			if delay := a.ActualStartTime.Sub(a.VisitAt(loc)); delay > 0 {
				total += delay
				samples++
			}
		}
		if a.Status == StatusCancelled || a.VisitTime > appt.VisitTime {
			continue
		}
		est.QueueAhead = append(est.QueueAhead, QueueEntry{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			VisitTime:     a.VisitTime,
			Status:        a.Status,
		})
		if a.ID != appt.ID {
			est.Position++
		}
	}
	sort.SliceStable(est.QueueAhead, func(i, j int) bool {
		return est.QueueAhead[i].VisitTime > est.QueueAhead[j].VisitTime
	})

	if samples > 0 {
		est.AverageDelay = total / time.Duration(samples)
	}
	est.EstimatedStart = appt.VisitAt(loc).Add(est.AverageDelay)

	wait := math.Round(est.EstimatedStart.Sub(now).Minutes())
	est.EstimatedWaitMinutes = int(math.Max(0, wait))
	return est
}
