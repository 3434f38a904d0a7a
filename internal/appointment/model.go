package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// Status lifecycle:
//
//	waiting → in_consultation → completed
//	waiting → absent
//	waiting ↔ cancelled
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInConsultation Status = "in_consultation"
	StatusCompleted      Status = "completed"
	StatusAbsent         Status = "absent"
	StatusCancelled      Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", apperr.Validation("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInConsultation, StatusCompleted, StatusAbsent, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusWaiting:        {StatusInConsultation, StatusAbsent, StatusCancelled},
	StatusInConsultation: {StatusCompleted},
	StatusCancelled:      {StatusWaiting},
	StatusCompleted:      {},
	StatusAbsent:         {},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type CancelReason string

const (
	ReasonPatient         CancelReason = "patient"
	ReasonScheduleChanged CancelReason = "schedule_changed"
	ReasonDayClosed       CancelReason = "day_closed"
	ReasonHoursClosed     CancelReason = "hours_closed"
)

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	VisitDate       time.Time
	VisitTime       schedule.TimeOfDay
	Status          Status
	ActualStartTime *time.Time
	ActualEndTime   *time.Time
	Notes           *string
	CancelledAt     *time.Time
	CancelledBy     *uuid.UUID
	CancelReason    CancelReason
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// VisitAt is the visit's start instant in the clinic's timezone.
func (a *Appointment) VisitAt(loc *time.Location) time.Time {
	return a.VisitTime.On(a.VisitDate, loc)
}

// Transition moves the appointment to status to and applies the timestamp side effects of
// the target state. It is the only place statuses change.
func (a *Appointment) Transition(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return apperr.InvalidTransition(fmt.Sprintf("cannot change status from %s to %s", a.Status, to))
	}

	switch to {
	case StatusInConsultation:
		a.ActualStartTime = &now
	case StatusCompleted:
		a.ActualEndTime = &now
	case StatusWaiting:
		a.CancelledAt = nil
		a.CancelledBy = nil
		a.CancelReason = ""
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

func (a *Appointment) cancel(now time.Time, by uuid.UUID, reason CancelReason) error {
	if err := a.Transition(StatusCancelled, now); err != nil {
		return err
	}
	a.CancelledAt = &now
	a.CancelledBy = &by
	a.CancelReason = reason
	return nil
}

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentRebooked      = "APPOINTMENT_REBOOKED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// SlotView is one generated slot of a day and whether a live appointment holds it.
type SlotView struct {
	Time     schedule.TimeOfDay `json:"time"`
	IsBooked bool               `json:"is_booked"`
}

type BookRequest struct {
	PatientID uuid.UUID
	ClinicID  uuid.UUID
	Date      time.Time
	Time      schedule.TimeOfDay
	Notes     *string
}

// CascadeResult is the outcome of a schedule edit: the schedule as written and the
// appointments it cancelled.
type CascadeResult struct {
	Schedule  schedule.Schedule
	Cancelled []Appointment
}
