package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	ClinicID  string  `json:"clinic_id"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Notes     *string `json:"notes,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type IntervalsRequest struct {
	Intervals []schedule.Interval `json:"intervals"`
}

type ClosureRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	VisitDate       string     `json:"visit_date"`
	VisitTime       string     `json:"visit_time"`
	Status          string     `json:"status"`
	ActualStartTime *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `json:"actual_end_time,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy     *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ClinicID:        a.ClinicID,
		VisitDate:       schedule.FormatDate(a.VisitDate),
		VisitTime:       a.VisitTime.String(),
		Status:          string(a.Status),
		ActualStartTime: a.ActualStartTime,
		ActualEndTime:   a.ActualEndTime,
		Notes:           a.Notes,
		CancelledAt:     a.CancelledAt,
		CancelledBy:     a.CancelledBy,
		CancelReason:    string(a.CancelReason),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type SlotsResponse struct {
	ClinicID uuid.UUID              `json:"clinic_id"`
	Date     string                 `json:"date"`
	Slots    []appointment.SlotView `json:"slots"`
}

type ScheduleResponse struct {
	ID          uuid.UUID           `json:"id"`
	Kind        string              `json:"kind"`
	Weekday     int                 `json:"weekday"`
	Date        string              `json:"date,omitempty"`
	IsAvailable bool                `json:"is_available"`
	Intervals   []schedule.Interval `json:"intervals"`
}

type CascadeResponse struct {
	Schedule  ScheduleResponse      `json:"schedule"`
	Cancelled []AppointmentResponse `json:"cancelled"`
}

func toCascadeResponse(res *appointment.CascadeResult) CascadeResponse {
	s := res.Schedule
	resp := CascadeResponse{
		Schedule: ScheduleResponse{
			ID:          s.ID,
			Kind:        string(s.Kind),
			Weekday:     int(s.Weekday),
			IsAvailable: s.IsAvailable,
			Intervals:   s.Intervals,
		},
		Cancelled: make([]AppointmentResponse, 0, len(res.Cancelled)),
	}
	if resp.Schedule.Intervals == nil {
		resp.Schedule.Intervals = []schedule.Interval{}
	}
	if s.Kind == schedule.KindSpecialDate {
		resp.Schedule.Date = schedule.FormatDate(s.Date)
	}
	for i := range res.Cancelled {
		resp.Cancelled = append(resp.Cancelled, toAppointmentResponse(&res.Cancelled[i]))
	}
	return resp
}

type QueueResponse struct {
	AppointmentID        uuid.UUID                `json:"appointment_id"`
	Position             int                      `json:"position"`
	AverageDelayMinutes  float64                  `json:"average_delay_minutes"`
	EstimatedStart       time.Time                `json:"estimated_start"`
	EstimatedWaitMinutes int                      `json:"estimated_wait_minutes"`
	QueueAhead           []appointment.QueueEntry `json:"queue_ahead"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
