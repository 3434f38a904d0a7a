package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// Service is the scheduling core as seen by the HTTP layer.
type Service interface {
	ListSlots(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]appointment.SlotView, error)
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id, actorID uuid.UUID) (*appointment.Appointment, error)
	Rebook(ctx context.Context, id, actorID uuid.UUID) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to appointment.Status, actorID uuid.UUID) (*appointment.Appointment, error)
	EstimateQueue(ctx context.Context, id uuid.UUID) (*appointment.QueueEstimate, error)

	ReplaceWeeklyIntervals(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, intervals []schedule.Interval, actorID uuid.UUID) (*appointment.CascadeResult, error)
	MarkWeekdayUnavailable(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, actorID uuid.UUID) (*appointment.CascadeResult, error)
	ReplaceSpecialDateIntervals(ctx context.Context, clinicID uuid.UUID, date time.Time, intervals []schedule.Interval, actorID uuid.UUID) (*appointment.CascadeResult, error)
	DeleteWorkingHourRange(ctx context.Context, clinicID uuid.UUID, date time.Time, start, end schedule.TimeOfDay, actorID uuid.UUID) (*appointment.CascadeResult, error)
	MarkSpecialDateUnavailable(ctx context.Context, clinicID uuid.UUID, date time.Time, actorID uuid.UUID) (*appointment.CascadeResult, error)
}

func bookAppointmentHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, ok := parseUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		clinicID, ok := parseUUID(w, req.ClinicID, "clinic_id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "date", "date must be YYYY-MM-DD")
			return
		}
		at, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "time", "time must be HH:MM")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID: patientID,
			ClinicID:  clinicID,
			Date:      date,
			Time:      at,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// actorAction is the shape shared by cancel and rebook.
type actorAction func(ctx context.Context, id, actorID uuid.UUID) (*appointment.Appointment, error)

func appointmentActionHandler(action actorAction, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok {
			return
		}

		appt, err := action(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func changeStatusHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		var req ChangeStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), id, status, actor)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func queueHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}

		est, err := svc.EstimateQueue(r.Context(), id)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}

		queue := est.QueueAhead
		if queue == nil {
			queue = []appointment.QueueEntry{}
		}
		writeJSON(w, http.StatusOK, QueueResponse{
			AppointmentID:        est.AppointmentID,
			Position:             est.Position,
			AverageDelayMinutes:  est.AverageDelay.Minutes(),
			EstimatedStart:       est.EstimatedStart,
			EstimatedWaitMinutes: est.EstimatedWaitMinutes,
			QueueAhead:           queue,
		})
	}
}
