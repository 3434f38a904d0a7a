package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

func listSlotsHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := parseUUID(w, chi.URLParam(r, "clinicID"), "clinic_id")
		if !ok {
			return
		}
		date, ok := parseDateParam(w, r.URL.Query().Get("date"))
		if !ok {
			return
		}

		slots, err := svc.ListSlots(r.Context(), clinicID, date)
		if err != nil {
			writeServiceError(w, log, r, err)
			return
		}
		if slots == nil {
			slots = []appointment.SlotView{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ClinicID: clinicID,
			Date:     schedule.FormatDate(date),
			Slots:    slots,
		})
	}
}

// clinicEdit carries the path parameters and actor shared by every schedule edit.
type clinicEdit struct {
	clinicID uuid.UUID
	actorID  uuid.UUID
}

func parseClinicEdit(w http.ResponseWriter, r *http.Request) (clinicEdit, bool) {
	clinicID, ok := parseUUID(w, chi.URLParam(r, "clinicID"), "clinic_id")
	if !ok {
		return clinicEdit{}, false
	}
	actor, ok := actorID(w, r)
	if !ok {
		return clinicEdit{}, false
	}
	return clinicEdit{clinicID: clinicID, actorID: actor}, true
}

func parseWeekdayParam(w http.ResponseWriter, r *http.Request) (time.Weekday, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil || n < 0 || n > 6 {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "weekday", "weekday must be 0 (Sunday) to 6 (Saturday)")
		return 0, false
	}
	return time.Weekday(n), true
}

func parseDateParam(w http.ResponseWriter, raw string) (time.Time, bool) {
	date, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func writeCascade(w http.ResponseWriter, log *zap.Logger, r *http.Request, res *appointment.CascadeResult, err error) {
	if err != nil {
		writeServiceError(w, log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCascadeResponse(res))
}

func replaceWeeklyIntervalsHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit, ok := parseClinicEdit(w, r)
		if !ok {
			return
		}
		weekday, ok := parseWeekdayParam(w, r)
		if !ok {
			return
		}
		var req IntervalsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.ReplaceWeeklyIntervals(r.Context(), edit.clinicID, weekday, req.Intervals, edit.actorID)
		writeCascade(w, log, r, res, err)
	}
}

func markWeekdayUnavailableHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit, ok := parseClinicEdit(w, r)
		if !ok {
			return
		}
		weekday, ok := parseWeekdayParam(w, r)
		if !ok {
			return
		}

		res, err := svc.MarkWeekdayUnavailable(r.Context(), edit.clinicID, weekday, edit.actorID)
		writeCascade(w, log, r, res, err)
	}
}

func replaceSpecialDateIntervalsHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit, ok := parseClinicEdit(w, r)
		if !ok {
			return
		}
		date, ok := parseDateParam(w, chi.URLParam(r, "date"))
		if !ok {
			return
		}
		var req IntervalsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.ReplaceSpecialDateIntervals(r.Context(), edit.clinicID, date, req.Intervals, edit.actorID)
		writeCascade(w, log, r, res, err)
	}
}

func deleteWorkingHourRangeHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit, ok := parseClinicEdit(w, r)
		if !ok {
			return
		}
		date, ok := parseDateParam(w, chi.URLParam(r, "date"))
		if !ok {
			return
		}
		var req ClosureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, err := schedule.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "start", "start must be HH:MM")
			return
		}
		end, err := schedule.ParseTimeOfDay(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "end", "end must be HH:MM")
			return
		}

		res, err := svc.DeleteWorkingHourRange(r.Context(), edit.clinicID, date, start, end, edit.actorID)
		writeCascade(w, log, r, res, err)
	}
}

func markSpecialDateUnavailableHandler(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edit, ok := parseClinicEdit(w, r)
		if !ok {
			return
		}
		date, ok := parseDateParam(w, chi.URLParam(r, "date"))
		if !ok {
			return
		}

		res, err := svc.MarkSpecialDateUnavailable(r.Context(), edit.clinicID, date, edit.actorID)
		writeCascade(w, log, r, res, err)
	}
}
