package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

const (
	actorHeader  = "X-Actor-ID"
	maxBodyBytes = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, field, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field, Details: details})
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindInvalidSlot:       http.StatusUnprocessableEntity,
	apperr.KindSlotConflict:      http.StatusConflict,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindInvalidState:      http.StatusConflict,
	apperr.KindTooLate:           http.StatusUnprocessableEntity,
	apperr.KindTooEarly:          http.StatusUnprocessableEntity,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindNotFound:          http.StatusNotFound,
}

// writeServiceError renders domain errors by kind. Anything else is an internal error
// and is logged, not echoed.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		status, ok := statusByKind[e.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		writeError(w, status, string(e.Kind), e.Field, e.Message)
		return
	}

	log.Error("request failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "", "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

// actorID reads the caller identity supplied by the upstream gateway.
func actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(actorHeader)
	if raw == "" {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "actor_id", actorHeader+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "actor_id", actorHeader+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
