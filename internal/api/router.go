package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service Service
	PgPool  pgPinger
	Redis   redisPinger
	Logger  *zap.Logger
	Metrics *metrics.Collector
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	svc := cfg.Service

	// Clinic availability and schedule edits
	r.Route("/clinics/{clinicID}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(svc, log))
		r.Put("/weekdays/{weekday}/intervals", replaceWeeklyIntervalsHandler(svc, log))
		r.Delete("/weekdays/{weekday}/intervals", markWeekdayUnavailableHandler(svc, log))
		r.Put("/dates/{date}/intervals", replaceSpecialDateIntervalsHandler(svc, log))
		r.Delete("/dates/{date}/intervals", markSpecialDateUnavailableHandler(svc, log))
		r.Post("/dates/{date}/closures", deleteWorkingHourRangeHandler(svc, log))
	})

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(svc, log))
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", getAppointmentHandler(svc, log))
		r.Post("/cancel", appointmentActionHandler(svc.Cancel, log))
		r.Post("/rebook", appointmentActionHandler(svc.Rebook, log))
		r.Post("/status", changeStatusHandler(svc, log))
		r.Get("/queue", queueHandler(svc, log))
	})

	return r
}
