package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic_scheduling"

// Collector holds the service's Prometheus instruments. A nil *Collector is valid and
// records nothing, which keeps tests and tools free of registry setup.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	bookingsTotal       *prometheus.CounterVec
	cancellationsTotal  *prometheus.CounterVec
	statusChangesTotal  *prometheus.CounterVec
	cascadeDuration     *prometheus.HistogramVec
	remindersScheduled  prometheus.Counter
	remindersDispatched *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	lockBypassed        prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome (booked, slot_conflict, invalid_slot, error, ...).",
		}, []string{"outcome"}),

		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Appointments cancelled, by reason.",
		}, []string{"reason"}),

		statusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "status_changes_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"status"}),

		cascadeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "cascade_duration_seconds",
			Help:      "Duration of schedule-mutation cascades.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		remindersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "scheduled_total",
			Help:      "Reminder jobs registered with the delayed-task queue.",
		}),

		remindersDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "dispatched_total",
			Help:      "Reminder jobs processed by the worker, by result.",
		}, []string{"result"}),

		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications handed to the notifier, by status.",
		}, []string{"status"}),

		lockBypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "bypassed_total",
			Help:      "Critical sections run without the distributed lock because Redis was unreachable.",
		}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.bookingsTotal,
		c.cancellationsTotal,
		c.statusChangesTotal,
		c.cascadeDuration,
		c.remindersScheduled,
		c.remindersDispatched,
		c.notificationsTotal,
		c.lockBypassed,
	)
	return c
}

func (c *Collector) ObserveRequest(method, route, status string, seconds float64) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, route, status).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (c *Collector) BookingOutcome(outcome string) {
	if c == nil {
		return
	}
	c.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) Cancelled(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cancellationsTotal.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) StatusChanged(status string) {
	if c == nil {
		return
	}
	c.statusChangesTotal.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveCascade(operation string, seconds float64) {
	if c == nil {
		return
	}
	c.cascadeDuration.WithLabelValues(operation).Observe(seconds)
}

func (c *Collector) ReminderScheduled() {
	if c == nil {
		return
	}
	c.remindersScheduled.Inc()
}

func (c *Collector) ReminderDispatched(result string) {
	if c == nil {
		return
	}
	c.remindersDispatched.WithLabelValues(result).Inc()
}

func (c *Collector) NotificationSent(status string) {
	if c == nil {
		return
	}
	c.notificationsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) LockBypassed() {
	if c == nil {
		return
	}
	c.lockBypassed.Inc()
}

// Handler serves the metrics of the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
