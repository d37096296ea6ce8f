package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	reservationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_operations_total",
			Help:      "Reservation store operations by name and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Slot availability checks by result.",
		},
		[]string{"result"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_tasks_total",
			Help:      "Spreadsheet sync tasks by final state.",
		},
		[]string{"state"},
	)

	dbRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_transient_retries_total",
			Help:      "Transactions retried after a busy or locked database.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, reservationOps, availabilityChecks, syncTasks, dbRetries)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(endpoint string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
	httpDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// IncReservationOp counts a reservation store operation; outcome is "ok" or an error kind.
func IncReservationOp(operation, outcome string) {
	reservationOps.WithLabelValues(operation, outcome).Inc()
}

func IncAvailability(available bool) {
	if available {
		availabilityChecks.WithLabelValues("free").Inc()
		return
	}
	availabilityChecks.WithLabelValues("taken").Inc()
}

func IncSyncTask(state string) {
	syncTasks.WithLabelValues(state).Inc()
}

func IncDBRetry() {
	dbRetries.Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
