package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reserveAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "reserve_attempts_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "cancellations_total",
			Help:      "Booking cancellations by actor.",
		},
		[]string{"actor"},
	)

	commitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "slotbook",
			Name:      "schedule_commit_seconds",
			Help:      "Duration of per-schedule atomic commits.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reserveAttempts, cancellations, commitDuration, httpRequests)
	})
}

// IncReserve increments the reservation counter for an outcome label
// (success, capacity_exceeded, duplicate, error, ...).
func IncReserve(outcome string) {
	reserveAttempts.WithLabelValues(outcome).Inc()
}

// IncCancellation increments the cancellation counter for an actor label
// (owner, admin, cascade).
func IncCancellation(actor string) {
	cancellations.WithLabelValues(actor).Inc()
}

// ObserveCommit records the duration of one schedule commit in seconds.
func ObserveCommit(seconds float64) {
	commitDuration.Observe(seconds)
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
