package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mesto",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mesto",
			Name:      "reservation_transitions_total",
			Help:      "Reservation state transitions by target status.",
		},
		[]string{"status"},
	)

	expiryFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mesto",
			Name:      "expiry_timers_fired_total",
			Help:      "SLA timers fired, split by whether the reservation actually expired.",
		},
		[]string{"outcome"},
	)

	gatewayRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mesto",
			Name:      "gateway_retries_total",
			Help:      "Payment gateway calls retried after a transient failure.",
		},
	)

	realtimeDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mesto",
			Name:      "realtime_deliveries_total",
			Help:      "Events delivered to realtime connections.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, expiryFired, gatewayRetries, realtimeDeliveries)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncTransition counts a reservation entering the given status.
func IncTransition(status string) {
	transitions.WithLabelValues(status).Inc()
}

// IncExpiryFired counts an SLA timer fire. Outcome is "expired" or "noop".
func IncExpiryFired(outcome string) {
	expiryFired.WithLabelValues(outcome).Inc()
}

func IncGatewayRetry() {
	gatewayRetries.Inc()
}

func IncRealtimeDelivery() {
	realtimeDeliveries.Inc()
}
