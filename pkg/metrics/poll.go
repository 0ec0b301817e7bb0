package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollMetrics records order status polling activity.
type PollMetrics struct {
	attempts      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	backendErrors *prometheus.CounterVec
}

// NewPollMetrics registers the poller metrics on the provided registerer.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	if reg == nil {
		return &PollMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paytrack_poll_attempts_total",
		Help: "Order status queries issued by the poller, by result.",
	}, []string{"result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paytrack_poll_outcomes_total",
		Help: "Poll sessions that ended, by terminal state.",
	}, []string{"state"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paytrack_poll_session_duration_seconds",
		Help:    "Wall time from poll start to terminal state.",
		Buckets: []float64{0.5, 1, 3, 6, 15, 30, 60, 120},
	}, []string{"state"})
	backendErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paytrack_backend_errors_total",
		Help: "Failed calls to the payment backend, by error kind.",
	}, []string{"kind"})
	reg.MustRegister(attempts, outcomes, duration, backendErrors)
	return &PollMetrics{
		attempts:      attempts,
		outcomes:      outcomes,
		duration:      duration,
		backendErrors: backendErrors,
	}
}

// ObserveAttempt counts a single status query.
func (p *PollMetrics) ObserveAttempt(result string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveOutcome counts a finished session and records how long it ran.
func (p *PollMetrics) ObserveOutcome(state string, elapsed time.Duration) {
	if p == nil || p.outcomes == nil {
		return
	}
	label := normalizeLabel(state)
	p.outcomes.WithLabelValues(label).Inc()
	p.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// IncBackendError counts a failed backend call.
func (p *PollMetrics) IncBackendError(kind string) {
	if p == nil || p.backendErrors == nil {
		return
	}
	p.backendErrors.WithLabelValues(normalizeLabel(kind)).Inc()
}
