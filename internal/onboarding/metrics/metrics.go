package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the onboarding module.
type Metrics struct {
	// Applications created, by segment
	ApplicationsCreated *prometheus.CounterVec

	// Transitions applied and denied, by target status
	TransitionsApplied *prometheus.CounterVec
	TransitionsDenied  *prometheus.CounterVec

	// Provider call latencies by provider and call
	ProviderLatency *prometheus.HistogramVec

	// Optimistic-lock conflicts surfaced to callers
	VersionConflicts prometheus.Counter
}

// New creates a new Metrics instance with all onboarding module metrics registered.
func New() *Metrics {
	return &Metrics{
		ApplicationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_onboarding_applications_created_total",
			Help: "Total applications created by customer segment",
		}, []string{"segment"}),

		TransitionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_onboarding_transitions_total",
			Help: "Total accepted application status transitions by target status",
		}, []string{"to"}),

		TransitionsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_onboarding_transitions_denied_total",
			Help: "Total denied application status transitions by requested target",
		}, []string{"to"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onramp_onboarding_provider_duration_seconds",
			Help:    "Duration of external provider calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "call"}), // provider: "kyc", "auth", "billing"

		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onramp_onboarding_version_conflicts_total",
			Help: "Total optimistic-concurrency conflicts returned to callers",
		}),
	}
}

// IncrementCreated records a new application.
func (m *Metrics) IncrementCreated(segment string) {
	if m != nil {
		m.ApplicationsCreated.WithLabelValues(segment).Inc()
	}
}

// IncrementTransition records an accepted transition.
func (m *Metrics) IncrementTransition(to string) {
	if m != nil {
		m.TransitionsApplied.WithLabelValues(to).Inc()
	}
}

// IncrementDenied records a refused transition.
func (m *Metrics) IncrementDenied(to string) {
	if m != nil {
		m.TransitionsDenied.WithLabelValues(to).Inc()
	}
}

// ObserveProviderLatency records the duration of one provider call.
func (m *Metrics) ObserveProviderLatency(provider, call string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider, call).Observe(d.Seconds())
	}
}

// IncrementVersionConflict records an optimistic-lock conflict.
func (m *Metrics) IncrementVersionConflict() {
	if m != nil {
		m.VersionConflicts.Inc()
	}
}
