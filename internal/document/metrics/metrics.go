package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document verification module.
type Metrics struct {
	Uploaded        *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	AIDispatched    prometheus.Counter
	AIResults       *prometheus.CounterVec
	StaleAIVerdicts prometheus.Counter
}

// New creates a new Metrics instance with all document module metrics registered.
func New() *Metrics {
	return &Metrics{
		Uploaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_documents_uploaded_total",
			Help: "Total documents uploaded by type",
		}, []string{"type"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_documents_decisions_total",
			Help: "Total review decisions by outcome",
		}, []string{"outcome"}), // outcome: "approved", "rejected", "resubmission_required"

		AIDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onramp_documents_ai_dispatched_total",
			Help: "Total documents dispatched for automated verification",
		}),

		AIResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onramp_documents_ai_results_total",
			Help: "Total automated verification results by verdict",
		}, []string{"verdict"}), // verdict: "verified", "failed"

		StaleAIVerdicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onramp_documents_ai_stale_verdicts_total",
			Help: "Total automated verdicts dropped because the document moved on",
		}),
	}
}

func (m *Metrics) IncrementUploaded(docType string) {
	if m != nil {
		m.Uploaded.WithLabelValues(docType).Inc()
	}
}

func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementAIDispatched() {
	if m != nil {
		m.AIDispatched.Inc()
	}
}

func (m *Metrics) IncrementAIResult(verdict string) {
	if m != nil {
		m.AIResults.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) IncrementStaleAIVerdict() {
	if m != nil {
		m.StaleAIVerdicts.Inc()
	}
}
