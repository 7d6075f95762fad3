package suggest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts model attempts and final suggestion outcomes.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Results  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grievanceos_ai_model_attempts_total",
				Help: "Calls to the generative model by model and outcome.",
			},
			[]string{"model", "outcome"},
		),
		Results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grievanceos_ai_suggestions_total",
				Help: "Department suggestion requests by result.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) attempt(model, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) result(result string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(result).Inc()
}
