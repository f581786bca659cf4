// Package metrics defines the Prometheus collectors for the risk engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's collectors so they can be injected and
// isolated per test registry.
type Metrics struct {
	AssessmentsTotal   *prometheus.CounterVec
	AlertsTotal        *prometheus.CounterVec
	AssessmentDuration prometheus.Histogram
	StoreFallbacks     prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Completed risk assessments by resulting level.",
		}, []string{"level"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_alerts_total",
			Help: "Fraud alerts created by type.",
		}, []string{"type"}),
		AssessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_assessment_duration_seconds",
			Help:    "Wall time of a full risk assessment.",
			Buckets: prometheus.DefBuckets,
		}),
		StoreFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "shared_store_fallbacks_total",
			Help: "Operations served by the in-process fallback tier.",
		}),
	}
}

// Default registers on the global registry.
func Default() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
