// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker states reported by the render breaker gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics provides observability for certificate issuance and verification.
type Metrics struct {
	// Certificates persisted by event type and artifact format
	CertificatesGenerated *prometheus.CounterVec

	// Engine render latency by outcome
	RenderDuration *prometheus.HistogramVec

	// Renders that fell back to markup persistence
	RenderFallbacks prometheus.Counter

	// Render breaker state
	BreakerState prometheus.Gauge

	// Verification lookups by outcome
	Verifications *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CertificatesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_certificates_generated_total",
			Help: "Total certificates generated by event type and artifact format",
		}, []string{"event_type", "format"}),

		RenderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_certificate_render_duration_seconds",
			Help:    "Duration of document engine renders by outcome",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}), // outcome: "ok", "error"

		RenderFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_certificate_render_fallbacks_total",
			Help: "Total certificates persisted as markup because the document engine failed",
		}),

		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registry_certificate_render_breaker_state",
			Help: "Render breaker state (0 closed, 1 half-open, 2 open)",
		}),

		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_certificate_verifications_total",
			Help: "Total verification lookups by outcome",
		}, []string{"outcome"}), // outcome: "verified", "not_found", "invalid_signature", "error"
	}
}

// IncrementGenerated records a persisted certificate.
func (m *Metrics) IncrementGenerated(eventType, format string) {
	if m != nil {
		m.CertificatesGenerated.WithLabelValues(eventType, format).Inc()
	}
}

// ObserveRender records the duration of one engine render.
func (m *Metrics) ObserveRender(outcome string, d time.Duration) {
	if m != nil {
		m.RenderDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// IncrementFallback records a markup fallback.
func (m *Metrics) IncrementFallback() {
	if m != nil {
		m.RenderFallbacks.Inc()
	}
}

// SetBreakerState records the render breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m != nil {
		m.BreakerState.Set(float64(state))
	}
}

// IncrementVerification records a verification outcome.
func (m *Metrics) IncrementVerification(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}
