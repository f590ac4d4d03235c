// Package metrics provides Prometheus observability for the screening
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks screen volume, provider call health and match outcomes.
// Components treat a nil *Metrics as "metrics disabled", so tests can
// skip registration entirely.
type Metrics struct {
	Screens                *prometheus.CounterVec
	ProviderCalls          *prometheus.CounterVec
	ProviderCallDuration   *prometheus.HistogramVec
	RegistryLookupFailures prometheus.Counter
	MatchesComputed        *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
// Call once per process.
func New() *Metrics {
	return &Metrics{
		Screens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_screens_total",
			Help: "Total screens completed, by mode (live or synthetic)",
		}, []string{"mode"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_provider_calls_total",
			Help: "Total verification product calls, by product and outcome",
		}, []string{"product", "outcome"}),
		ProviderCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kestrel_provider_call_seconds",
			Help:    "Duration of verification product calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"product"}),
		RegistryLookupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_registry_lookup_failures_total",
			Help: "Wanted-persons lookups that failed and were recorded as ambiguous",
		}),
		MatchesComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_matches_computed_total",
			Help: "Match results computed, by color tier",
		}, []string{"color"}),
	}
}

// ScreenCompleted records a finished screen. Mode is "live" or "synthetic".
func (m *Metrics) ScreenCompleted(mode string) {
	if m == nil {
		return
	}
	m.Screens.WithLabelValues(mode).Inc()
}

// ObserveProviderCall records one product call's outcome and duration.
// Call with time.Now() at the start of the call.
func (m *Metrics) ObserveProviderCall(product, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(product, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(product).Observe(time.Since(start).Seconds())
}

// RegistryLookupFailed records an ambiguous wanted-persons lookup.
func (m *Metrics) RegistryLookupFailed() {
	if m == nil {
		return
	}
	m.RegistryLookupFailures.Inc()
}

// MatchComputed records a computed match result by color tier.
func (m *Metrics) MatchComputed(color string) {
	if m == nil {
		return
	}
	m.MatchesComputed.WithLabelValues(color).Inc()
}
