// Package obs constructs the ambient logging and metrics stack shared by
// every component: a zap.Logger and a dedicated (non-global)
// prometheus.Registry. Following internal/observability/metrics.go's
// pattern in the teacher repo, no HTTP exposition server is started here —
// metrics HTTP endpoints are explicitly out of scope for this module; the
// host process may mount the returned Registry itself.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics holds every counter/gauge/histogram the core instruments,
// registered on a dedicated registry so multiple Core instances in the
// same process never collide on the global default registry.
type Metrics struct {
	Registry *prometheus.Registry

	Accepted            prometheus.Counter
	Rejected            *prometheus.CounterVec // labeled by violation kind
	Rollbacks           prometheus.Counter
	AuditDropped        prometheus.Counter
	SafeModeTransitions *prometheus.CounterVec // labeled by reason
	TelemetryOverwrites prometheus.Gauge       // mirrors Ring.OverwriteCount's running total
	SPSAIterationLatency prometheus.Histogram
	CurrentGeneration   prometheus.Gauge
	SafeModeActive      prometheus.Gauge
}

// NewMetrics constructs and registers every metric on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "applies_accepted_total",
			Help: "Total accepted proposal applies.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "applies_rejected_total",
			Help: "Total rejected proposal applies, by violation kind.",
		}, []string{"violation"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rollbacks_total",
			Help: "Total explicit rollback operations.",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_events_dropped_total",
			Help: "Total audit events dropped due to queue overflow.",
		}),
		SafeModeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "safe_mode_transitions_total",
			Help: "Total SafeMode enter/exit transitions, by reason.",
		}, []string{"reason", "transition"}),
		TelemetryOverwrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "telemetry_overwrites_total",
			Help: "Total telemetry digests overwritten before being read.",
		}),
		SPSAIterationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "spsa_iteration_seconds",
			Help:    "Wall-clock duration of a single orchestrator iteration.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		CurrentGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "config_generation",
			Help: "Current published ConfigSnapshot generation.",
		}),
		SafeModeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "safe_mode_active",
			Help: "1 if SafeMode is currently latched, 0 otherwise.",
		}),
	}
	reg.MustRegister(
		m.Accepted, m.Rejected, m.Rollbacks, m.AuditDropped,
		m.SafeModeTransitions, m.TelemetryOverwrites, m.SPSAIterationLatency,
		m.CurrentGeneration, m.SafeModeActive,
	)
	return m
}

// NewLogger builds a zap.Logger the way cmd/octoreflex/main.go does:
// production config by default, development config for verbose/local runs.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
