package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the refinement pipeline.
type Metrics struct {
	SessionsTotal     *prometheus.CounterVec
	PassesTotal       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	LayerActivations  *prometheus.CounterVec
	LayerFailures     *prometheus.CounterVec
	StepFailures      *prometheus.CounterVec
	ContainmentTotal  *prometheus.CounterVec
	EmergenceAlerts   prometheus.Counter
	ActiveSessions    prometheus.Gauge
	AnchorSetSize     prometheus.Gauge
	FinalConfidence   prometheus.Histogram
	AuditWriteErrors  prometheus.Counter
	AnchorFlushErrors prometheus.Counter
	AnchorsDropped    prometheus.Counter
}

// NewMetrics registers the pipeline collectors once per process.
//
// Metrics:
//   - refinery_sessions_total{status} - sessions by terminal status
//   - refinery_passes_total{status} - passes by pass status
//   - refinery_pass_duration_seconds - wall time of one pass
//   - refinery_layer_activations_total{layer} - gated layer dispatches
//   - refinery_layer_failures_total{layer} - layers that returned an error
//   - refinery_step_failures_total{step} - workflow steps that failed
//   - refinery_containment_total{action} - containment decisions other than none
//   - refinery_emergence_alerts_total - emergence alerts raised
//   - refinery_active_sessions - sessions currently running
//   - refinery_anchor_set_size - keys held by the process-wide anchor set
//   - refinery_anchors_dropped_total - buffered anchors discarded on overflow
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_sessions_total",
					Help: "Total number of refinement sessions by terminal status",
				},
				[]string{"status"},
			),
			PassesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_passes_total",
					Help: "Total number of refinement passes by status",
				},
				[]string{"status"},
			),
			PassDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "refinery_pass_duration_seconds",
					Help:    "Duration of a refinement pass in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
				},
			),
			LayerActivations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_layer_activations_total",
					Help: "Total number of gated layer dispatches",
				},
				[]string{"layer"},
			),
			LayerFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_layer_failures_total",
					Help: "Total number of gated layers that failed",
				},
				[]string{"layer"},
			),
			StepFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_step_failures_total",
					Help: "Total number of workflow steps that failed",
				},
				[]string{"step"},
			),
			ContainmentTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "refinery_containment_total",
					Help: "Total number of containment actions taken",
				},
				[]string{"action"},
			),
			EmergenceAlerts: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "refinery_emergence_alerts_total",
					Help: "Total number of emergence alerts raised",
				},
			),
			ActiveSessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "refinery_active_sessions",
					Help: "Number of sessions currently running",
				},
			),
			AnchorSetSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "refinery_anchor_set_size",
					Help: "Number of keys in the process-wide memory anchor set",
				},
			),
			FinalConfidence: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "refinery_final_confidence",
					Help:    "Final confidence of finished sessions",
					Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
				},
			),
			AuditWriteErrors: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "refinery_audit_write_errors_total",
					Help: "Total number of audit entries that could not be written",
				},
			),
			AnchorFlushErrors: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "refinery_anchor_flush_errors_total",
					Help: "Total number of failed anchor store flushes",
				},
			),
			AnchorsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "refinery_anchors_dropped_total",
					Help: "Total number of buffered anchors dropped before reaching the store",
				},
			),
		}
	})
	return globalMetrics
}
