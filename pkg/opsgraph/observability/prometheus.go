package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements MetricsRecorder using prometheus
// client_golang collectors. Register it against a registry and expose it
// with promhttp.
type PrometheusRecorder struct {
	nodeExecutions  *prometheus.CounterVec
	nodeErrors      *prometheus.CounterVec
	nodeLatency     *prometheus.HistogramVec
	sessionRuns     *prometheus.CounterVec
	sessionLatency  *prometheus.HistogramVec
	checkpointSize  *prometheus.HistogramVec
	capabilityCalls *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder and registers its collectors
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		nodeExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_node_executions_total",
				Help: "Total number of node executions",
			},
			[]string{"node"},
		),
		nodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_node_errors_total",
				Help: "Total number of node execution errors",
			},
			[]string{"node"},
		),
		nodeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgraph_node_duration_seconds",
				Help:    "Node execution duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		sessionRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_session_runs_total",
				Help: "Total number of workflow session runs",
			},
			[]string{"workflow_class", "outcome"},
		),
		sessionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgraph_session_duration_seconds",
				Help:    "Session run duration",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow_class"},
		),
		checkpointSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgraph_checkpoint_size_bytes",
				Help:    "Checkpoint size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"node"},
		),
		capabilityCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_capability_calls_total",
				Help: "Total number of external capability calls",
			},
			[]string{"capability", "outcome"},
		),
	}

	collectors := []prometheus.Collector{
		r.nodeExecutions, r.nodeErrors, r.nodeLatency,
		r.sessionRuns, r.sessionLatency, r.checkpointSize, r.capabilityCalls,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordNodeExecution implements MetricsRecorder.
func (r *PrometheusRecorder) RecordNodeExecution(_ context.Context, node string, duration time.Duration, err error) {
	r.nodeExecutions.WithLabelValues(node).Inc()
	r.nodeLatency.WithLabelValues(node).Observe(duration.Seconds())
	if err != nil {
		r.nodeErrors.WithLabelValues(node).Inc()
	}
}

// RecordSessionRun implements MetricsRecorder.
func (r *PrometheusRecorder) RecordSessionRun(_ context.Context, class string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	r.sessionRuns.WithLabelValues(class, outcome).Inc()
	r.sessionLatency.WithLabelValues(class).Observe(duration.Seconds())
}

// RecordCheckpoint implements MetricsRecorder.
func (r *PrometheusRecorder) RecordCheckpoint(_ context.Context, node string, sizeBytes int64) {
	r.checkpointSize.WithLabelValues(node).Observe(float64(sizeBytes))
}

// RecordCapabilityCall implements MetricsRecorder.
func (r *PrometheusRecorder) RecordCapabilityCall(_ context.Context, capability string, _ time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.capabilityCalls.WithLabelValues(capability, outcome).Inc()
}
