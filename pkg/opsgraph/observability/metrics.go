package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records workflow engine metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder() for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, node string, duration time.Duration, err error)

	// RecordSessionRun records a completed session run.
	RecordSessionRun(ctx context.Context, class string, success bool, duration time.Duration)

	// RecordCheckpoint records a checkpoint save.
	RecordCheckpoint(ctx context.Context, node string, sizeBytes int64)

	// RecordCapabilityCall records one external capability invocation.
	RecordCapabilityCall(ctx context.Context, capability string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions  metric.Int64Counter
	nodeLatency     metric.Float64Histogram
	nodeErrors      metric.Int64Counter
	sessionRuns     metric.Int64Counter
	sessionLatency  metric.Float64Histogram
	checkpointSize  metric.Int64Histogram
	capabilityCalls metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("opsgraph")

	nodeExecutions, err := meter.Int64Counter("opsgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("opsgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("opsgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	sessionRuns, err := meter.Int64Counter("opsgraph.session.runs",
		metric.WithDescription("Number of workflow session runs"),
	)
	if err != nil {
		return nil, err
	}

	sessionLatency, err := meter.Float64Histogram("opsgraph.session.latency_ms",
		metric.WithDescription("Session run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("opsgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	capabilityCalls, err := meter.Int64Counter("opsgraph.capability.calls",
		metric.WithDescription("Number of external capability calls"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions:  nodeExecutions,
		nodeLatency:     nodeLatency,
		nodeErrors:      nodeErrors,
		sessionRuns:     sessionRuns,
		sessionLatency:  sessionLatency,
		checkpointSize:  checkpointSize,
		capabilityCalls: capabilityCalls,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, node string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node", node),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSessionRun records a session run.
func (m *otelMetrics) RecordSessionRun(ctx context.Context, class string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow_class", class),
		attribute.Bool("success", success),
	}
	m.sessionRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sessionLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, node string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(
		attribute.String("node", node),
	))
}

// RecordCapabilityCall records one capability invocation.
func (m *otelMetrics) RecordCapabilityCall(ctx context.Context, capability string, duration time.Duration, err error) {
	m.capabilityCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.Bool("error", err != nil),
	))
}
