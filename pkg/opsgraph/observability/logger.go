// Package observability provides structured logging, metrics, and
// distributed tracing for the workflow engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds workflow context to a logger.
// Returns a new logger with session_id and node fields.
func EnrichLogger(logger *slog.Logger, sessionID, node string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("node", node),
	)
}

// LogSessionStart logs the start of a workflow session run.
func LogSessionStart(logger *slog.Logger, sessionID string, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("workflow session starting",
		slog.String("session_id", sessionID),
		slog.Bool("resumed", resumed),
	)
}

// LogSessionComplete logs successful session completion.
func LogSessionComplete(logger *slog.Logger, sessionID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("workflow session completed",
		slog.String("session_id", sessionID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogSessionError logs session failure.
func LogSessionError(logger *slog.Logger, sessionID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, node string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node", node),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, node string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node", node),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a node-level failure.
func LogNodeError(logger *slog.Logger, node string, err error, fatal bool) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node", node),
		slog.String("error", err.Error()),
		slog.Bool("fatal", fatal),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, node string, sequence, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node", node),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogMemoryDegraded logs a swallowed memory-subsystem failure.
func LogMemoryDegraded(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("memory capability degraded",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
