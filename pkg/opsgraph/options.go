package opsgraph

import (
	"log/slog"
	"time"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/observability"
)

// engineConfig holds engine-wide execution settings.
type engineConfig struct {
	deadline       time.Duration
	callTimeout    time.Duration
	memoryTimeout  time.Duration
	collectionN    int
	maxSteps       int
	maxInputLen    int
	window         time.Duration
	payloadBudget  int
	ragLimit       int
	ragThreshold   float64
	memoryLimit    int
	memoryMinConf  float64
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		deadline:      5 * time.Minute,
		callTimeout:   30 * time.Second,
		memoryTimeout: 2 * time.Second,
		collectionN:   1,
		maxSteps:      50,
		maxInputLen:   8192,
		window:        time.Hour,
		payloadBudget: 64 * 1024,
		ragLimit:      5,
		ragThreshold:  0.6,
		memoryLimit:   5,
		memoryMinConf: 0.5,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithDeadline sets the overall wall-clock deadline per session run.
// Default: 5 minutes. Exceeding it forces a transition to the error
// handler with a timeout error kind.
func WithDeadline(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// WithCallTimeout sets the per-call timeout applied to every capability
// adapter invocation. Default: 30 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMemoryTimeout bounds the memory enhancer's search before
// categorization. The enhancer never blocks longer than this and degrades
// to a no-op on timeout. Default: 2 seconds.
func WithMemoryTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.memoryTimeout = d
		}
	}
}

// WithCollectionConcurrency sets the bounded fan-out width for the
// COLLECTION phase. 1 (the default) collects sources strictly
// sequentially with a checkpoint per source; higher values fan out with a
// join barrier and checkpoint once per batch.
func WithCollectionConcurrency(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.collectionN = n
		}
	}
}

// WithMaxSteps sets the maximum number of node executions per run.
// Default: 50. This is a safety net against routing bugs.
func WithMaxSteps(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithCollectionWindow sets the time window for data-source query plans.
// Default: 1 hour.
func WithCollectionWindow(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithPayloadBudget sets the serialized-size budget in bytes above which
// a source payload is reduced before storage. Default: 64 KiB.
func WithPayloadBudget(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.payloadBudget = n
		}
	}
}

// WithRAGSearch tunes the incident document search: per-query result
// limit and minimum relevance score.
func WithRAGSearch(limit int, scoreThreshold float64) Option {
	return func(c *engineConfig) {
		if limit > 0 {
			c.ragLimit = limit
		}
		if scoreThreshold > 0 {
			c.ragThreshold = scoreThreshold
		}
	}
}

// WithMemorySearch tunes the enhancer's memory lookup: result limit and
// confidence threshold.
func WithMemorySearch(limit int, minConfidence float64) Option {
	return func(c *engineConfig) {
		if limit > 0 {
			c.memoryLimit = limit
		}
		if minConfidence > 0 {
			c.memoryMinConf = minConfidence
		}
	}
}

// WithLogger sets the structured logger. Nil disables engine logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OTel span creation using the given span manager.
func WithTracing(spans observability.SpanManager) Option {
	return func(c *engineConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}
