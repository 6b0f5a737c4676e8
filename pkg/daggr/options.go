package daggr

import (
	"log/slog"

	"github.com/gaganchapa/daggr/pkg/daggr/history"
	"github.com/gaganchapa/daggr/pkg/daggr/observability"
)

// executorConfig holds configuration for graph execution.
type executorConfig struct {
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	history        history.Store
	scatterWorkers int
}

// defaultExecutorConfig returns the default execution configuration:
// no logging, no-op metrics and tracing, no history, sequential scatter.
func defaultExecutorConfig() executorConfig {
	return executorConfig{
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		scatterWorkers: 1,
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithLogger sets the structured logger for run, node, and scatter events.
// A nil logger disables logging (the default).
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics via the global meter provider.
func WithMetrics() ExecutorOption {
	return func(c *executorConfig) {
		c.metrics = observability.NewMetricsRecorder()
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) ExecutorOption {
	return func(c *executorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans for runs, nodes, and scatter
// items via the global tracer provider.
func WithTracing() ExecutorOption {
	return func(c *executorConfig) {
		c.tracingEnabled = true
		c.spans = observability.NewSpanManager()
	}
}

// WithHistory records every node result to the given store, keyed by run
// id. History writes are best-effort: failures are logged, never fatal.
func WithHistory(store history.Store) ExecutorOption {
	return func(c *executorConfig) {
		c.history = store
	}
}

// WithScatterWorkers sets the number of workers for fan-out item execution.
// Default: 1 (items run strictly sequentially in source order).
//
// With n > 1, items execute concurrently on a bounded pool. Result order in
// the scatter envelope always matches source-item order regardless of
// completion order, and one item's failure never cancels its siblings. The
// node's strategy must tolerate concurrent calls.
func WithScatterWorkers(n int) ExecutorOption {
	return func(c *executorConfig) {
		if n > 0 {
			c.scatterWorkers = n
		}
	}
}
