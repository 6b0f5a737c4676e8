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

// MetricsRecorder records daggr execution metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, node string, duration time.Duration, err error)

	// RecordGraphRun records a whole-graph run completion.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordScatterItem records one fan-out item execution.
	RecordScatterItem(ctx context.Context, node string, duration time.Duration, err error)

	// RecordHistoryWrite records a run-history write and its payload size.
	RecordHistoryWrite(ctx context.Context, node string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	scatterItems   metric.Int64Counter
	scatterErrors  metric.Int64Counter
	itemLatency    metric.Float64Histogram
	historyBytes   metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("daggr")

	nodeExecutions, err := meter.Int64Counter("daggr.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("daggr.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("daggr.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	graphRuns, err := meter.Int64Counter("daggr.graph.runs",
		metric.WithDescription("Number of whole-graph runs"),
	)
	if err != nil {
		return nil, err
	}

	graphLatency, err := meter.Float64Histogram("daggr.graph.latency_ms",
		metric.WithDescription("Whole-graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	scatterItems, err := meter.Int64Counter("daggr.scatter.items",
		metric.WithDescription("Number of fan-out item executions"),
	)
	if err != nil {
		return nil, err
	}

	scatterErrors, err := meter.Int64Counter("daggr.scatter.item_errors",
		metric.WithDescription("Number of fan-out item failures"),
	)
	if err != nil {
		return nil, err
	}

	itemLatency, err := meter.Float64Histogram("daggr.scatter.item_latency_ms",
		metric.WithDescription("Fan-out item latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	historyBytes, err := meter.Int64Histogram("daggr.history.write_bytes",
		metric.WithDescription("Size of serialized results written to the history store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		graphRuns:      graphRuns,
		graphLatency:   graphLatency,
		scatterItems:   scatterItems,
		scatterErrors:  scatterErrors,
		itemLatency:    itemLatency,
		historyBytes:   historyBytes,
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

// RecordGraphRun records a whole-graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.graphRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordScatterItem records one fan-out item execution.
func (m *otelMetrics) RecordScatterItem(ctx context.Context, node string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node", node),
	}
	m.scatterItems.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.itemLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.scatterErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordHistoryWrite records a run-history write.
func (m *otelMetrics) RecordHistoryWrite(ctx context.Context, node string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("node", node),
	}
	m.historyBytes.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
