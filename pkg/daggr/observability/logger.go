// Package observability provides structured logging, metrics, and tracing
// for daggr graph execution.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log helper tolerates a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, graphName, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("graph", graphName),
		slog.String("run_id", runID),
	)
}

// LogRunComplete logs successful graph run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
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

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, node string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node", node),
		slog.String("error", err.Error()),
	)
}

// LogScatterStart logs the start of a fan-out execution.
func LogScatterStart(logger *slog.Logger, node string, itemCount int) {
	if logger == nil {
		return
	}
	logger.Debug("scatter starting",
		slog.String("node", node),
		slog.Int("items", itemCount),
	)
}

// LogScatterItemError logs a single fan-out item failure. Item failures
// are isolated, so this is a warning rather than an error.
func LogScatterItemError(logger *slog.Logger, node string, index int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("scatter item failed",
		slog.String("node", node),
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)
}

// LogScatterComplete logs fan-out completion, including how many items
// ended in an error sentinel.
func LogScatterComplete(logger *slog.Logger, node string, itemCount, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("scatter completed",
		slog.String("node", node),
		slog.Int("items", itemCount),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogHistoryError logs a history-store failure (non-fatal).
func LogHistoryError(logger *slog.Logger, node string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("history write failed",
		slog.String("node", node),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
