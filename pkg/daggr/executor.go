package daggr

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaganchapa/daggr/pkg/daggr/observability"
)

// Executor drives a Graph: it resolves each node's inputs from upstream
// results and user overrides, invokes the node's execution strategy, and
// accumulates results, including the nested scatter/gather sub-execution.
//
// One Executor owns one result store. Execution is synchronous and
// single-flighted; the only optional concurrency is the bounded scatter
// worker pool, which affects fan-out items of a single node. The Graph is
// treated as read-only while the Executor runs.
type Executor struct {
	graph *Graph
	cfg   executorConfig

	results map[string]Value
	runID   string
}

// NewExecutor creates an Executor for the graph.
func NewExecutor(g *Graph, opts ...ExecutorOption) *Executor {
	if g == nil {
		panic("daggr: executor requires a non-nil graph")
	}
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{
		graph:   g,
		cfg:     cfg,
		results: make(map[string]Value),
	}
}

// RunID returns the identifier of the current run, or "" before any
// execution.
func (ex *Executor) RunID() string { return ex.runID }

// Result returns the stored result for a node in the current run.
func (ex *Executor) Result(name string) (Value, bool) {
	v, ok := ex.results[name]
	return v, ok
}

// Results returns a copy of the result store.
func (ex *Executor) Results() map[string]Value {
	out := make(map[string]Value, len(ex.results))
	for k, v := range ex.results {
		out[k] = v
	}
	return out
}

// ExecuteAll validates the graph, computes the run order, resets the
// result store, and executes every node in order.
//
// entry maps node name to that node's run-time overrides: either a
// map[string]any keyed by input port, or a bare value bound to the node's
// first input port.
//
// Structural errors (validation, cycles) fail fast before any node runs.
// A node execution error aborts the remaining order; the results
// accumulated so far are returned alongside the error.
func (ex *Executor) ExecuteAll(ctx context.Context, entry map[string]any) (results map[string]Value, runErr error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	if err := ex.graph.Validate(ctx); err != nil {
		return nil, err
	}
	order, err := ex.graph.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	ex.results = make(map[string]Value)
	ex.runID = uuid.NewString()

	startTime := time.Now()
	observability.LogRunStart(ex.cfg.logger, ex.graph.Name(), ex.runID)

	execCtx := ctx
	var runSpan trace.Span
	if ex.cfg.tracingEnabled {
		execCtx, runSpan = ex.cfg.spans.StartRunSpan(ctx, ex.graph.Name(), ex.runID)
		defer func() {
			ex.cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	nodeCount := 0
	lastNode := ""
	for _, name := range order {
		node, _ := ex.graph.Node(name)
		lastNode = name
		if _, err := ex.executeNode(execCtx, node, coerceOverrides(node, entry[name])); err != nil {
			runErr = err
			break
		}
		nodeCount++
	}

	duration := time.Since(startTime)
	ex.cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

	durationMs := float64(duration.Milliseconds())
	if runErr != nil {
		observability.LogRunError(ex.cfg.logger, ex.runID, runErr, durationMs, lastNode)
		return ex.Results(), runErr
	}
	observability.LogRunComplete(ex.cfg.logger, ex.runID, durationMs, nodeCount)
	return ex.Results(), nil
}

// ExecuteNode runs a single node against whatever results are already in
// the store and returns the stored result. Callers wanting a consistent
// full result are responsible for having run the node's dependencies.
//
// overrides is a map keyed by input port; it wins over fixed inputs,
// component fallbacks, and wire values.
func (ex *Executor) ExecuteNode(ctx context.Context, name string, overrides map[string]any) (Value, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	node, ok := ex.graph.Node(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	if err := node.ResolvePorts(ctx); err != nil {
		return nil, &NodeError{Node: name, Op: "resolve", Err: err}
	}
	if ex.runID == "" {
		ex.runID = uuid.NewString()
	}
	return ex.executeNode(ctx, node, overrides)
}

// executeNode dispatches to scattered or plain execution and records the
// result.
func (ex *Executor) executeNode(ctx context.Context, node Node, overrides map[string]any) (Value, error) {
	name := node.Name()
	if edge := ex.scatteredInputEdge(name); edge != nil {
		return ex.executeScattered(ctx, node, edge, overrides)
	}

	wire := ex.resolveWireInputs(name)
	inputs := ex.assembleInputs(node, wire, overrides)

	observability.LogNodeStart(ex.cfg.logger, name)
	nodeCtx := ctx
	var nodeSpan trace.Span
	if ex.cfg.tracingEnabled {
		nodeCtx, nodeSpan = ex.cfg.spans.StartNodeSpan(ctx, name)
	}

	nodeStart := time.Now()
	result, err := runStrategy(nodeCtx, node, inputs)
	nodeDuration := time.Since(nodeStart)

	ex.cfg.metrics.RecordNodeExecution(nodeCtx, name, nodeDuration, err)
	if ex.cfg.tracingEnabled {
		ex.cfg.spans.EndSpanWithError(nodeSpan, err)
	}

	if err != nil {
		observability.LogNodeError(ex.cfg.logger, name, err)
		return nil, err
	}
	observability.LogNodeComplete(ex.cfg.logger, name, float64(nodeDuration.Milliseconds()))

	ex.results[name] = result
	ex.recordHistory(ctx, name, result)
	return result, nil
}

// runStrategy invokes the node's execution strategy with panic recovery.
// A plain error is wrapped in *NodeError; a panic surfaces as *PanicError
// with the stack at the point of panic.
func runStrategy(ctx context.Context, node Node, inputs map[string]any) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{
				Node:  node.Name(),
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()

	v, execErr := node.execute(ctx, inputs)
	if execErr != nil {
		return nil, &NodeError{Node: node.Name(), Op: "execute", Err: execErr}
	}
	return v, nil
}

// resolveWireInputs assembles a node's inputs from its incoming edges and
// the result store. Scattered edges are consumed by the fan-out machinery,
// never here. A slot whose source has no stored result yet is left
// unresolved.
func (ex *Executor) resolveWireInputs(name string) map[string]any {
	inputs := make(map[string]any)
	for _, e := range ex.graph.Edges() {
		if e.Target.Name() != name || e.Scattered {
			continue
		}

		src := e.Source.Name()
		stored, ok := ex.results[src]
		if !ok {
			continue
		}

		switch r := stored.(type) {
		case Envelope:
			if e.Gathered {
				inputs[e.TargetPort] = gatherExtract(r, e.SourcePort)
			} else {
				inputs[e.TargetPort] = Unwrap(r)
			}
		case Labeled:
			if v, ok := r.Fields[e.SourcePort]; ok {
				inputs[e.TargetPort] = v
			} else {
				inputs[e.TargetPort] = r.Fields
			}
		case Positional:
			if v, ok := positionalLookup(ex.cfg.logger, r.Items, src, e.SourcePort); ok {
				inputs[e.TargetPort] = v
			}
		case Scalar:
			inputs[e.TargetPort] = r.V
		}
	}
	return inputs
}

// gatherExtract is the fan-in operation: it flattens a scatter envelope
// into an ordered sequence, pulling the named output out of each labeled
// per-item result and using the whole result otherwise. Error sentinels
// ride along unchanged, preserving per-item isolation downstream.
func gatherExtract(env Envelope, sourcePort string) []any {
	out := make([]any, len(env.Results))
	for i, r := range env.Results {
		if lr, ok := r.(Labeled); ok {
			if v, ok := lr.Fields[sourcePort]; ok {
				out[i] = v
				continue
			}
		}
		out[i] = Unwrap(r)
	}
	return out
}

// assembleInputs layers a node's input sources in precedence order:
// fixed inputs, then live input-component values, then wire values, then
// run-time overrides. Later sources win. Fixed callables are re-evaluated
// on every call.
func (ex *Executor) assembleInputs(node Node, wire, overrides map[string]any) map[string]any {
	all := make(map[string]any)
	for slot, fv := range node.FixedInputs() {
		if fn, ok := fv.(func() any); ok {
			all[slot] = fn()
		} else {
			all[slot] = fv
		}
	}
	for slot, comp := range node.InputComponents() {
		if comp != nil && comp.Value != nil {
			all[slot] = comp.Value
		}
	}
	for slot, v := range wire {
		all[slot] = v
	}
	for slot, v := range overrides {
		all[slot] = v
	}
	return all
}

// coerceOverrides normalizes a per-node entry override: a map is used
// as-is; a bare value binds to the node's first input port.
func coerceOverrides(node Node, raw any) map[string]any {
	if raw == nil {
		return nil
	}
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return map[string]any{node.DefaultInput().Name: raw}
}

// scatteredInputEdge returns the node's scattered incoming edge, if any.
func (ex *Executor) scatteredInputEdge(name string) *Edge {
	for _, e := range ex.graph.Edges() {
		if e.Scattered && e.Target.Name() == name {
			return e
		}
	}
	return nil
}

// recordHistory persists a node result to the history store, if one is
// configured. Best-effort: a failed write is logged and never fatal.
func (ex *Executor) recordHistory(ctx context.Context, name string, result Value) {
	if ex.cfg.history == nil {
		return
	}
	data, err := sonic.Marshal(Unwrap(result))
	if err != nil {
		observability.LogHistoryError(ex.cfg.logger, name, "marshal", err)
		return
	}
	if err := ex.cfg.history.SaveResult(ex.runID, name, data); err != nil {
		observability.LogHistoryError(ex.cfg.logger, name, "save", err)
		return
	}
	ex.cfg.metrics.RecordHistoryWrite(ctx, name, int64(len(data)))
}
