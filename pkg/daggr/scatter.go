package daggr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gaganchapa/daggr/pkg/daggr/observability"
)

// executeScattered fans a node out over the items of its scattered
// incoming edge: one execution per item, sharing the context resolved from
// the node's non-scattered edges and overrides.
//
// A single item's failure is captured as an error sentinel in that item's
// slot and never aborts sibling items or the run. The published envelope
// always has exactly one result per source item.
func (ex *Executor) executeScattered(ctx context.Context, node Node, edge *Edge, overrides map[string]any) (Value, error) {
	name := node.Name()
	items := ex.scatterItems(edge)
	merged := ex.scatterContext(name, overrides)

	observability.LogScatterStart(ex.cfg.logger, name, len(items))
	scatterStart := time.Now()

	results := make([]Value, len(items))
	failed := 0
	if ex.cfg.scatterWorkers > 1 && len(items) > 1 {
		failed = ex.runItemsParallel(ctx, node, edge, merged, items, results)
	} else {
		for i, item := range items {
			var itemErr error
			results[i], itemErr = ex.runItem(ctx, node, edge, merged, i, item)
			if itemErr != nil {
				results[i] = errorSentinel(itemErr)
				observability.LogScatterItemError(ex.cfg.logger, name, i, itemErr)
				failed++
			}
		}
	}

	observability.LogScatterComplete(ex.cfg.logger, name, len(items), failed,
		float64(time.Since(scatterStart).Milliseconds()))

	env := Envelope{Items: items, Results: results}
	ex.results[name] = env
	ex.recordHistory(ctx, name, env)
	return env, nil
}

// runItemsParallel executes fan-out items on a bounded worker pool.
// Results land at their source index regardless of completion order, and
// failures stay isolated to their own slot. Returns the failure count.
func (ex *Executor) runItemsParallel(ctx context.Context, node Node, edge *Edge, merged map[string]any, items []any, results []Value) int {
	name := node.Name()
	sem := make(chan struct{}, ex.cfg.scatterWorkers)
	var wg sync.WaitGroup

	var mu sync.Mutex
	failed := 0

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it any) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			v, err := ex.runItem(ctx, node, edge, merged, idx, it)
			if err != nil {
				v = errorSentinel(err)
				observability.LogScatterItemError(ex.cfg.logger, name, idx, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			results[idx] = v
		}(i, item)
	}

	wg.Wait()
	return failed
}

// runItem executes one fan-out item: shared context plus the item bound to
// the scattered edge's target port.
func (ex *Executor) runItem(ctx context.Context, node Node, edge *Edge, merged map[string]any, index int, item any) (Value, error) {
	itemWire := make(map[string]any, len(merged)+1)
	for k, v := range merged {
		itemWire[k] = v
	}
	itemWire[edge.TargetPort] = item
	inputs := ex.assembleInputs(node, itemWire, nil)

	itemCtx := ctx
	var itemSpan trace.Span
	if ex.cfg.tracingEnabled {
		itemCtx, itemSpan = ex.cfg.spans.StartItemSpan(ctx, node.Name(), index)
	}

	itemStart := time.Now()
	v, err := runStrategy(itemCtx, node, inputs)
	itemDuration := time.Since(itemStart)

	ex.cfg.metrics.RecordScatterItem(itemCtx, node.Name(), itemDuration, err)
	if ex.cfg.tracingEnabled {
		ex.cfg.spans.EndSpanWithError(itemSpan, err)
	}
	return v, err
}

// ExecuteScatteredItem re-runs a single fan-out item of a previously
// executed scattered node and replaces that one slot in the stored
// envelope in place. All other slots and the stored items are untouched.
//
// An override keyed by the scattered target port replaces the stored item
// for this re-run only; other overrides join the shared context. Returns
// ErrNotScattered if the node has no scattered incoming edge and
// *ItemIndexError if index is outside the current item range.
func (ex *Executor) ExecuteScatteredItem(ctx context.Context, name string, index int, overrides map[string]any) (Value, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	node, ok := ex.graph.Node(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	edge := ex.scatteredInputEdge(name)
	if edge == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotScattered, name)
	}
	if err := node.ResolvePorts(ctx); err != nil {
		return nil, &NodeError{Node: name, Op: "resolve", Err: err}
	}

	items := ex.scatterItems(edge)
	if index < 0 || index >= len(items) {
		return nil, &ItemIndexError{Node: name, Index: index, Len: len(items)}
	}

	merged := ex.scatterContext(name, overrides)
	item := items[index]
	if v, ok := overrides[edge.TargetPort]; ok {
		item = v
	}
	v, err := ex.runItem(ctx, node, edge, merged, index, item)
	if err != nil {
		return nil, err
	}

	if env, ok := ex.results[name].(Envelope); ok && index < len(env.Results) {
		env.Results[index] = v
		ex.recordHistory(ctx, name, env)
	}
	return v, nil
}

// scatterContext resolves the inputs shared unmodified across every item:
// all non-scattered wires plus run-time overrides, overrides winning.
func (ex *Executor) scatterContext(name string, overrides map[string]any) map[string]any {
	merged := ex.resolveWireInputs(name)
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// scatterItems selects the fan-out items from the scattered edge's source
// result: the value at the source port of a labeled result, the sequence
// itself for a positional result, and a single-element coercion for
// anything that is not a sequence. A missing source result yields no items.
func (ex *Executor) scatterItems(edge *Edge) []any {
	stored, ok := ex.results[edge.Source.Name()]
	if !ok {
		return []any{}
	}

	var raw any
	switch r := stored.(type) {
	case Labeled:
		if v, ok := r.Fields[edge.SourcePort]; ok {
			raw = v
		} else {
			raw = r.Fields
		}
	case Positional:
		raw = r.Items
	case Scalar:
		raw = r.V
	case Envelope:
		raw = Unwrap(r)
	}

	switch items := raw.(type) {
	case nil:
		return []any{}
	case []any:
		return items
	default:
		return []any{raw}
	}
}

// errorSentinel is the per-item failure record stored in a scatter
// envelope slot.
func errorSentinel(err error) Value {
	return Labeled{Fields: map[string]any{"error": err.Error()}}
}
