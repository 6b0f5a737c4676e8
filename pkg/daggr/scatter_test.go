package daggr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scatterGraph builds src -> scatter -> worker -> gather -> collect where
// the worker is the identity function.
func scatterGraph(f *NodeFactory) *Graph {
	src := f.Func(listSource, WithName("src"))
	w := f.Func(identity, WithName("worker"), WithInputs("item"))
	c := f.Func(collect, WithName("collect"), WithInputs("seq"))

	g := NewGraph("fanout")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))
	g.Connect(w.Output("output"), Gather(c.Input("seq")))
	return g
}

// TestScatter_RoundTrip tests that [a, b, c] scattered through an identity
// worker and gathered downstream arrives as exactly [a, b, c].
func TestScatter_RoundTrip(t *testing.T) {
	f := NewNodeFactory()
	g := scatterGraph(f)

	results, err := NewExecutor(g).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	env, ok := results["worker"].(Envelope)
	require.True(t, ok, "scattered node must store an envelope")
	assert.Equal(t, []any{"a", "b", "c"}, env.Items)
	require.Len(t, env.Results, 3)

	gathered, ok := results["collect"].(Positional)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, gathered.Items)
}

// TestScatter_PerItemIsolation tests that one failing item leaves an error
// sentinel in its slot while siblings succeed and the run continues.
func TestScatter_PerItemIsolation(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		if in["item"] == "b" {
			return nil, errors.New("b is cursed")
		}
		return in["item"], nil
	}, WithName("worker"), WithInputs("item"))
	c := f.Func(collect, WithName("collect"), WithInputs("seq"))

	g := NewGraph("isolation")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))
	g.Connect(w.Output("output"), Gather(c.Input("seq")))

	results, err := NewExecutor(g).ExecuteAll(context.Background(), nil)
	require.NoError(t, err, "an item failure must not abort the run")

	env := results["worker"].(Envelope)
	require.Len(t, env.Results, 3)
	assert.Equal(t, Labeled{Fields: map[string]any{"output": "a"}}, env.Results[0])
	assert.Equal(t, Labeled{Fields: map[string]any{"output": "c"}}, env.Results[2])

	sentinel, ok := env.Results[1].(Labeled)
	require.True(t, ok)
	assert.Contains(t, sentinel.Fields["error"], "b is cursed")

	gathered := results["collect"].(Positional).Items
	require.Len(t, gathered, 3)
	assert.Equal(t, "a", gathered[0])
	assert.Equal(t, "c", gathered[2])
	errSlot, ok := gathered[1].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errSlot["error"], "b is cursed")
}

// TestScatter_SharedContext tests that non-scattered wires and overrides
// reach every item unchanged alongside the per-item value.
func TestScatter_SharedContext(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	cfg := f.Func(func(_ context.Context, _ map[string]any) (any, error) {
		return "ctx", nil
	}, WithName("cfg"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		return fmt.Sprintf("%v/%v/%v", in["item"], in["shared"], in["extra"]), nil
	}, WithName("worker"), WithInputs("item", "shared", "extra"))

	g := NewGraph("shared")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))
	g.Connect(cfg.Output("output"), w.Input("shared"))

	results, err := NewExecutor(g).ExecuteAll(context.Background(), map[string]any{
		"worker": map[string]any{"extra": 9},
	})
	require.NoError(t, err)

	env := results["worker"].(Envelope)
	require.Len(t, env.Results, 3)
	for i, want := range []string{"a/ctx/9", "b/ctx/9", "c/ctx/9"} {
		assert.Equal(t, want, env.Results[i].(Labeled).Fields["output"])
	}
}

// TestScatter_NonSequenceCoerced tests that a non-sequence scatter source
// fans out as a single item.
func TestScatter_NonSequenceCoerced(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(func(_ context.Context, _ map[string]any) (any, error) {
		return "solo", nil
	}, WithName("src"))
	w := f.Func(identity, WithName("worker"), WithInputs("item"))

	g := NewGraph("coerce")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	results, err := NewExecutor(g).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	env := results["worker"].(Envelope)
	assert.Equal(t, []any{"solo"}, env.Items)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "solo", env.Results[0].(Labeled).Fields["output"])
}

// TestScatter_EmptyItems tests fan-out over an empty list.
func TestScatter_EmptyItems(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(func(_ context.Context, _ map[string]any) (any, error) {
		return []any{}, nil
	}, WithName("src"))
	w := f.Func(identity, WithName("worker"), WithInputs("item"))

	g := NewGraph("empty")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	results, err := NewExecutor(g).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	env := results["worker"].(Envelope)
	assert.Empty(t, env.Items)
	assert.Empty(t, env.Results)
}

// TestScatter_Parallel tests that a bounded worker pool preserves
// source-item order in the envelope regardless of completion order.
func TestScatter_Parallel(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(func(_ context.Context, _ map[string]any) (any, error) {
		items := make([]any, 8)
		for i := range items {
			items[i] = i
		}
		return items, nil
	}, WithName("src"))

	var mu sync.Mutex
	inFlight, peak := 0, 0
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		n := asInt(in["item"])
		// Later items finish first so completion order inverts.
		time.Sleep(time.Duration(8-n) * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return n * 2, nil
	}, WithName("worker"), WithInputs("item"))

	g := NewGraph("parallel")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	results, err := NewExecutor(g, WithScatterWorkers(4)).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	env := results["worker"].(Envelope)
	require.Len(t, env.Results, 8)
	for i := 0; i < 8; i++ {
		assert.Equal(t, i*2, env.Results[i].(Labeled).Fields["output"], "slot %d", i)
	}
	assert.LessOrEqual(t, peak, 4, "pool bound exceeded")
}

// TestScatter_ParallelIsolation tests per-item failure isolation under the
// worker pool.
func TestScatter_ParallelIsolation(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		if in["item"] == "b" {
			return nil, errors.New("b is cursed")
		}
		return in["item"], nil
	}, WithName("worker"), WithInputs("item"))

	g := NewGraph("parallel-isolation")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	results, err := NewExecutor(g, WithScatterWorkers(3)).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	env := results["worker"].(Envelope)
	require.Len(t, env.Results, 3)
	assert.Equal(t, "a", env.Results[0].(Labeled).Fields["output"])
	assert.Contains(t, env.Results[1].(Labeled).Fields["error"], "b is cursed")
	assert.Equal(t, "c", env.Results[2].(Labeled).Fields["output"])
}

// TestExecuteScatteredItem tests re-running one fan-out item in place:
// only the targeted slot changes, items and siblings are untouched.
func TestExecuteScatteredItem(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	failB := true
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		if failB && in["item"] == "b" {
			return nil, errors.New("transient")
		}
		return in["item"], nil
	}, WithName("worker"), WithInputs("item"))

	g := NewGraph("rerun")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	ex := NewExecutor(g)
	_, err := ex.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	before := ex.Results()["worker"].(Envelope)
	require.Contains(t, before.Results[1].(Labeled).Fields, "error")

	failB = false
	v, err := ex.ExecuteScatteredItem(context.Background(), "worker", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", v.(Labeled).Fields["output"])

	after, _ := ex.Result("worker")
	env := after.(Envelope)
	assert.Equal(t, []any{"a", "b", "c"}, env.Items)
	assert.Equal(t, "a", env.Results[0].(Labeled).Fields["output"])
	assert.Equal(t, "b", env.Results[1].(Labeled).Fields["output"])
	assert.Equal(t, "c", env.Results[2].(Labeled).Fields["output"])
}

// TestExecuteScatteredItem_WithOverride tests that single-item re-runs
// accept run-time overrides for the shared context.
func TestExecuteScatteredItem_WithOverride(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		return fmt.Sprintf("%v+%v", in["item"], in["suffix"]), nil
	}, WithName("worker"), WithInputs("item", "suffix"))

	g := NewGraph("rerun-override")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	ex := NewExecutor(g)
	_, err := ex.ExecuteAll(context.Background(), map[string]any{
		"worker": map[string]any{"suffix": "v1"},
	})
	require.NoError(t, err)

	v, err := ex.ExecuteScatteredItem(context.Background(), "worker", 2, map[string]any{"suffix": "v2"})
	require.NoError(t, err)
	assert.Equal(t, "c+v2", v.(Labeled).Fields["output"])

	env, _ := ex.Result("worker")
	results := env.(Envelope).Results
	assert.Equal(t, "a+v1", results[0].(Labeled).Fields["output"])
	assert.Equal(t, "c+v2", results[2].(Labeled).Fields["output"])
}

// TestExecuteScatteredItem_TargetPortOverride tests that an override keyed
// by the scattered target port replaces the stored item for the re-run,
// while a full fan-out keeps binding the source items.
func TestExecuteScatteredItem_TargetPortOverride(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		if in["item"] == "b" {
			return nil, errors.New("b is cursed")
		}
		return in["item"], nil
	}, WithName("worker"), WithInputs("item"))

	g := NewGraph("rerun-item-override")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	ex := NewExecutor(g)
	_, err := ex.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	before, _ := ex.Result("worker")
	require.Contains(t, before.(Envelope).Results[1].(Labeled).Fields, "error")

	v, err := ex.ExecuteScatteredItem(context.Background(), "worker", 1,
		map[string]any{"item": "delta"})
	require.NoError(t, err)
	assert.Equal(t, "delta", v.(Labeled).Fields["output"])

	after, _ := ex.Result("worker")
	env := after.(Envelope)
	assert.Equal(t, []any{"a", "b", "c"}, env.Items, "stored items stay untouched")
	assert.Equal(t, "delta", env.Results[1].(Labeled).Fields["output"])
	assert.Equal(t, "a", env.Results[0].(Labeled).Fields["output"])
}

// TestExecuteScatteredItem_NotScattered tests the sentinel for nodes with
// no scattered incoming edge.
func TestExecuteScatteredItem_NotScattered(t *testing.T) {
	f := NewNodeFactory()
	g, _, _ := linkedGraph(f)

	ex := NewExecutor(g)
	_, err := ex.ExecuteScatteredItem(context.Background(), "add_ten", 0, nil)
	assert.ErrorIs(t, err, ErrNotScattered)
	assert.Contains(t, err.Error(), "add_ten")
}

// TestExecuteScatteredItem_IndexOutOfRange tests index bounds checking.
func TestExecuteScatteredItem_IndexOutOfRange(t *testing.T) {
	f := NewNodeFactory()
	g := scatterGraph(f)

	ex := NewExecutor(g)
	_, err := ex.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	for _, idx := range []int{-1, 3, 99} {
		_, err := ex.ExecuteScatteredItem(context.Background(), "worker", idx, nil)
		var ierr *ItemIndexError
		require.ErrorAs(t, err, &ierr, "index %d", idx)
		assert.Equal(t, "worker", ierr.Node)
		assert.Equal(t, idx, ierr.Index)
		assert.Equal(t, 3, ierr.Len)
	}
}

// TestExecuteScatteredItem_UnknownNode tests the not-found sentinel.
func TestExecuteScatteredItem_UnknownNode(t *testing.T) {
	f := NewNodeFactory()
	g := scatterGraph(f)

	_, err := NewExecutor(g).ExecuteScatteredItem(context.Background(), "ghost", 0, nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

// TestExecuteScatteredItem_ItemFailure tests that a failed re-run returns
// the error and leaves the stored slot unchanged.
func TestExecuteScatteredItem_ItemFailure(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	fail := false
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		if fail {
			return nil, errors.New("now broken")
		}
		return in["item"], nil
	}, WithName("worker"), WithInputs("item"))

	g := NewGraph("rerun-fail")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))

	ex := NewExecutor(g)
	_, err := ex.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	fail = true
	_, err = ex.ExecuteScatteredItem(context.Background(), "worker", 0, nil)
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)

	env, _ := ex.Result("worker")
	assert.Equal(t, "a", env.(Envelope).Results[0].(Labeled).Fields["output"])
}

// TestScatter_GatherNamedPort tests that gathering pulls the named output
// out of each multi-port per-item result.
func TestScatter_GatherNamedPort(t *testing.T) {
	f := NewNodeFactory()
	src := f.Func(listSource, WithName("src"))
	w := f.Func(func(_ context.Context, in map[string]any) (any, error) {
		return map[string]any{"upper": in["item"], "lower": in["item"]}, nil
	}, WithName("worker"), WithInputs("item"), WithOutputs("upper", "lower"))
	c := f.Func(collect, WithName("collect"), WithInputs("seq"))

	g := NewGraph("gather-port")
	g.Connect(Scatter(src.Output("output")), w.Input("item"))
	g.Connect(w.Output("upper"), Gather(c.Input("seq")))

	results, err := NewExecutor(g).ExecuteAll(context.Background(), nil)
	require.NoError(t, err)

	gathered := results["collect"].(Positional).Items
	assert.Equal(t, []any{"a", "b", "c"}, gathered)
}
