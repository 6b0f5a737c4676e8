/*
Package daggr provides a directed-graph execution engine for composable
computational nodes with typed input/output ports.

# Overview

daggr is a Go library for wiring small units of computation ("nodes") into
an acyclic graph and running it end-to-end or node-by-node. Nodes expose
named input and output ports; edges connect one node's output port to
another node's input port. Edges may be marked scattered (the target runs
once per item of a list-valued upstream output) or gathered (the per-item
results are collected back into an ordered sequence).

The library provides:
  - Four node kinds: user functions, delegated remote calls, identity
    passthroughs, and static input suppliers
  - Deterministic topological run order with cycle detection
  - Scatter/gather fan-out with per-item failure isolation
  - OpenTelemetry metrics and tracing, structured logging via slog
  - Optional per-run result history (in-memory or SQLite)

# Basic Usage

Build nodes with a NodeFactory, wire them into a Graph, and drive the graph
with an Executor:

	f := daggr.NewNodeFactory()

	double := f.Func(
	    func(ctx context.Context, in map[string]any) (any, error) {
	        return in["x"].(int) * 2, nil
	    },
	    daggr.WithName("doubler"),
	    daggr.WithInputs("x"),
	)
	addTen := f.Func(
	    func(ctx context.Context, in map[string]any) (any, error) {
	        return in["y"].(int) + 10, nil
	    },
	    daggr.WithName("adder"),
	    daggr.WithInput("y", double.Output("output")),
	)

	g := daggr.NewGraph("quickstart").AddNode(addTen)

	exec := daggr.NewExecutor(g)
	results, err := exec.ExecuteAll(context.Background(), map[string]any{
	    "doubler": map[string]any{"x": 7},
	})
	// results["adder"] holds Labeled{"output": 24}

# Scatter and Gather

Wrap a source port with Scatter to run the target once per item of the
source's list-valued output, and wrap a target port with Gather to collect
the per-item results downstream:

	g.Connect(daggr.Scatter(split.Output("segments")), tts.Input("segment"))
	g.Connect(tts.Output("audio"), daggr.Gather(combine.Input("clips")))

A single item's failure is recorded as an error sentinel in that item's
slot and never aborts sibling items or the run.

# Partial Execution

Executor.ExecuteNode runs one node against whatever results are already
stored, and Executor.ExecuteScatteredItem re-runs a single fan-out item in
place. Both are used by interactive frontends for ad-hoc re-runs.
*/
package daggr
