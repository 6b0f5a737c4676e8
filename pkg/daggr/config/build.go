package config

import (
	"fmt"

	"github.com/gaganchapa/daggr/pkg/daggr"
	"github.com/gaganchapa/daggr/pkg/daggr/registry"
)

// Registries holds the implementation lookups a definition is resolved
// against. A nil registry is treated as empty, so definitions using only
// the kinds you supply registries for still build.
type Registries struct {
	// Funcs resolves the impl names of func-kind nodes.
	Funcs *registry.Registry[daggr.FuncImpl]

	// Callers resolves the impl names of remote-kind nodes.
	Callers *registry.Registry[daggr.Caller]
}

// Build materializes the definition into a graph, resolving impl names
// against the registries. The returned graph is ready for an Executor;
// structural edge validation has already run via Graph.AddEdge.
func (d *GraphDef) Build(regs Registries) (*daggr.Graph, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	f := daggr.NewNodeFactory()
	g := daggr.NewGraph(d.Name)
	nodes := make(map[string]daggr.Node, len(d.Nodes))

	for _, nd := range d.Nodes {
		node, err := buildNode(f, regs, nd)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Name, err)
		}
		nodes[nd.Name] = node
		g.AddNode(node)
	}

	for i, ed := range d.Edges {
		srcNode, srcPort, _ := splitPortRef(ed.From)
		dstNode, dstPort, _ := splitPortRef(ed.To)

		var source daggr.PortRef = daggr.Port{Node: nodes[srcNode], Name: srcPort}
		var target daggr.PortRef = daggr.Port{Node: nodes[dstNode], Name: dstPort}
		if ed.Scatter {
			source = daggr.Scatter(daggr.Port{Node: nodes[srcNode], Name: srcPort})
		}
		if ed.Gather {
			target = daggr.Gather(daggr.Port{Node: nodes[dstNode], Name: dstPort})
		}

		if err := g.AddEdge(source, target); err != nil {
			return nil, fmt.Errorf("edge %d (%s -> %s): %w", i, ed.From, ed.To, err)
		}
	}
	return g, nil
}

// buildNode constructs one node from its definition.
func buildNode(f *daggr.NodeFactory, regs Registries, nd NodeDef) (daggr.Node, error) {
	opts := []daggr.NodeOption{daggr.WithName(nd.Name)}
	if len(nd.Inputs) > 0 {
		opts = append(opts, daggr.WithInputs(nd.Inputs...))
	}
	if len(nd.Outputs) > 0 {
		opts = append(opts, daggr.WithOutputs(nd.Outputs...))
	}
	for slot, v := range nd.Fixed {
		opts = append(opts, daggr.WithInput(slot, v))
	}

	switch nd.Kind {
	case "func":
		impl, err := lookupFunc(regs, nd.Impl)
		if err != nil {
			return nil, err
		}
		return f.Func(impl, opts...), nil

	case "remote":
		caller, err := lookupCaller(regs, nd.Impl)
		if err != nil {
			return nil, err
		}
		return f.Remote(caller, opts...), nil

	case "interaction":
		kind := nd.Interaction
		if kind == "" {
			kind = "generic"
		}
		return f.Interaction(kind, opts...), nil

	case "input":
		comps := make([]*daggr.Component, len(nd.Components))
		for i, cd := range nd.Components {
			comps[i] = &daggr.Component{Kind: cd.Kind, Label: cd.Label, Value: cd.Value}
		}
		return f.Input(comps, opts...), nil

	default:
		return nil, fmt.Errorf("unknown kind %q", nd.Kind)
	}
}

func lookupFunc(regs Registries, name string) (daggr.FuncImpl, error) {
	if regs.Funcs == nil {
		return nil, fmt.Errorf("%w: %s (no function registry supplied)", registry.ErrUnknown, name)
	}
	return regs.Funcs.Lookup(name)
}

func lookupCaller(regs Registries, name string) (daggr.Caller, error) {
	if regs.Callers == nil {
		return nil, fmt.Errorf("%w: %s (no caller registry supplied)", registry.ErrUnknown, name)
	}
	return regs.Callers.Lookup(name)
}
