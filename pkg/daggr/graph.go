package daggr

import (
	"context"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Graph owns the node registry and the edge list, and derives the
// dependency structure used to compute the run order.
//
// Nodes are kept in insertion order; the order is the tie-breaker for
// scheduling, so two graphs built the same way always run the same way.
//
// A Graph is a builder: construct it from a single goroutine, then treat
// it as read-only while an Executor runs it. Adding edges between runs
// requires re-validation, which the Executor performs before each full run.
type Graph struct {
	mu    sync.RWMutex
	name  string
	nodes *orderedmap.OrderedMap[string, Node]
	edges []*Edge
}

// NewGraph creates an empty graph with the given display name.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: orderedmap.New[string, Node](),
	}
}

// Name returns the graph's display name.
func (g *Graph) Name() string { return g.name }

// AddNode registers a node and, transitively, every upstream node named by
// its construction-time input bindings. The bindings become edges.
// Returns the graph for chaining.
//
// Panics if n is nil or a different node is already registered under the
// same name.
func (g *Graph) AddNode(n Node) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(n)
	return g
}

func (g *Graph) addNodeLocked(n Node) {
	if n == nil {
		panic("daggr: cannot add nil node to graph")
	}
	if existing, ok := g.nodes.Get(n.Name()); ok {
		if existing != n {
			panic(fmt.Sprintf("daggr: duplicate node name: %s", n.Name()))
		}
		return
	}
	// Register upstream dependencies first so insertion order follows
	// data flow for construction-wired graphs.
	for _, b := range n.core().binds {
		if src := b.src.portNode(); src != nil {
			g.addNodeLocked(src)
		}
	}
	g.nodes.Set(n.Name(), n)
	for _, b := range n.core().binds {
		g.edges = append(g.edges, newEdge(b.src, Port{Node: n, Name: b.slot}))
	}
}

// AddEdge registers a directed wire between two port references, adding
// either endpoint's node to the graph if absent.
//
// Returns a *ValidationError when the target slot is not a declared input
// port of an already-resolved target node, or when the reference carries
// both a scatter and a gather marker. Nodes whose ports are discovered
// lazily are checked later, by Validate.
func (g *Graph) AddEdge(source, target PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := newEdge(source, target)
	if v := eagerEdgeViolations(e); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	if e.Source != nil {
		g.addNodeLocked(e.Source)
	}
	if e.Target != nil {
		g.addNodeLocked(e.Target)
	}
	g.edges = append(g.edges, e)
	return nil
}

// Connect is the fluent form of AddEdge; it panics on a validation error,
// which is a graph-construction bug.
func (g *Graph) Connect(source, target PortRef) *Graph {
	if err := g.AddEdge(source, target); err != nil {
		panic("daggr: " + err.Error())
	}
	return g
}

// eagerEdgeViolations checks what can be known at edge-declaration time.
func eagerEdgeViolations(e *Edge) []string {
	var v []string
	if e.Source == nil || e.Target == nil {
		v = append(v, fmt.Sprintf("edge %s references a nil node", e))
		return v
	}
	if e.Scattered && e.Gathered {
		v = append(v, fmt.Sprintf("edge %s is marked both scattered and gathered", e))
	}
	if tc := e.Target.core(); tc.resolved && !hasPort(e.Target.InputPorts(), e.TargetPort) {
		v = append(v, fmt.Sprintf("edge %s targets undeclared input port %q on node %q (declared: %v)",
			e, e.TargetPort, e.Target.Name(), e.Target.InputPorts()))
	}
	return v
}

func hasPort(ports []string, name string) bool {
	for _, p := range ports {
		if p == name {
			return true
		}
	}
	return false
}

// Node returns the registered node with the given name.
func (g *Graph) Node(name string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes.Get(name)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]Node, 0, g.nodes.Len())
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		nodes = append(nodes, pair.Value)
	}
	return nodes
}

// Edges returns a copy of the edge list in declaration order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]*Edge, len(g.edges))
	copy(edges, g.edges)
	return edges
}

// ExecutionOrder returns a deterministic topological order over the
// dependency graph: among nodes with no remaining unresolved dependency,
// the one inserted earliest is scheduled first.
//
// Returns a *CycleError naming every unscheduled node when the edge set is
// not acyclic; no partial order is ever returned.
func (g *Graph) ExecutionOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, g.nodes.Len())
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}

	// Unique arcs only: parallel edges between the same pair of nodes
	// contribute a single dependency.
	arcs := make(map[string]map[string]bool, len(names))
	indegree := make(map[string]int, len(names))
	for _, e := range g.edges {
		src, dst := e.Source.Name(), e.Target.Name()
		if _, ok := g.nodes.Get(src); !ok {
			continue
		}
		if _, ok := g.nodes.Get(dst); !ok {
			continue
		}
		if arcs[src] == nil {
			arcs[src] = make(map[string]bool)
		}
		if !arcs[src][dst] {
			arcs[src][dst] = true
			indegree[dst]++
		}
	}

	order := make([]string, 0, len(names))
	scheduled := make(map[string]bool, len(names))
	for len(order) < len(names) {
		progressed := false
		for _, name := range names {
			if scheduled[name] || indegree[name] > 0 {
				continue
			}
			scheduled[name] = true
			order = append(order, name)
			for dst := range arcs[name] {
				indegree[dst]--
			}
			progressed = true
			break
		}
		if !progressed {
			var remaining []string
			for _, name := range names {
				if !scheduled[name] {
					remaining = append(remaining, name)
				}
			}
			return nil, &CycleError{Nodes: remaining}
		}
	}
	return order, nil
}

// Validate resolves every node's ports (performing any pending remote
// discovery) and then checks that all edges reference declared ports on
// registered nodes and that no node has more than one scattered incoming
// edge. Every violation is reported, not just the first.
//
// Validate is idempotent: repeated calls on an unchanged graph return the
// same result.
func (g *Graph) Validate(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var violations []string

	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.ResolvePorts(ctx); err != nil {
			violations = append(violations, fmt.Sprintf("node %q: resolve ports: %v", pair.Key, err))
		}
	}

	scatterSources := make(map[string]int)
	for _, e := range g.edges {
		if e.Scattered && e.Gathered {
			violations = append(violations, fmt.Sprintf("edge %s is marked both scattered and gathered", e))
		}
		if _, ok := g.nodes.Get(e.Source.Name()); !ok {
			violations = append(violations, fmt.Sprintf("edge %s references unregistered source node %q", e, e.Source.Name()))
		} else if sc := e.Source.core(); sc.resolved && !hasPort(e.Source.OutputPorts(), e.SourcePort) {
			violations = append(violations, fmt.Sprintf("edge %s reads undeclared output port %q on node %q (declared: %v)",
				e, e.SourcePort, e.Source.Name(), e.Source.OutputPorts()))
		}
		if _, ok := g.nodes.Get(e.Target.Name()); !ok {
			violations = append(violations, fmt.Sprintf("edge %s references unregistered target node %q", e, e.Target.Name()))
		} else if tc := e.Target.core(); tc.resolved && !hasPort(e.Target.InputPorts(), e.TargetPort) {
			violations = append(violations, fmt.Sprintf("edge %s targets undeclared input port %q on node %q (declared: %v)",
				e, e.TargetPort, e.Target.Name(), e.Target.InputPorts()))
		}
		if e.Scattered {
			scatterSources[e.Target.Name()]++
		}
	}
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if count := scatterSources[pair.Key]; count > 1 {
			violations = append(violations, fmt.Sprintf("node %q has %d scattered incoming edges; at most one is allowed", pair.Key, count))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
