package daggr

import "fmt"

// Port addresses a single named slot on a node. The same Port value serves
// as an output reference (reading from the node's stored result) or an
// input reference (writing into the node's next input set), depending on
// which side of an edge it appears.
type Port struct {
	Node Node
	Name string
}

// String returns the port in "node.port" form.
func (p Port) String() string {
	if p.Node == nil {
		return "." + p.Name
	}
	return p.Node.Name() + "." + p.Name
}

// PortRef is the common type for plain ports and their scatter/gather
// wrappers. It is a closed interface: only Port, ScatteredPort, and
// GatheredPort implement it.
type PortRef interface {
	portNode() Node
	portName() string
}

func (p Port) portNode() Node   { return p.Node }
func (p Port) portName() string { return p.Name }

// ScatteredPort marks a source port as scattered: the target node of the
// edge executes once per item of the source's list-valued output. It may
// carry a declared descriptor for the per-item output.
type ScatteredPort struct {
	Port       Port
	ItemOutput *Component
}

func (p ScatteredPort) portNode() Node   { return p.Port.Node }
func (p ScatteredPort) portName() string { return p.Port.Name }

// String returns the port in "scatter:node.port" form.
func (p ScatteredPort) String() string { return "scatter:" + p.Port.String() }

// WithItemOutput attaches a descriptor for the per-item output.
func (p ScatteredPort) WithItemOutput(c *Component) ScatteredPort {
	p.ItemOutput = c
	return p
}

// GatheredPort marks a target port as gathered: the per-item results of a
// scattered upstream node are collected into an ordered sequence before
// assignment.
type GatheredPort struct {
	Port Port
}

func (p GatheredPort) portNode() Node   { return p.Port.Node }
func (p GatheredPort) portName() string { return p.Port.Name }

// String returns the port in "gather:node.port" form.
func (p GatheredPort) String() string { return "gather:" + p.Port.String() }

// Scatter wraps a source port for fan-out execution of the edge's target.
func Scatter(p Port) ScatteredPort {
	return ScatteredPort{Port: p}
}

// Gather wraps a target port for fan-in collection of a scattered source's
// per-item results.
func Gather(p Port) GatheredPort {
	return GatheredPort{Port: p}
}

// Component describes a UI affordance associated with a port: a display
// kind, an optional label, and a current value. Components are consumed by
// frontend collaborators; the engine only reads Value as an input fallback
// when no wire or user value exists for the slot.
type Component struct {
	Kind  string
	Label string
	Value any
}

// lookupPort returns a Port for name, rejecting names that are not declared
// on the node once its ports are resolved. Nodes whose ports are discovered
// lazily (remote nodes before discovery) accept any name here; Graph.Validate
// performs the deferred check.
func lookupPort(n Node, name string, declared []string, resolved bool) Port {
	if resolved {
		for _, p := range declared {
			if p == name {
				return Port{Node: n, Name: name}
			}
		}
		panic(fmt.Sprintf("daggr: node %q has no port %q (declared: %v)", n.Name(), name, declared))
	}
	return Port{Node: n, Name: name}
}
