package daggr

// Edge is a directed wire from one node's output port to another node's
// input port, optionally carrying a scatter or gather marker. At most one
// of the two markers may be set on a single edge.
type Edge struct {
	Source     Node
	SourcePort string
	Target     Node
	TargetPort string

	// Scattered marks fan-out: the target executes once per item of the
	// source's list-valued output.
	Scattered bool

	// Gathered marks fan-in: the scattered source's per-item results are
	// collected into an ordered sequence before assignment.
	Gathered bool

	// ItemOutput optionally describes the per-item output of a scattered
	// edge. Consumed by frontend collaborators only.
	ItemOutput *Component
}

// newEdge builds an Edge from a source and target reference. The scatter
// marker travels with either side's ScatteredPort wrapper, the gather
// marker with either side's GatheredPort wrapper.
func newEdge(source, target PortRef) *Edge {
	e := &Edge{
		Source:     source.portNode(),
		SourcePort: source.portName(),
		Target:     target.portNode(),
		TargetPort: target.portName(),
	}
	for _, ref := range []PortRef{source, target} {
		switch r := ref.(type) {
		case ScatteredPort:
			e.Scattered = true
			if r.ItemOutput != nil {
				e.ItemOutput = r.ItemOutput
			}
		case GatheredPort:
			e.Gathered = true
		}
	}
	return e
}

// String returns the edge in "[scatter:|gather:]src.port -> dst.port" form.
func (e *Edge) String() string {
	prefix := ""
	if e.Scattered {
		prefix = "scatter:"
	} else if e.Gathered {
		prefix = "gather:"
	}
	return prefix + e.Source.Name() + "." + e.SourcePort + " -> " + e.Target.Name() + "." + e.TargetPort
}
