package daggr

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Node is a polymorphic unit of computation with named input and output
// ports. It is a closed interface: the concrete kinds are FuncNode,
// RemoteNode, InteractionNode, and InputNode, each carrying its own
// execution strategy.
type Node interface {
	// ID returns the monotonically assigned creation-order identifier.
	ID() int

	// Name returns the display name (user-supplied or derived).
	Name() string

	// InputPorts returns the ordered declared input slot names.
	InputPorts() []string

	// OutputPorts returns the ordered declared output slot names.
	OutputPorts() []string

	// Input returns the input port with the given name. It panics with a
	// clear error for names not declared on a resolved node; no port is
	// silently fabricated.
	Input(name string) Port

	// Output returns the output port with the given name, with the same
	// rejection behavior as Input.
	Output(name string) Port

	// DefaultInput returns the first declared input port, or "input".
	DefaultInput() Port

	// DefaultOutput returns the first declared output port, or "output".
	DefaultOutput() Port

	// InputComponents returns UI affordances keyed by input port. A
	// component's current value serves as an input fallback when no wire
	// or user value exists for the slot.
	InputComponents() map[string]*Component

	// OutputComponents returns UI affordances keyed by output port.
	OutputComponents() map[string]*Component

	// FixedInputs returns construction-time constants (or zero-argument
	// callables, re-evaluated per execution) keyed by input port.
	FixedInputs() map[string]any

	// ResolvePorts performs any external port discovery. It is idempotent;
	// for kinds with fixed ports it is a no-op.
	ResolvePorts(ctx context.Context) error

	// execute runs the node's kind-specific strategy against fully
	// assembled inputs. Closed to this package; the Executor drives it.
	execute(ctx context.Context, inputs map[string]any) (Value, error)

	core() *nodeCore
}

// binding records a construction-time wire from an upstream port into one
// of this node's input slots. Graph.AddNode converts bindings to edges.
type binding struct {
	slot string
	src  PortRef
}

// nodeCore holds the identity, ports, and construction-time inputs shared
// by every node kind.
type nodeCore struct {
	id               int
	name             string
	inputPorts       []string
	outputPorts      []string
	fixed            map[string]any
	inputComponents  map[string]*Component
	outputComponents map[string]*Component
	binds            []binding
	inputsDeclared   bool
	resolved         bool
	self             Node
}

func (c *nodeCore) ID() int                                 { return c.id }
func (c *nodeCore) Name() string                            { return c.name }
func (c *nodeCore) InputPorts() []string                    { return c.inputPorts }
func (c *nodeCore) OutputPorts() []string                   { return c.outputPorts }
func (c *nodeCore) InputComponents() map[string]*Component  { return c.inputComponents }
func (c *nodeCore) OutputComponents() map[string]*Component { return c.outputComponents }
func (c *nodeCore) FixedInputs() map[string]any             { return c.fixed }
func (c *nodeCore) core() *nodeCore                         { return c }

// ResolvePorts is a no-op for nodes whose ports are fixed at construction.
func (c *nodeCore) ResolvePorts(ctx context.Context) error { return nil }

func (c *nodeCore) Input(name string) Port {
	return lookupPort(c.self, name, c.inputPorts, c.resolved)
}

func (c *nodeCore) Output(name string) Port {
	return lookupPort(c.self, name, c.outputPorts, c.resolved)
}

func (c *nodeCore) DefaultInput() Port {
	if len(c.inputPorts) > 0 {
		return Port{Node: c.self, Name: c.inputPorts[0]}
	}
	return Port{Node: c.self, Name: "input"}
}

func (c *nodeCore) DefaultOutput() Port {
	if len(c.outputPorts) > 0 {
		return Port{Node: c.self, Name: c.outputPorts[0]}
	}
	return Port{Node: c.self, Name: "output"}
}

// declareInput appends an input slot if not already declared.
func (c *nodeCore) declareInput(slot string) {
	for _, p := range c.inputPorts {
		if p == slot {
			return
		}
	}
	c.inputPorts = append(c.inputPorts, slot)
}

// validatePortNames enforces slot uniqueness (a construction bug, so it
// panics) and warns on reserved-prefix names (non-fatal).
func (c *nodeCore) validatePortNames() {
	seen := make(map[string]bool)
	for _, p := range c.inputPorts {
		if seen[p] {
			panic(fmt.Sprintf("daggr: node %q declares duplicate input port %q", c.name, p))
		}
		seen[p] = true
	}
	seen = make(map[string]bool)
	for _, p := range c.outputPorts {
		if seen[p] {
			panic(fmt.Sprintf("daggr: node %q declares duplicate output port %q", c.name, p))
		}
		seen[p] = true
	}
	for _, p := range append(append([]string{}, c.inputPorts...), c.outputPorts...) {
		if strings.HasPrefix(p, "_") {
			slog.Warn("port name starts with underscore",
				slog.String("node", c.name),
				slog.String("port", p),
			)
		}
	}
}

// NodeOption configures a node at construction time.
type NodeOption func(*nodeCore)

// WithName sets the display name, overriding the derived default.
func WithName(name string) NodeOption {
	return func(c *nodeCore) {
		c.name = name
	}
}

// WithInputs declares the ordered input ports. For remote nodes this also
// overrides the discovered parameter list.
func WithInputs(names ...string) NodeOption {
	return func(c *nodeCore) {
		c.inputPorts = append([]string{}, names...)
		c.inputsDeclared = true
	}
}

// WithOutputs declares the ordered output ports.
func WithOutputs(names ...string) NodeOption {
	return func(c *nodeCore) {
		c.outputPorts = append([]string{}, names...)
	}
}

// WithInput declares an input slot together with its source:
//
//   - a Port (or Scatter/Gather wrapper) wires the slot to an upstream
//     output; the edge is registered when the node joins a Graph
//   - a *Component attaches a UI affordance whose current value is the
//     slot's fallback
//   - a func() any becomes a fixed input re-evaluated per execution
//   - anything else becomes a fixed constant
func WithInput(slot string, src any) NodeOption {
	return func(c *nodeCore) {
		c.declareInput(slot)
		switch s := src.(type) {
		case PortRef:
			c.binds = append(c.binds, binding{slot: slot, src: s})
		case *Component:
			c.inputComponents[slot] = s
		default:
			c.fixed[slot] = src
		}
	}
}

// WithOutput declares an output slot with an associated UI affordance.
func WithOutput(slot string, comp *Component) NodeOption {
	return func(c *nodeCore) {
		c.outputPorts = append(c.outputPorts, slot)
		if comp != nil {
			c.outputComponents[slot] = comp
		}
	}
}

// NodeFactory constructs nodes with process-local identity sequences.
// Using a factory rather than package-global counters keeps default naming
// deterministic and testable in isolation.
type NodeFactory struct {
	mu         sync.Mutex
	nextID     int
	inputCount int
}

// NewNodeFactory creates a factory whose id sequence starts at zero.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

func (f *NodeFactory) newCore(opts []NodeOption) *nodeCore {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.mu.Unlock()

	c := &nodeCore{
		id:               id,
		fixed:            make(map[string]any),
		inputComponents:  make(map[string]*Component),
		outputComponents: make(map[string]*Component),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (f *NodeFactory) nextInputSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputCount++
	return f.inputCount
}

// FuncImpl is the signature of a function node's computation. Inputs are
// keyed by input port; only slots present in the resolved input set appear
// in the map. The returned value may be a scalar, a map[string]any keyed by
// output port, or a []any aligned positionally to the output ports.
type FuncImpl func(ctx context.Context, inputs map[string]any) (any, error)

// FuncNode executes a user-supplied Go function.
type FuncNode struct {
	nodeCore
	fn FuncImpl
}

// Func creates a function node. The default name derives from the function
// symbol; input ports must be declared via WithInputs or WithInput; outputs
// default to ["output"].
func (f *NodeFactory) Func(fn FuncImpl, opts ...NodeOption) *FuncNode {
	if fn == nil {
		panic("daggr: function node requires a non-nil function")
	}
	c := f.newCore(opts)
	n := &FuncNode{nodeCore: *c, fn: fn}
	n.self = n
	if n.name == "" {
		n.name = funcName(fn, n.id)
	}
	if len(n.outputPorts) == 0 {
		n.outputPorts = []string{"output"}
	}
	n.resolved = true
	n.validatePortNames()
	return n
}

func (n *FuncNode) execute(ctx context.Context, inputs map[string]any) (Value, error) {
	call := make(map[string]any, len(n.inputPorts))
	for _, port := range n.inputPorts {
		if v, ok := inputs[port]; ok {
			call[port] = v
		}
	}
	raw, err := n.fn(ctx, call)
	if err != nil {
		return nil, err
	}
	return mapToPorts(raw, n.outputPorts), nil
}

// RemoteNode delegates execution to an external synchronous backend. Its
// ports are discovered from the backend exactly once, on first resolution.
type RemoteNode struct {
	nodeCore
	caller       Caller
	discoverOnce sync.Once
}

// Remote creates a node backed by a Caller. The default name is the last
// path segment of the caller's target. Ports are populated lazily by
// ResolvePorts; WithInputs overrides the discovered parameter list.
func (f *NodeFactory) Remote(caller Caller, opts ...NodeOption) *RemoteNode {
	if caller == nil {
		panic("daggr: remote node requires a non-nil caller")
	}
	c := f.newCore(opts)
	n := &RemoteNode{nodeCore: *c, caller: caller}
	n.self = n
	if n.name == "" {
		n.name = targetSlug(caller.Target())
	}
	return n
}

// ResolvePorts performs the one-time backend round-trip that populates the
// node's ports. Discovery failure is a warning, not an error: the node
// falls back to singleton ports so a graph referencing it can still
// validate and run.
func (n *RemoteNode) ResolvePorts(ctx context.Context) error {
	n.discoverOnce.Do(func() {
		sig, err := n.caller.Describe(ctx)
		if err != nil {
			slog.Warn("could not discover ports for remote node",
				slog.String("node", n.name),
				slog.String("target", n.caller.Target()),
				slog.String("error", err.Error()),
			)
		} else if sig != nil {
			if !n.inputsDeclared {
				n.inputPorts = nil
				for i, p := range sig.Parameters {
					n.inputPorts = append(n.inputPorts, paramPortName(p, "input", i))
				}
			}
			if len(n.outputPorts) == 0 {
				for i, r := range sig.Returns {
					n.outputPorts = append(n.outputPorts, paramPortName(r, "output", i))
				}
			}
		}
		if len(n.inputPorts) == 0 {
			n.inputPorts = []string{"input"}
		}
		if len(n.outputPorts) == 0 {
			n.outputPorts = []string{"output"}
		}
		n.resolved = true
		n.validatePortNames()
	})
	return nil
}

func (n *RemoteNode) execute(ctx context.Context, inputs map[string]any) (Value, error) {
	if err := n.ResolvePorts(ctx); err != nil {
		return nil, err
	}
	args := make(map[string]any, len(n.inputPorts))
	for _, port := range n.inputPorts {
		if v, ok := inputs[port]; ok {
			args[port] = v
		}
	}
	raw, err := n.caller.Call(ctx, args)
	if err != nil {
		return nil, err
	}
	return mapToPorts(raw, n.outputPorts), nil
}

// InteractionNode returns its single resolved "input" value unchanged.
// Frontends insert these where a human inspects or edits a value in
// transit; the engine treats them as identity.
type InteractionNode struct {
	nodeCore
	kind string
}

// Interaction creates a passthrough node of the given interaction kind
// (e.g. "generic", "review"). Ports default to a single "input" and
// "output" unless declared through options.
func (f *NodeFactory) Interaction(kind string, opts ...NodeOption) *InteractionNode {
	c := f.newCore(opts)
	n := &InteractionNode{nodeCore: *c, kind: kind}
	n.self = n
	if n.name == "" {
		n.name = fmt.Sprintf("interaction_%d", n.id)
	}
	if len(n.inputPorts) == 0 {
		n.inputPorts = []string{"input"}
	}
	if len(n.outputPorts) == 0 {
		n.outputPorts = []string{"output"}
	}
	n.resolved = true
	n.validatePortNames()
	return n
}

// Kind returns the interaction kind.
func (n *InteractionNode) Kind() string { return n.kind }

func (n *InteractionNode) execute(ctx context.Context, inputs map[string]any) (Value, error) {
	v, ok := inputs["input"]
	if !ok && len(n.inputPorts) > 0 {
		v = inputs[n.inputPorts[0]]
	}
	return toValue(v), nil
}

// InputNode supplies static values: one output port per component, emitting
// the component's current value (or a run-time override keyed by the port
// name). Wired inputs are ignored; the node declares no input ports.
type InputNode struct {
	nodeCore
}

// Input creates a static-input node from an ordered component list. Output
// port names come from component labels, defaulting to input_<i>.
func (f *NodeFactory) Input(components []*Component, opts ...NodeOption) *InputNode {
	c := f.newCore(opts)
	n := &InputNode{nodeCore: *c}
	n.self = n
	if n.name == "" {
		n.name = fmt.Sprintf("input_%d", f.nextInputSeq())
	}
	n.inputPorts = nil
	n.outputPorts = nil
	for i, comp := range components {
		port := fmt.Sprintf("input_%d", i)
		if comp != nil && comp.Label != "" {
			port = comp.Label
		}
		n.outputPorts = append(n.outputPorts, port)
		if comp != nil {
			n.outputComponents[port] = comp
		}
	}
	n.resolved = true
	n.validatePortNames()
	return n
}

func (n *InputNode) execute(ctx context.Context, inputs map[string]any) (Value, error) {
	fields := make(map[string]any, len(n.outputPorts))
	for _, port := range n.outputPorts {
		if v, ok := inputs[port]; ok {
			fields[port] = v
			continue
		}
		if comp, ok := n.outputComponents[port]; ok {
			fields[port] = comp.Value
			continue
		}
		fields[port] = nil
	}
	return Labeled{Fields: fields}, nil
}

// funcName derives a display name from a function symbol, falling back to
// func_<id> for anonymous functions.
func funcName(fn FuncImpl, id int) string {
	pc := reflect.ValueOf(fn).Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return fmt.Sprintf("func_%d", id)
	}
	full := rf.Name()
	full = strings.TrimSuffix(full, "-fm")
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		full = full[idx+1:]
	}
	// Anonymous closures compile to funcN symbols; those are not names.
	if full == "" || strings.HasPrefix(full, "func") && isDigits(strings.TrimPrefix(full, "func")) {
		return fmt.Sprintf("func_%d", id)
	}
	return full
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// targetSlug returns the last path segment of a remote target identifier.
func targetSlug(target string) string {
	if idx := strings.LastIndex(target, "/"); idx >= 0 && idx < len(target)-1 {
		return target[idx+1:]
	}
	return target
}

// paramPortName picks a port name for a discovered parameter or return:
// name, else label, else <prefix>_<i>.
func paramPortName(p Param, prefix string, i int) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Label != "" {
		return p.Label
	}
	return fmt.Sprintf("%s_%d", prefix, i)
}
