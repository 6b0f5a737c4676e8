package daggr

import "context"

// Caller is the delegation contract a RemoteNode requires of its backend:
// a synchronous call taking named arguments restricted to the node's
// declared input ports, returning a scalar, a map keyed by output-port
// label, or a positional sequence aligned to the declared output ports.
//
// The engine imposes no timeout of its own; callers that talk to the
// network should honor ctx cancellation and wrap their transport with
// whatever deadline policy they need.
type Caller interface {
	// Target identifies the backend (URL, model id, service slug). The
	// last path segment becomes the node's default name.
	Target() string

	// Call invokes the backend synchronously.
	Call(ctx context.Context, args map[string]any) (any, error)

	// Describe returns the backend's parameter and return lists. It is
	// invoked at most once per node, during port resolution.
	Describe(ctx context.Context) (*Signature, error)
}

// Param describes one discovered parameter or return slot.
type Param struct {
	Name  string
	Label string
}

// Signature is the discovered shape of a remote backend.
type Signature struct {
	Parameters []Param
	Returns    []Param
}

// CallerFunc adapts plain functions to the Caller interface for backends
// with statically known signatures.
type CallerFunc struct {
	// TargetID identifies the backend.
	TargetID string

	// Fn performs the synchronous call.
	Fn func(ctx context.Context, args map[string]any) (any, error)

	// Sig is returned verbatim from Describe. May be nil, in which case
	// the node falls back to singleton ports.
	Sig *Signature
}

// Target implements Caller.
func (c *CallerFunc) Target() string { return c.TargetID }

// Call implements Caller.
func (c *CallerFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return c.Fn(ctx, args)
}

// Describe implements Caller.
func (c *CallerFunc) Describe(ctx context.Context) (*Signature, error) {
	return c.Sig, nil
}
