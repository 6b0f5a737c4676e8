package daggr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction and execution.
var (
	// ErrNodeNotFound indicates a referenced node is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotScattered indicates a scattered-item operation was requested
	// for a node that has no scattered incoming edge.
	ErrNotScattered = errors.New("node has no scattered input")

	// ErrCycle indicates the edge set is not acyclic.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrNilContext indicates an execution entry point was called with a
	// nil context.
	ErrNilContext = errors.New("context cannot be nil")
)

// ValidationError reports malformed edges and unresolved port references.
// It carries every violation found, not just the first.
type ValidationError struct {
	// Violations holds one human-readable message per problem.
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0]
	}
	return fmt.Sprintf("validation failed with %d violations:\n  %s",
		len(e.Violations), strings.Join(e.Violations, "\n  "))
}

// CycleError indicates the dependency graph is not acyclic.
// Nodes lists every node left unscheduled when ordering stalled.
type CycleError struct {
	Nodes []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving nodes: %s", strings.Join(e.Nodes, ", "))
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// NodeError wraps a failure surfaced by a node's own execution strategy.
type NodeError struct {
	// Node is the name of the node that failed.
	Node string
	// Op is the operation that failed (e.g. "execute", "resolve").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised during node execution, including the
// stack trace at the point of panic.
type PanicError struct {
	Node  string
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}

// ItemIndexError indicates a scattered-item index outside the stored item
// range.
type ItemIndexError struct {
	Node  string
	Index int
	Len   int
}

// Error implements the error interface.
func (e *ItemIndexError) Error() string {
	return fmt.Sprintf("node %s: item index %d out of range [0, %d)", e.Node, e.Index, e.Len)
}
