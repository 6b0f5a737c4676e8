package daggr

import (
	"log/slog"
	"strconv"
	"strings"
)

// Value is the result of a node execution. It is a closed tagged union:
// the only implementations are Scalar, Labeled, Positional, and Envelope.
//
// Node backends and user functions return heterogeneous shapes; modeling
// them as an explicit union lets the input-resolution algorithm be a single
// exhaustive switch instead of duck-typed branching.
type Value interface {
	isValue()
}

// Scalar is a bare value: a number, string, struct, or anything else that
// is neither a labeled mapping nor an ordered sequence.
type Scalar struct {
	V any
}

// Labeled is a mapping keyed by output-port name.
type Labeled struct {
	Fields map[string]any
}

// Positional is an ordered sequence positionally aligned to the producing
// node's output ports.
type Positional struct {
	Items []any
}

// Envelope is the result of a scattered node: the source items that were
// fanned out and the per-item results, index-aligned. A failed item holds
// Labeled{"error": message} in its slot.
type Envelope struct {
	Items   []any
	Results []Value
}

func (Scalar) isValue()     {}
func (Labeled) isValue()    {}
func (Positional) isValue() {}
func (Envelope) isValue()   {}

// Unwrap converts a Value back to its plain Go representation. Envelopes
// become a map with "scattered_results" and "items" keys; the per-item
// results are themselves unwrapped.
func Unwrap(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Scalar:
		return val.V
	case Labeled:
		return val.Fields
	case Positional:
		return val.Items
	case Envelope:
		items := make([]any, len(val.Results))
		for i, r := range val.Results {
			items[i] = Unwrap(r)
		}
		return map[string]any{
			"scattered_results": items,
			"items":             val.Items,
		}
	default:
		return nil
	}
}

// toValue classifies a raw result into the union without consulting the
// producing node's output ports. Used for passthrough-style nodes whose
// output shape is whatever flowed in.
func toValue(raw any) Value {
	switch val := raw.(type) {
	case nil:
		return Scalar{}
	case Value:
		return val
	case map[string]any:
		return Labeled{Fields: val}
	case []any:
		return Positional{Items: val}
	default:
		return Scalar{V: raw}
	}
}

// mapToPorts reconciles a raw result onto declared output ports. Mappings
// pass through; sequences stay positional, consumed by index on the
// reading side (see positionalLookup) so a whole list can also be fanned
// out by a scattered edge; anything else binds to the first port.
func mapToPorts(raw any, ports []string) Value {
	if raw == nil {
		return Labeled{Fields: map[string]any{}}
	}
	first := "output"
	if len(ports) > 0 {
		first = ports[0]
	}
	switch val := raw.(type) {
	case map[string]any:
		return Labeled{Fields: val}
	case []any:
		return Positional{Items: val}
	default:
		return Labeled{Fields: map[string]any{first: raw}}
	}
}

// outputIndex derives a positional index from an output-port name: a port
// literally named "output" maps to index 0, "output_<k>" maps to k.
// Returns false when the name does not encode an index.
func outputIndex(port string) (int, bool) {
	trimmed := strings.ReplaceAll(port, "output_", "")
	trimmed = strings.ReplaceAll(trimmed, "output", "0")
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// positionalLookup assigns from an ordered sequence by the index encoded in
// the source port's name. Out-of-range or unparseable names fall back to
// the first element for compatibility with existing graphs; the fallback is
// logged so a genuine wiring bug is not silently masked.
func positionalLookup(logger *slog.Logger, items []any, sourceNode, sourcePort string) (any, bool) {
	idx, ok := outputIndex(sourcePort)
	if ok && idx >= 0 && idx < len(items) {
		return items[idx], true
	}
	if len(items) == 0 {
		return nil, false
	}
	reason := "index out of range"
	if !ok {
		reason = "port name does not encode an index"
	}
	if logger != nil {
		logger.Warn("positional port lookup fell back to first element",
			slog.String("node", sourceNode),
			slog.String("port", sourcePort),
			slog.String("reason", reason),
			slog.Int("len", len(items)),
		)
	}
	return items[0], true
}
