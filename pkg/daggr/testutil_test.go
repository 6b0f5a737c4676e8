package daggr

import (
	"context"
	"fmt"
)

// double multiplies its x input by two.
func double(_ context.Context, inputs map[string]any) (any, error) {
	return asInt(inputs["x"]) * 2, nil
}

// addTen adds ten to its y input.
func addTen(_ context.Context, inputs map[string]any) (any, error) {
	return asInt(inputs["y"]) + 10, nil
}

// identity returns its item input unchanged.
func identity(_ context.Context, inputs map[string]any) (any, error) {
	return inputs["item"], nil
}

// asInt coerces test inputs that may arrive as int or float64.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case nil:
		return 0
	default:
		panic(fmt.Sprintf("test value is not numeric: %T", v))
	}
}

// listSource produces a fixed three-item list.
func listSource(_ context.Context, _ map[string]any) (any, error) {
	return []any{"a", "b", "c"}, nil
}

// collect returns its seq input unchanged, for inspecting gathered wires.
func collect(_ context.Context, inputs map[string]any) (any, error) {
	return inputs["seq"], nil
}

// linkedGraph builds double -> add_ten with an edge on the default ports.
func linkedGraph(f *NodeFactory) (*Graph, *FuncNode, *FuncNode) {
	d := f.Func(double, WithName("double"), WithInputs("x"))
	a := f.Func(addTen, WithName("add_ten"), WithInputs("y"))
	g := NewGraph("pair")
	g.Connect(d.Output("output"), a.Input("y"))
	return g, d, a
}
