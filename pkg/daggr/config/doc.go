/*
Package config loads declarative graph definitions from YAML or JSON and
materializes them into executable graphs.

# Definition format

A definition names the graph, its nodes, and its edges:

	name: pipeline
	nodes:
	  - name: double
	    kind: func
	    impl: double
	    inputs: [x]
	  - name: add_ten
	    kind: func
	    impl: add_ten
	    inputs: [y]
	edges:
	  - from: double.output
	    to: add_ten.y

Node kinds map to the engine's node variants: "func" and "remote" resolve
their impl name against a registry supplied at build time, "interaction" is
a passthrough of the given interaction kind, and "input" declares static
components. Edges reference ports as "node.port" and may carry scatter or
gather markers:

	edges:
	  - from: chunks.output
	    to: worker.item
	    scatter: true
	  - from: worker.output
	    to: merge.parts
	    gather: true

# Building

Loading parses and structurally checks the definition; Build resolves
implementation names and wires the graph:

	def, err := config.FromFile("pipeline.yaml")
	if err != nil { ... }

	funcs := registry.New[daggr.FuncImpl]()
	funcs.MustRegister("double", doubleImpl)
	funcs.MustRegister("add_ten", addTenImpl)

	graph, err := def.Build(config.Registries{Funcs: funcs})

Unknown impl names, malformed port references, and invalid edges surface
as build errors.
*/
package config
