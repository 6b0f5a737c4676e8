package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// GraphDef is a declarative graph definition.
type GraphDef struct {
	Name  string    `yaml:"name" json:"name"`
	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
	Edges []EdgeDef `yaml:"edges" json:"edges"`
}

// NodeDef declares one node. Kind selects the variant; the remaining
// fields apply per kind as documented on each.
type NodeDef struct {
	Name string `yaml:"name" json:"name"`

	// Kind is one of "func", "remote", "interaction", "input".
	Kind string `yaml:"kind" json:"kind"`

	// Impl names the registered implementation (func and remote kinds).
	Impl string `yaml:"impl,omitempty" json:"impl,omitempty"`

	// Inputs declares the ordered input ports (func; optional override
	// for remote).
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Outputs declares the ordered output ports (func and remote;
	// optional).
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Fixed holds construction-time constants keyed by input port.
	Fixed map[string]any `yaml:"fixed,omitempty" json:"fixed,omitempty"`

	// Interaction is the interaction kind (interaction kind only);
	// defaults to "generic".
	Interaction string `yaml:"interaction,omitempty" json:"interaction,omitempty"`

	// Components declares the static values of an input-kind node.
	Components []ComponentDef `yaml:"components,omitempty" json:"components,omitempty"`
}

// ComponentDef declares a UI component attached to a port.
type ComponentDef struct {
	Kind  string `yaml:"kind" json:"kind"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// EdgeDef declares a wire between two "node.port" references.
type EdgeDef struct {
	From    string `yaml:"from" json:"from"`
	To      string `yaml:"to" json:"to"`
	Scatter bool   `yaml:"scatter,omitempty" json:"scatter,omitempty"`
	Gather  bool   `yaml:"gather,omitempty" json:"gather,omitempty"`
}

// FromFile loads a graph definition, auto-detecting the format by
// extension. Supported extensions: .yaml, .yml, .json.
func FromFile(path string) (*GraphDef, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var parse func([]byte) (*GraphDef, error)
	switch ext {
	case ".yaml", ".yml":
		parse = FromYAML
	case ".json":
		parse = FromJSON
	default:
		return nil, fmt.Errorf("unsupported definition file extension: %s", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return parse(data)
}

// FromYAML parses a YAML graph definition.
func FromYAML(data []byte) (*GraphDef, error) {
	var def GraphDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := def.check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// FromJSON parses a JSON graph definition.
func FromJSON(data []byte) (*GraphDef, error) {
	var def GraphDef
	if err := sonic.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if err := def.check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// check performs the structural validation that needs no registries:
// required fields, known kinds, unique names, resolvable edge references.
func (d *GraphDef) check() error {
	if d.Name == "" {
		return fmt.Errorf("definition has no graph name")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("definition %q declares no nodes", d.Name)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node %d has no name", i)
		}
		if strings.Contains(n.Name, ".") {
			return fmt.Errorf("node name %q contains a dot; dots separate node and port in edge references", n.Name)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true

		switch n.Kind {
		case "func", "remote":
			if n.Impl == "" {
				return fmt.Errorf("node %q (kind %s) names no impl", n.Name, n.Kind)
			}
		case "interaction":
		case "input":
			if len(n.Components) == 0 {
				return fmt.Errorf("input node %q declares no components", n.Name)
			}
		default:
			return fmt.Errorf("node %q has unknown kind %q", n.Name, n.Kind)
		}
	}

	for i, e := range d.Edges {
		for _, ref := range []string{e.From, e.To} {
			node, _, err := splitPortRef(ref)
			if err != nil {
				return fmt.Errorf("edge %d: %w", i, err)
			}
			if !seen[node] {
				return fmt.Errorf("edge %d references undeclared node %q", i, node)
			}
		}
		if e.Scatter && e.Gather {
			return fmt.Errorf("edge %d (%s -> %s) is marked both scatter and gather", i, e.From, e.To)
		}
	}
	return nil
}

// splitPortRef splits a "node.port" reference.
func splitPortRef(ref string) (node, port string, err error) {
	node, port, ok := strings.Cut(ref, ".")
	if !ok || node == "" || port == "" {
		return "", "", fmt.Errorf("port reference %q is not of the form node.port", ref)
	}
	return node, port, nil
}
