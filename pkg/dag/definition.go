package dag

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/grafo/pkg/api"
)

// Definition is the serializable form of a graph: the structure without the
// runner code. Paired with a step registry it rebuilds the graph, so
// workflows can live in version-controlled YAML or JSON files.
type Definition struct {
	Name          string             `json:"name" yaml:"name"`
	Nodes         []NodeDefinition   `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Inputs        []InputDefinition  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Links         []LinkDefinition   `json:"links,omitempty" yaml:"links,omitempty"`
	ExportInputs  []ExportDefinition `json:"export_inputs,omitempty" yaml:"export_inputs,omitempty"`
	ExportOutputs []ExportDefinition `json:"export_outputs,omitempty" yaml:"export_outputs,omitempty"`
}

// NodeDefinition declares one vertex: a step instance (Step set, optionally
// Version) or an embedded graph (Graph set). Exactly one of the two forms
// must be used. Vertices rebuild in list order, which keeps the topological
// tie-breaking of the original graph.
type NodeDefinition struct {
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Step    string      `json:"step,omitempty" yaml:"step,omitempty"`
	Version string      `json:"version,omitempty" yaml:"version,omitempty"`
	Graph   *Definition `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// InputDefinition binds a literal value to an instance input field.
type InputDefinition struct {
	Instance string `json:"instance" yaml:"instance"`
	Field    string `json:"field" yaml:"field"`
	Value    any    `json:"value" yaml:"value"`
}

// LinkDefinition declares one output -> input connection.
type LinkDefinition struct {
	From      string `json:"from" yaml:"from"`
	FromField string `json:"from_field" yaml:"from_field"`
	To        string `json:"to" yaml:"to"`
	ToField   string `json:"to_field" yaml:"to_field"`
}

// ExportDefinition declares an exported alias of the graph.
type ExportDefinition struct {
	Alias    string `json:"alias" yaml:"alias"`
	Instance string `json:"instance" yaml:"instance"`
	Field    string `json:"field" yaml:"field"`
}

// Definition captures the graph's current structure. Literal values must be
// JSON/YAML-representable to survive serialization; the in-memory
// Definition itself carries them as-is.
func (g *Graph) Definition() Definition {
	d := Definition{Name: g.name}
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			nd := NodeDefinition{Name: name, Step: n.step.Name, Version: n.step.Version}
			d.Nodes = append(d.Nodes, nd)
			for _, f := range n.step.Inputs {
				if b := n.bindings[f.Name]; b.Kind == BindLiteral {
					d.Inputs = append(d.Inputs, InputDefinition{
						Instance: name, Field: f.Name, Value: b.Value,
					})
				}
			}
			continue
		}
		sub := g.subs[name].Definition()
		d.Nodes = append(d.Nodes, NodeDefinition{Graph: &sub})
	}
	for _, c := range g.conns {
		d.Links = append(d.Links, LinkDefinition{
			From: c.From.Instance, FromField: c.From.Field,
			To: c.To.Instance, ToField: c.To.Field,
		})
	}
	for _, alias := range g.exportInOrder {
		exp := g.exportsIn[alias]
		d.ExportInputs = append(d.ExportInputs, ExportDefinition{Alias: alias, Instance: exp.Instance, Field: exp.Field})
	}
	for _, alias := range g.exportOutOrder {
		exp := g.exportsOut[alias]
		d.ExportOutputs = append(d.ExportOutputs, ExportDefinition{Alias: alias, Instance: exp.Instance, Field: exp.Field})
	}
	return d
}

// Validate checks the definition's own shape. Build repeats the deeper
// structural checks through the graph constructors.
func (d Definition) Validate() error {
	if d.Name == "" {
		return &api.InvalidNameError{Name: d.Name, Reason: "empty"}
	}
	for i, nd := range d.Nodes {
		switch {
		case nd.Step != "" && nd.Graph != nil:
			return fmt.Errorf("definition %q: node %d sets both step and graph", d.Name, i)
		case nd.Step == "" && nd.Graph == nil:
			return fmt.Errorf("definition %q: node %d sets neither step nor graph", d.Name, i)
		case nd.Step != "" && nd.Name == "":
			return fmt.Errorf("definition %q: node %d has no name", d.Name, i)
		case nd.Graph != nil:
			if err := nd.Graph.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build reconstructs the graph, resolving step references through reg.
// Every structural invariant is re-checked by the normal constructors, so
// a hand-edited definition fails the same way hand-written code would.
func (d Definition) Build(reg *api.Registry) (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := validateName(d.Name); err != nil {
		return nil, err
	}
	g := New(d.Name)
	for _, nd := range d.Nodes {
		if nd.Graph != nil {
			sub, err := nd.Graph.Build(reg)
			if err != nil {
				return nil, err
			}
			if err := g.AddGraph(sub); err != nil {
				return nil, err
			}
			continue
		}
		step, ok := reg.Lookup(nd.Step, nd.Version)
		if !ok {
			return nil, fmt.Errorf("node %q: %w: %s@%s", nd.Name, api.ErrUnknownStep, nd.Step, nd.Version)
		}
		if _, err := g.AddStep(nd.Name, step); err != nil {
			return nil, err
		}
	}
	for _, in := range d.Inputs {
		if err := g.SetInput(in.Instance, in.Field, in.Value); err != nil {
			return nil, err
		}
	}
	for _, l := range d.Links {
		if err := g.Connect(l.From, l.FromField, l.To, l.ToField); err != nil {
			return nil, err
		}
	}
	for _, exp := range d.ExportInputs {
		if err := g.ExportInput(exp.Alias, exp.Instance, exp.Field); err != nil {
			return nil, err
		}
	}
	for _, exp := range d.ExportOutputs {
		if err := g.ExportOutput(exp.Alias, exp.Instance, exp.Field); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// JSON renders the definition as indented JSON.
func (d Definition) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// YAML renders the definition as YAML.
func (d Definition) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// DefinitionFromJSON parses a JSON definition.
func DefinitionFromJSON(data []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return Definition{}, fmt.Errorf("parse graph definition: %w", err)
	}
	return d, nil
}

// DefinitionFromYAML parses a YAML definition.
func DefinitionFromYAML(data []byte) (Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Definition{}, fmt.Errorf("parse graph definition: %w", err)
	}
	return d, nil
}
