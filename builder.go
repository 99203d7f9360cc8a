package grafo

import (
	"fmt"

	"github.com/petrijr/grafo/pkg/dag"
)

// GraphBuilder provides a fluent API for assembling graphs:
//
//	g, err := grafo.New("pipeline").
//	    Step("fetch", fetchStep).
//	    Step("parse", parseStep).
//	    Connect("fetch", "body", "parse", "raw").
//	    Input("fetch", "url", "https://example.com/feed").
//	    Build()
//
// Construction errors stick: after the first one, later calls are no-ops
// and Build returns it. Misuse that cannot come from data, an empty
// instance name or a step without a runner, panics instead.
type GraphBuilder struct {
	g   *dag.Graph
	err error
}

// New creates a new graph builder with the given name. Like NewGraph, it
// panics on an invalid name.
func New(name string) *GraphBuilder {
	return &GraphBuilder{g: dag.New(name)}
}

// Name returns the graph name.
func (b *GraphBuilder) Name() string {
	return b.g.Name()
}

// Step adds a node running the given step under the instance name.
func (b *GraphBuilder) Step(name string, step Step) *GraphBuilder {
	if name == "" {
		panic("grafo: instance name must not be empty")
	}
	if step.Runner == nil {
		panic(fmt.Sprintf("grafo: step for instance %q has no runner", name))
	}
	if b.err != nil {
		return b
	}
	_, err := b.g.AddStep(name, step)
	b.err = err
	return b
}

// Sub embeds an already built graph as a single vertex. The parent reaches
// it through the aliases the sub-graph exported.
func (b *GraphBuilder) Sub(sub *Graph) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.g.AddGraph(sub)
	return b
}

// Connect wires src's output field into dst's input field.
func (b *GraphBuilder) Connect(src, srcField, dst, dstField string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.g.Connect(src, srcField, dst, dstField)
	return b
}

// Input binds a literal value to a node's input field.
func (b *GraphBuilder) Input(instance, field string, value any) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.g.SetInput(instance, field, value)
	return b
}

// ExportInput exposes an inner input field under alias, for when the built
// graph is embedded in a parent.
func (b *GraphBuilder) ExportInput(alias, instance, field string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.g.ExportInput(alias, instance, field)
	return b
}

// ExportOutput exposes an inner output field under alias.
func (b *GraphBuilder) ExportOutput(alias, instance, field string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.g.ExportOutput(alias, instance, field)
	return b
}

// Build validates the graph and returns it, or the first construction or
// validation error.
func (b *GraphBuilder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.g.Validate(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// MustBuild is like Build but panics on error.
// Useful for graphs assembled during initialization in main().
func (b *GraphBuilder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
