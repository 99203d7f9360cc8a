package dag

import (
	"errors"
	"fmt"

	"github.com/petrijr/grafo/pkg/api"
)

// Connection records one output -> input edge between two vertices of the
// same graph. For an embedded graph the field names are export aliases.
type Connection struct {
	From FieldRef
	To   FieldRef
}

// Export maps an exported alias of a graph to a field of one of its inner
// instances.
type Export struct {
	Instance string
	Field    string
}

// Link is the batch form of Connect.
type Link struct {
	From      string
	FromField string
	To        string
	ToField   string
}

// Graph is a named DAG of step instances connected by typed field edges.
// A graph can itself be embedded as a single vertex inside a parent graph;
// its externally visible fields are the aliases declared with ExportInput
// and ExportOutput.
//
// Structural mistakes (unknown names, double bindings, cycles) are rejected
// by the mutating call that introduces them and leave the graph unchanged.
// Graphs are not safe for concurrent mutation.
type Graph struct {
	name  string
	nodes map[string]*Node
	subs  map[string]*Graph
	order []string
	conns []Connection

	exportsIn      map[string]Export
	exportsOut     map[string]Export
	exportInOrder  []string
	exportOutOrder []string
}

// New creates an empty graph. It panics on an invalid name: the name keys
// the on-disk run hierarchy, so accepting a bad one would corrupt every
// later run.
func New(name string) *Graph {
	if err := validateName(name); err != nil {
		panic(err)
	}
	return &Graph{
		name:       name,
		nodes:      make(map[string]*Node),
		subs:       make(map[string]*Graph),
		exportsIn:  make(map[string]Export),
		exportsOut: make(map[string]Export),
	}
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// AddStep creates a node for the step under the given instance name and
// adds it to the graph.
func (g *Graph) AddStep(name string, step api.Step) (*Node, error) {
	n, err := NewNode(name, step)
	if err != nil {
		return nil, err
	}
	if err := g.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddNode adds an existing node. The instance name must be unique among the
// graph's nodes and embedded graphs.
func (g *Graph) AddNode(n *Node) error {
	if g.vertexExists(n.name) {
		return &api.DuplicateNameError{Name: n.name, Where: fmt.Sprintf("graph %q", g.name)}
	}
	g.nodes[n.name] = n
	g.order = append(g.order, n.name)
	return nil
}

// AddGraph embeds sub as a single vertex under its own name. The parent
// connects to it through its exported aliases.
func (g *Graph) AddGraph(sub *Graph) error {
	if sub == nil {
		return fmt.Errorf("graph %q: cannot embed a nil graph", g.name)
	}
	if sub.contains(g) || sub == g {
		return fmt.Errorf("graph %q: embedding %q would nest a graph inside itself", g.name, sub.name)
	}
	if g.vertexExists(sub.name) {
		return &api.DuplicateNameError{Name: sub.name, Where: fmt.Sprintf("graph %q", g.name)}
	}
	g.subs[sub.name] = sub
	g.order = append(g.order, sub.name)
	return nil
}

// contains reports whether g transitively embeds target.
func (g *Graph) contains(target *Graph) bool {
	for _, s := range g.subs {
		if s == target || s.contains(target) {
			return true
		}
	}
	return false
}

// Node returns the named node of this graph.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Sub returns the named embedded graph.
func (g *Graph) Sub(name string) (*Graph, bool) {
	s, ok := g.subs[name]
	return s, ok
}

// Connections returns a copy of the graph's edge list in creation order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, len(g.conns))
	copy(out, g.conns)
	return out
}

// ExportInput declares alias as an externally bindable input of this graph,
// forwarding to an input field of an inner instance. A parent graph that
// embeds this one binds the alias like any node field.
func (g *Graph) ExportInput(alias, instance, field string) error {
	if alias == "" {
		return &api.InvalidNameError{Name: alias, Reason: "empty"}
	}
	if _, exists := g.exportsIn[alias]; exists {
		return &api.DuplicateNameError{Name: alias, Where: fmt.Sprintf("exported inputs of graph %q", g.name)}
	}
	if _, err := g.inputSpec(instance, field); err != nil {
		return err
	}
	if owner, owned := g.inputOwner(instance, field); owned {
		return &api.DuplicateBindingError{
			Instance:       instance,
			Field:          field,
			SourceInstance: owner.Instance,
			SourceField:    owner.Field,
		}
	}
	g.exportsIn[alias] = Export{Instance: instance, Field: field}
	g.exportInOrder = append(g.exportInOrder, alias)
	return nil
}

// ExportOutput declares alias as an externally readable output of this
// graph, forwarding from an output field of an inner instance.
func (g *Graph) ExportOutput(alias, instance, field string) error {
	if alias == "" {
		return &api.InvalidNameError{Name: alias, Reason: "empty"}
	}
	if _, exists := g.exportsOut[alias]; exists {
		return &api.DuplicateNameError{Name: alias, Where: fmt.Sprintf("exported outputs of graph %q", g.name)}
	}
	if _, err := g.outputSpec(instance, field); err != nil {
		return err
	}
	g.exportsOut[alias] = Export{Instance: instance, Field: field}
	g.exportOutOrder = append(g.exportOutOrder, alias)
	return nil
}

// ExportedInputs returns the graph's input aliases in declaration order.
func (g *Graph) ExportedInputs() []string {
	out := make([]string, len(g.exportInOrder))
	copy(out, g.exportInOrder)
	return out
}

// ExportedOutputs returns the graph's output aliases in declaration order.
func (g *Graph) ExportedOutputs() []string {
	out := make([]string, len(g.exportOutOrder))
	copy(out, g.exportOutOrder)
	return out
}

// Connect wires one output field to one input field. It fails without
// modifying the graph when an endpoint is unknown, the kinds are
// incompatible, the destination field already has an incoming connection,
// or the edge would create a cycle.
func (g *Graph) Connect(src, srcField, dst, dstField string) error {
	if !g.vertexExists(src) {
		return &api.UnknownInstanceError{Graph: g.name, Instance: src}
	}
	if !g.vertexExists(dst) {
		return &api.UnknownInstanceError{Graph: g.name, Instance: dst}
	}
	srcSpec, err := g.outputSpec(src, srcField)
	if err != nil {
		return err
	}
	dstSpec, err := g.inputSpec(dst, dstField)
	if err != nil {
		return err
	}
	if !srcSpec.Kind.Compatible(dstSpec.Kind) {
		return &api.IncompatibleKindsError{
			SourceInstance: src,
			SourceField:    srcField,
			SourceKind:     srcSpec.Kind,
			DestInstance:   dst,
			DestField:      dstField,
			DestKind:       dstSpec.Kind,
		}
	}
	if owner, owned := g.inputOwner(dst, dstField); owned {
		return &api.DuplicateBindingError{
			Instance:       dst,
			Field:          dstField,
			SourceInstance: owner.Instance,
			SourceField:    owner.Field,
		}
	}
	if src == dst || g.reaches(dst, src) {
		return &api.CycleDetectedError{Graph: g.name, From: src, To: dst}
	}

	if n, ok := g.nodes[dst]; ok {
		if err := n.connect(dstField, FieldRef{Instance: src, Field: srcField}); err != nil {
			return err
		}
	}
	g.conns = append(g.conns, Connection{
		From: FieldRef{Instance: src, Field: srcField},
		To:   FieldRef{Instance: dst, Field: dstField},
	})
	return nil
}

// ConnectMany applies a batch of links, semantically equivalent to repeated
// Connect calls. The first failing link aborts the batch; earlier links
// stay applied.
func (g *Graph) ConnectMany(links []Link) error {
	for _, l := range links {
		if err := g.Connect(l.From, l.FromField, l.To, l.ToField); err != nil {
			return err
		}
	}
	return nil
}

// SetInput binds a literal value onto an instance's input field at graph
// level. For an embedded graph the field is an exported alias and the value
// writes through to the inner instance.
func (g *Graph) SetInput(instance, field string, value any) error {
	if n, ok := g.nodes[instance]; ok {
		return n.Set(field, value)
	}
	if s, ok := g.subs[instance]; ok {
		exp, ok := s.exportsIn[field]
		if !ok {
			return &api.UnknownFieldError{Instance: instance, Field: field}
		}
		if owner, owned := g.inputOwner(instance, field); owned {
			return &api.DuplicateBindingError{
				Instance:       instance,
				Field:          field,
				SourceInstance: owner.Instance,
				SourceField:    owner.Field,
			}
		}
		return s.SetInput(exp.Instance, exp.Field, value)
	}
	return &api.UnknownInstanceError{Graph: g.name, Instance: instance}
}

// Inputs returns the two-level binding view: instance name -> input field
// (or export alias) -> current binding. Unset declared fields appear with a
// zero Binding.
func (g *Graph) Inputs() map[string]map[string]Binding {
	out := make(map[string]map[string]Binding, len(g.order))
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			fields := make(map[string]Binding, len(n.step.Inputs))
			for _, f := range n.step.Inputs {
				fields[f.Name] = n.bindings[f.Name]
			}
			out[name] = fields
			continue
		}
		s := g.subs[name]
		fields := make(map[string]Binding, len(s.exportInOrder))
		for _, alias := range s.exportInOrder {
			fields[alias] = g.aliasBinding(name, s, alias)
		}
		out[name] = fields
	}
	return out
}

// aliasBinding reports the effective binding of an embedded graph's input
// alias: a parent-level connection if one owns it, otherwise the inner
// instance's own binding.
func (g *Graph) aliasBinding(subName string, s *Graph, alias string) Binding {
	if owner, owned := g.connOwner(subName, alias); owned {
		return Binding{Kind: BindConnection, Source: owner}
	}
	exp := s.exportsIn[alias]
	if n, ok := s.nodes[exp.Instance]; ok {
		return n.bindings[exp.Field]
	}
	if inner, ok := s.subs[exp.Instance]; ok {
		return s.aliasBinding(exp.Instance, inner, exp.Field)
	}
	return Binding{}
}

// Outputs returns the two-level schema view: instance name -> output field
// (or export alias) -> field spec.
func (g *Graph) Outputs() map[string]map[string]api.FieldSpec {
	out := make(map[string]map[string]api.FieldSpec, len(g.order))
	for _, name := range g.order {
		if n, ok := g.nodes[name]; ok {
			fields := make(map[string]api.FieldSpec, len(n.step.Outputs))
			for _, f := range n.step.Outputs {
				fields[f.Name] = f
			}
			out[name] = fields
			continue
		}
		s := g.subs[name]
		fields := make(map[string]api.FieldSpec, len(s.exportOutOrder))
		for _, alias := range s.exportOutOrder {
			if spec, err := g.outputSpec(name, alias); err == nil {
				fields[alias] = spec
			}
		}
		out[name] = fields
	}
	return out
}

// Validate is the pre-flight structural check: the graph must flatten into
// a DAG and every non-optional input of every node must be bound. Partial
// graphs fail with one joined error naming each unbound field.
func (g *Graph) Validate() error {
	plan, err := g.Flatten()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range plan.Order {
		pn := plan.Nodes[name]
		for _, f := range pn.Step.Inputs {
			if f.Optional {
				continue
			}
			if _, ok := pn.Literals[f.Name]; ok {
				continue
			}
			if _, ok := pn.Upstream[f.Name]; ok {
				continue
			}
			errs = append(errs, fmt.Errorf("required input %s.%s is unbound", name, f.Name))
		}
	}
	return errors.Join(errs...)
}

// vertexExists reports whether name is a node or embedded graph here.
func (g *Graph) vertexExists(name string) bool {
	if _, ok := g.nodes[name]; ok {
		return true
	}
	_, ok := g.subs[name]
	return ok
}

// inputSpec resolves the field spec behind an input endpoint, descending
// through export aliases of embedded graphs.
func (g *Graph) inputSpec(instance, field string) (api.FieldSpec, error) {
	if n, ok := g.nodes[instance]; ok {
		spec, ok := n.step.Input(field)
		if !ok {
			return api.FieldSpec{}, &api.UnknownFieldError{Instance: instance, Field: field}
		}
		return spec, nil
	}
	if s, ok := g.subs[instance]; ok {
		exp, ok := s.exportsIn[field]
		if !ok {
			return api.FieldSpec{}, &api.UnknownFieldError{Instance: instance, Field: field}
		}
		return s.inputSpec(exp.Instance, exp.Field)
	}
	return api.FieldSpec{}, &api.UnknownInstanceError{Graph: g.name, Instance: instance}
}

// outputSpec resolves the field spec behind an output endpoint.
func (g *Graph) outputSpec(instance, field string) (api.FieldSpec, error) {
	if n, ok := g.nodes[instance]; ok {
		spec, ok := n.step.Output(field)
		if !ok {
			return api.FieldSpec{}, &api.UnknownFieldError{Instance: instance, Field: field}
		}
		return spec, nil
	}
	if s, ok := g.subs[instance]; ok {
		exp, ok := s.exportsOut[field]
		if !ok {
			return api.FieldSpec{}, &api.UnknownFieldError{Instance: instance, Field: field}
		}
		return s.outputSpec(exp.Instance, exp.Field)
	}
	return api.FieldSpec{}, &api.UnknownInstanceError{Graph: g.name, Instance: instance}
}

// inputKey canonicalizes an input endpoint to the innermost node and field
// it resolves to, so two aliases of the same inner field collide.
func (g *Graph) inputKey(instance, field string) (string, bool) {
	if _, ok := g.nodes[instance]; ok {
		return instance + "." + field, true
	}
	if s, ok := g.subs[instance]; ok {
		exp, ok := s.exportsIn[field]
		if !ok {
			return "", false
		}
		inner, ok := s.inputKey(exp.Instance, exp.Field)
		if !ok {
			return "", false
		}
		return instance + "." + inner, true
	}
	return "", false
}

// connOwner finds the connection at this level whose destination resolves
// to the same inner field as (instance, field).
func (g *Graph) connOwner(instance, field string) (FieldRef, bool) {
	key, ok := g.inputKey(instance, field)
	if !ok {
		return FieldRef{}, false
	}
	for _, c := range g.conns {
		if c.To.Instance != instance {
			continue
		}
		ckey, ok := g.inputKey(c.To.Instance, c.To.Field)
		if ok && ckey == key {
			return c.From, true
		}
	}
	return FieldRef{}, false
}

// inputOwner reports whether a connection anywhere (this level or inside an
// embedded graph) already owns the input endpoint.
func (g *Graph) inputOwner(instance, field string) (FieldRef, bool) {
	if owner, owned := g.connOwner(instance, field); owned {
		return owner, true
	}
	if n, ok := g.nodes[instance]; ok {
		if b := n.bindings[field]; b.Kind == BindConnection {
			return b.Source, true
		}
		return FieldRef{}, false
	}
	if s, ok := g.subs[instance]; ok {
		exp, ok := s.exportsIn[field]
		if !ok {
			return FieldRef{}, false
		}
		return s.inputOwner(exp.Instance, exp.Field)
	}
	return FieldRef{}, false
}

// reaches reports whether to is reachable from from over the existing
// vertex-level edges.
func (g *Graph) reaches(from, to string) bool {
	adj := make(map[string][]string, len(g.order))
	for _, c := range g.conns {
		adj[c.From.Instance] = append(adj[c.From.Instance], c.To.Instance)
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if v == to {
			return true
		}
		for _, next := range adj[v] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
