package dag

import (
	"strings"

	"github.com/petrijr/grafo/pkg/api"
)

// BindingKind distinguishes how an input field is currently bound.
type BindingKind string

const (
	BindUnset      BindingKind = ""
	BindLiteral    BindingKind = "literal"
	BindConnection BindingKind = "connection"
)

// FieldRef names an output field of another instance.
type FieldRef struct {
	Instance string
	Field    string
}

func (r FieldRef) String() string { return r.Instance + "." + r.Field }

// Binding is the current state of one input field of a node: unset, a
// literal value, or a connection to an upstream output.
type Binding struct {
	Kind   BindingKind
	Value  any
	Source FieldRef
}

// FingerprintResolver reports the already-computed fingerprint of an
// upstream instance, or false if that instance has not settled yet.
type FingerprintResolver func(instance string) (string, bool)

// Node is a named occurrence of a Step inside a Graph. It owns the binding
// state of the step's input fields.
//
// Nodes are not safe for concurrent mutation; build the graph first, then
// run it.
type Node struct {
	name     string
	step     api.Step
	bindings map[string]Binding
}

// NewNode validates the name and step schema and returns a fresh node with
// all inputs unset.
func NewNode(name string, step api.Step) (*Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := step.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		name:     name,
		step:     step,
		bindings: make(map[string]Binding),
	}, nil
}

// Name returns the node's instance name, unique within its graph.
func (n *Node) Name() string { return n.name }

// Step returns the node's immutable step schema.
func (n *Node) Step() api.Step { return n.step }

// Set binds a literal value to an input field. Rebinding a literal is
// allowed at any time, before or after a run; the fingerprint is derived
// fresh on every run. A field owned by a connection refuses literals.
func (n *Node) Set(field string, value any) error {
	if _, ok := n.step.Input(field); !ok {
		return &api.UnknownFieldError{Instance: n.name, Field: field}
	}
	if b := n.bindings[field]; b.Kind == BindConnection {
		return &api.DuplicateBindingError{
			Instance:       n.name,
			Field:          field,
			SourceInstance: b.Source.Instance,
			SourceField:    b.Source.Field,
		}
	}
	n.bindings[field] = Binding{Kind: BindLiteral, Value: value}
	return nil
}

// Unset clears a literal binding. Connection-owned fields refuse; the
// connection owns them until the graph is rebuilt.
func (n *Node) Unset(field string) error {
	if _, ok := n.step.Input(field); !ok {
		return &api.UnknownFieldError{Instance: n.name, Field: field}
	}
	if b := n.bindings[field]; b.Kind == BindConnection {
		return &api.DuplicateBindingError{
			Instance:       n.name,
			Field:          field,
			SourceInstance: b.Source.Instance,
			SourceField:    b.Source.Field,
		}
	}
	delete(n.bindings, field)
	return nil
}

// Binding returns the current binding state of an input field. The second
// return is false when the field is not part of the schema.
func (n *Node) Binding(field string) (Binding, bool) {
	if _, ok := n.step.Input(field); !ok {
		return Binding{}, false
	}
	return n.bindings[field], true
}

// Bindings returns a copy of all set bindings, keyed by field name.
func (n *Node) Bindings() map[string]Binding {
	out := make(map[string]Binding, len(n.bindings))
	for k, v := range n.bindings {
		out[k] = v
	}
	return out
}

// Literals returns the literal-bound input values.
func (n *Node) Literals() api.Values {
	out := make(api.Values)
	for field, b := range n.bindings {
		if b.Kind == BindLiteral {
			out[field] = b.Value
		}
	}
	return out
}

// connect takes connection ownership of an input field. A literal already
// bound there is displaced; a second connection is a DuplicateBindingError.
func (n *Node) connect(field string, src FieldRef) error {
	if _, ok := n.step.Input(field); !ok {
		return &api.UnknownFieldError{Instance: n.name, Field: field}
	}
	if b := n.bindings[field]; b.Kind == BindConnection {
		return &api.DuplicateBindingError{
			Instance:       n.name,
			Field:          field,
			SourceInstance: b.Source.Instance,
			SourceField:    b.Source.Field,
		}
	}
	n.bindings[field] = Binding{Kind: BindConnection, Source: src}
	return nil
}

// ResolveFingerprint derives the node's cache identity for the current run.
// Literal inputs are hashed by value; connection-bound inputs contribute
// their upstream instance's fingerprint, obtained through resolve. A
// missing upstream fingerprint is an UnresolvedError: with correct
// topological gating every dependency has settled first.
func (n *Node) ResolveFingerprint(resolve FingerprintResolver) (string, error) {
	literals := make(api.Values)
	var upstream map[string]api.UpstreamRef
	for field, b := range n.bindings {
		switch b.Kind {
		case BindLiteral:
			literals[field] = b.Value
		case BindConnection:
			fp, ok := resolve(b.Source.Instance)
			if !ok {
				return "", &api.UnresolvedError{Instance: n.name, Field: field, Source: b.Source.Instance}
			}
			if upstream == nil {
				upstream = make(map[string]api.UpstreamRef)
			}
			upstream[field] = api.UpstreamRef{
				Source:      b.Source.Instance,
				Field:       b.Source.Field,
				Fingerprint: fp,
			}
		}
	}
	return api.ComputeFingerprint(n.step.Name, n.step.Version, literals, upstream)
}

// validateName rejects names the engine cannot key safely: empty strings,
// path separators, and dots, which are reserved for the qualified names of
// flattened nested nodes.
func validateName(name string) error {
	switch {
	case name == "":
		return &api.InvalidNameError{Name: name, Reason: "empty"}
	case strings.ContainsRune(name, '/'):
		return &api.InvalidNameError{Name: name, Reason: "contains '/'"}
	case strings.ContainsRune(name, '.'):
		return &api.InvalidNameError{Name: name, Reason: "contains '.'"}
	}
	return nil
}
