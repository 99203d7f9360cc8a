package api

import (
	"context"
	"encoding/gob"
	"fmt"
	"sort"
)

func init() {
	gob.Register(Values{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
}

// ValueKind tags the type of a field's value. Kinds are matched when two
// fields are connected; KindAny is compatible with everything.
type ValueKind string

const (
	KindAny     ValueKind = "any"
	KindString  ValueKind = "string"
	KindInt     ValueKind = "int"
	KindFloat   ValueKind = "float"
	KindBool    ValueKind = "bool"
	KindBytes   ValueKind = "bytes"
	KindStrings ValueKind = "strings"
	KindMap     ValueKind = "map"
)

// KnownKind reports whether k is one of the declared value kinds.
// The empty kind is treated as KindAny.
func KnownKind(k ValueKind) bool {
	switch k {
	case "", KindAny, KindString, KindInt, KindFloat, KindBool, KindBytes, KindStrings, KindMap:
		return true
	}
	return false
}

// Compatible reports whether a value of kind k may flow into a field of
// kind other.
func (k ValueKind) Compatible(other ValueKind) bool {
	if k == KindAny || k == "" || other == KindAny || other == "" {
		return true
	}
	return k == other
}

// FieldSpec declares one named input or output field of a Step.
type FieldSpec struct {
	Name string
	Kind ValueKind

	// Optional marks an input field that may be left unbound, or an output
	// field the runner is allowed to omit.
	Optional bool

	// Doc is a short human-oriented description of the field.
	Doc string
}

// Values carries field name -> value mappings into and out of runners.
type Values map[string]any

// Clone returns a shallow copy of v. A nil map clones to nil.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Runner is the external operation behind a Step. The engine treats it as
// opaque: it never retries a runner and never reinterprets its semantics.
//
// The node's private working directory is available on the context via
// WorkDir for runners that produce file artifacts.
type Runner interface {
	Run(ctx context.Context, in Values) (Values, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, in Values) (Values, error)

func (f RunnerFunc) Run(ctx context.Context, in Values) (Values, error) {
	return f(ctx, in)
}

// DefaultVersion is assumed when a Step declares no version of its own.
const DefaultVersion = "v1"

// Step is an immutable schema for a unit of computation: a set of declared,
// typed input and output fields around an opaque Runner.
//
// Identity is Name plus Version. The version participates in cache
// fingerprints, so bumping it forces affected nodes (and their dependents)
// to re-execute even when input values are unchanged.
type Step struct {
	Name    string
	Version string
	Inputs  []FieldSpec
	Outputs []FieldSpec
	Runner  Runner
}

// ID returns the step's registry identity, "name@version".
func (s Step) ID() string {
	v := s.Version
	if v == "" {
		v = DefaultVersion
	}
	return s.Name + "@" + v
}

// Input looks up a declared input field by name.
func (s Step) Input(name string) (FieldSpec, bool) {
	for _, f := range s.Inputs {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Output looks up a declared output field by name.
func (s Step) Output(name string) (FieldSpec, bool) {
	for _, f := range s.Outputs {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks the schema for internal consistency: a non-empty name, a
// runner, unique non-empty field names, and known kinds.
func (s Step) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step has no name")
	}
	if s.Runner == nil {
		return fmt.Errorf("step %q has no runner", s.Name)
	}
	seen := make(map[string]bool, len(s.Inputs))
	for _, f := range s.Inputs {
		if f.Name == "" {
			return fmt.Errorf("step %q declares an unnamed input", s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("step %q declares input %q twice", s.Name, f.Name)
		}
		if !KnownKind(f.Kind) {
			return fmt.Errorf("step %q input %q has unknown kind %q", s.Name, f.Name, f.Kind)
		}
		seen[f.Name] = true
	}
	seen = make(map[string]bool, len(s.Outputs))
	for _, f := range s.Outputs {
		if f.Name == "" {
			return fmt.Errorf("step %q declares an unnamed output", s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("step %q declares output %q twice", s.Name, f.Name)
		}
		if !KnownKind(f.Kind) {
			return fmt.Errorf("step %q output %q has unknown kind %q", s.Name, f.Name, f.Kind)
		}
		seen[f.Name] = true
	}
	return nil
}

// ValidateOutputs checks values returned by a runner against the step's
// declared output schema. Every non-optional output must be present and no
// undeclared field may appear.
func ValidateOutputs(s Step, out Values) error {
	for _, f := range s.Outputs {
		if f.Optional {
			continue
		}
		if _, ok := out[f.Name]; !ok {
			return fmt.Errorf("step %q did not produce output %q", s.Name, f.Name)
		}
	}
	for name := range out {
		if _, ok := s.Output(name); !ok {
			return fmt.Errorf("step %q produced undeclared output %q", s.Name, name)
		}
	}
	return nil
}

// IdentityStep returns a pass-through Step that copies each declared field
// from input to output unchanged. It is the building block for parameter
// nodes and nested-graph boundaries: bind literals (or parent connections)
// on one side and fan the same values out on the other.
//
// Each field appears both as an input and as an output; its Optional flag
// applies to both sides, so an unset optional field is simply absent from
// the outputs.
func IdentityStep(name string, fields ...FieldSpec) Step {
	inputs := make([]FieldSpec, len(fields))
	outputs := make([]FieldSpec, len(fields))
	copy(inputs, fields)
	copy(outputs, fields)
	return Step{
		Name:    name,
		Inputs:  inputs,
		Outputs: outputs,
		Runner: RunnerFunc(func(ctx context.Context, in Values) (Values, error) {
			out := make(Values, len(fields))
			for _, f := range fields {
				if v, ok := in[f.Name]; ok {
					out[f.Name] = v
				}
			}
			return out, nil
		}),
	}
}

// ConstStep returns a Step with no inputs that always emits the given
// outputs. Useful as a graph source and in tests.
func ConstStep(name string, outputs Values) Step {
	specs := make([]FieldSpec, 0, len(outputs))
	for fname := range outputs {
		specs = append(specs, FieldSpec{Name: fname, Kind: KindAny})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	fixed := outputs.Clone()
	return Step{
		Name:    name,
		Outputs: specs,
		Runner: RunnerFunc(func(ctx context.Context, in Values) (Values, error) {
			return fixed.Clone(), nil
		}),
	}
}

type workDirKey struct{}

// WithWorkDir returns a context carrying the node's private working
// directory. The engine sets it before invoking a runner.
func WithWorkDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, workDirKey{}, dir)
}

// WorkDir returns the working directory reserved for the current node, if
// the context carries one.
func WorkDir(ctx context.Context) (string, bool) {
	dir, ok := ctx.Value(workDirKey{}).(string)
	return dir, ok
}
