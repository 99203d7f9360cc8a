package grafo

import (
	"context"

	"github.com/petrijr/grafo/pkg/api"
)

// FuncStep assembles a Step from a name, field declarations, and a runner
// function.
func FuncStep(name string, inputs, outputs []FieldSpec, fn RunnerFunc) Step {
	return Step{Name: name, Inputs: inputs, Outputs: outputs, Runner: fn}
}

// Field declares a named field of the given kind.
func Field(name string, kind ValueKind) FieldSpec {
	return FieldSpec{Name: name, Kind: kind}
}

// OptionalField declares a field that may be left unbound on the input
// side, or omitted by the runner on the output side.
func OptionalField(name string, kind ValueKind) FieldSpec {
	return FieldSpec{Name: name, Kind: kind, Optional: true}
}

// IdentityStep returns a pass-through step that copies each declared field
// from input to output unchanged.
func IdentityStep(name string, fields ...FieldSpec) Step {
	return api.IdentityStep(name, fields...)
}

// ConstStep returns a source step with no inputs that always emits the
// given outputs.
func ConstStep(name string, outputs Values) Step {
	return api.ConstStep(name, outputs)
}

// WorkDir returns the node's private working directory from a runner
// context, when the engine provided one.
func WorkDir(ctx context.Context) (string, bool) {
	return api.WorkDir(ctx)
}
