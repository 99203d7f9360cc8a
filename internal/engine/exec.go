package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/pkg/api"
	"github.com/petrijr/grafo/pkg/dag"
)

// resultSet collects the terminal outcome of every node of one run. It is
// the source fingerprints are resolved from, so dependents always hash
// against the outcome their upstream actually reached.
type resultSet struct {
	mu  sync.RWMutex
	out map[string]*api.Outcome
}

func newResultSet(n int) *resultSet {
	return &resultSet{out: make(map[string]*api.Outcome, n)}
}

func (r *resultSet) put(out *api.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out[out.Node] = out
}

func (r *resultSet) get(name string) (*api.Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.out[name]
	return out, ok
}

// fingerprint implements dag.FingerprintResolver over settled outcomes.
// Only nodes that produced reusable outputs resolve.
func (r *resultSet) fingerprint(name string) (string, bool) {
	out, ok := r.get(name)
	if !ok {
		return "", false
	}
	switch out.Status {
	case api.NodeSucceeded, api.NodeSkipped:
		return out.Fingerprint, true
	}
	return "", false
}

func (r *resultSet) all() map[string]*api.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*api.Outcome, len(r.out))
	for k, v := range r.out {
		out[k] = v
	}
	return out
}

// executor drives one run of one plan. The scheduler variants share its
// per-node pipeline and differ only in how they walk the plan.
type executor struct {
	eng  *Engine
	plan *dag.Plan
	run  api.RunRef
	cfg  api.RunConfig
	res  *resultSet
}

// failedDep returns the first (alphabetically) direct dependency of name
// that ended in NodeFailed.
func (ex *executor) failedDep(name string) (string, bool) {
	for _, dep := range ex.plan.DepsOf(name) {
		if out, ok := ex.res.get(dep); ok && out.Status == api.NodeFailed {
			return dep, true
		}
	}
	return "", false
}

// executeNode runs one node through the full pipeline: upstream poisoning,
// fingerprint resolution, store lookup, input resolution, runner invocation.
// Every path produces a terminal Outcome; errors never escape as Go errors
// so sibling branches keep running.
func (ex *executor) executeNode(ctx context.Context, name string) *api.Outcome {
	pn := ex.plan.Nodes[name]

	if dep, ok := ex.failedDep(name); ok {
		return &api.Outcome{
			Node:   name,
			Status: api.NodeFailed,
			Err:    &api.UpstreamFailureError{Instance: name, Failed: dep},
		}
	}

	fp, err := pn.ResolveFingerprint(ex.res.fingerprint)
	if err != nil {
		return &api.Outcome{Node: name, Status: api.NodeFailed, Err: err}
	}

	if rec, err := ex.eng.store.Lookup(ctx, ex.run.Graph, name, fp); err == nil {
		return &api.Outcome{
			Node:        name,
			Status:      api.NodeSkipped,
			Outputs:     rec.Outputs,
			Fingerprint: fp,
		}
	} else if !errors.Is(err, runstore.ErrRecordNotFound) {
		// A broken store read degrades to a cache miss.
		ex.eng.log.WarnContext(ctx, "store lookup failed",
			slog.String("run_id", ex.run.RunID),
			slog.String("node", name),
			slog.Any("error", err),
		)
	}

	inputs, err := ex.resolveInputs(pn)
	if err != nil {
		return &api.Outcome{Node: name, Status: api.NodeFailed, Fingerprint: fp, Err: err}
	}

	return ex.invoke(ctx, pn, fp, inputs)
}

// resolveInputs assembles the runner's input values: literals first, then
// the propagated output value of every connected field. A connected field
// whose upstream omitted the (optional) output stays absent; a required
// input still absent after both passes fails the node.
func (ex *executor) resolveInputs(pn *dag.PlanNode) (api.Values, error) {
	in := pn.Literals.Clone()
	if in == nil {
		in = make(api.Values, len(pn.Upstream))
	}
	for field, ref := range pn.Upstream {
		out, ok := ex.res.get(ref.Instance)
		if !ok || (out.Status != api.NodeSucceeded && out.Status != api.NodeSkipped) {
			return nil, &api.UnresolvedError{Instance: pn.Name, Field: field, Source: ref.Instance}
		}
		if v, ok := out.Outputs[ref.Field]; ok {
			in[field] = v
		}
	}
	for _, f := range pn.Step.Inputs {
		if f.Optional {
			continue
		}
		if _, ok := in[f.Name]; !ok {
			return nil, fmt.Errorf("required input %s.%s is unbound", pn.Name, f.Name)
		}
	}
	return in, nil
}

// invoke runs the step's runner with the resolved inputs and settles the
// outcome. Successful outputs are validated against the step schema and
// persisted; persistence failures degrade to a warning since the outputs
// are already in hand.
func (ex *executor) invoke(ctx context.Context, pn *dag.PlanNode, fp string, in api.Values) *api.Outcome {
	eng := ex.eng
	out := &api.Outcome{
		Node:        pn.Name,
		Status:      api.NodeRunning,
		Fingerprint: fp,
		StartedAt:   time.Now(),
	}

	eng.observer.OnNodeStart(ctx, ex.run, pn.Name)
	eng.appendEvent(ctx, api.RunEvent{
		RunID: ex.run.RunID,
		Type:  api.EventNodeStarted,
		Graph: ex.run.Graph,
		Node:  pn.Name,
	})

	runCtx := ctx
	if ex.cfg.NodeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, ex.cfg.NodeTimeout)
		defer cancel()
	}
	if dir, err := eng.store.WorkDir(ex.run.Graph, pn.Name); err == nil {
		runCtx = api.WithWorkDir(runCtx, dir)
	} else {
		eng.log.WarnContext(ctx, "work dir unavailable",
			slog.String("node", pn.Name),
			slog.Any("error", err),
		)
	}

	values, err := pn.Step.Runner.Run(runCtx, in)
	out.Duration = time.Since(out.StartedAt)

	if err != nil {
		out.Status = api.NodeFailed
		if ex.cfg.NodeTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out.Err = &api.TimeoutError{Instance: pn.Name, Limit: ex.cfg.NodeTimeout}
		} else {
			out.Err = &api.ExecutionError{Instance: pn.Name, Step: pn.Step.ID(), Err: err}
		}
		return out
	}
	if err := api.ValidateOutputs(pn.Step, values); err != nil {
		out.Status = api.NodeFailed
		out.Err = &api.ExecutionError{Instance: pn.Name, Step: pn.Step.ID(), Err: err}
		return out
	}

	out.Status = api.NodeSucceeded
	out.Outputs = values

	rec := runstore.Record{
		GraphName:    ex.run.Graph,
		InstanceName: pn.Name,
		Fingerprint:  fp,
		StepID:       pn.Step.ID(),
		Outputs:      values,
		RunID:        ex.run.RunID,
		CreatedAt:    time.Now(),
	}
	if err := eng.store.Persist(ctx, rec); err != nil {
		eng.log.WarnContext(ctx, "persist run record failed",
			slog.String("run_id", ex.run.RunID),
			slog.String("node", pn.Name),
			slog.Any("error", err),
		)
	}
	return out
}

// settle records a terminal outcome and emits the matching observer
// callback and history event.
func (ex *executor) settle(ctx context.Context, out *api.Outcome) {
	ex.res.put(out)
	ex.eng.observer.OnNodeCompleted(ctx, ex.run, out)

	ev := api.RunEvent{
		RunID: ex.run.RunID,
		Graph: ex.run.Graph,
		Node:  out.Node,
	}
	switch out.Status {
	case api.NodeSucceeded:
		ev.Type = api.EventNodeSucceeded
		ev.Detail = out.Fingerprint
	case api.NodeSkipped:
		ev.Type = api.EventNodeSkipped
		ev.Detail = out.Fingerprint
	case api.NodeFailed:
		ev.Type = api.EventNodeFailed
		if out.Err != nil {
			ev.Detail = out.Err.Error()
		}
	}
	ex.eng.appendEvent(ctx, ev)
}
