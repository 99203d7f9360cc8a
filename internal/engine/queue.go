package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/api"
)

// runDistributed walks the same frontier as the other schedulers but hands
// cache misses to workers over the task queue. Everything decidable without
// a runner settles in-process: poisoned nodes, fingerprint failures, and
// store hits never reach a queue. A single collector loop consumes the
// results queue and releases dependents as answers come back.
func (ex *executor) runDistributed(ctx context.Context) error {
	eng := ex.eng
	if eng.tasks == nil || eng.results == nil {
		return api.ErrNoQueue
	}

	n := ex.plan.Len()
	waiting := make(map[string]int, n)
	var worklist []string
	for _, name := range ex.plan.Order {
		if deps := len(ex.plan.DepsOf(name)); deps > 0 {
			waiting[name] = deps
		} else {
			worklist = append(worklist, name)
		}
	}

	settled, inflight := 0, 0
	release := func(name string) {
		for _, dep := range ex.plan.Dependents(name) {
			waiting[dep]--
			if waiting[dep] == 0 {
				delete(waiting, dep)
				worklist = append(worklist, dep)
			}
		}
	}

	for settled < n {
		for len(worklist) > 0 {
			name := worklist[0]
			worklist = worklist[1:]

			out, task := ex.prepareNode(ctx, name)
			if task != nil {
				if err := eng.tasks.Enqueue(ctx, *task); err != nil {
					return fmt.Errorf("enqueue node %s: %w", name, err)
				}
				inflight++
				continue
			}
			ex.settle(ctx, out)
			settled++
			release(name)
		}
		if settled == n {
			break
		}
		if inflight == 0 {
			return fmt.Errorf("run %s stalled: %d nodes unsettled with no work in flight",
				ex.run.RunID, n-settled)
		}

		res, err := eng.results.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("collect results: %w", err)
		}
		if res.Type != taskqueue.TaskTypeNodeResult || res.RunID != ex.run.RunID {
			eng.log.WarnContext(ctx, "dropping unexpected task on results queue",
				slog.String("run_id", ex.run.RunID),
				slog.String("task_id", res.ID),
				slog.String("task_type", string(res.Type)),
			)
			continue
		}

		ex.settle(ctx, ex.outcomeFromResult(res))
		settled++
		inflight--
		release(res.InstanceName)
	}
	return nil
}

// prepareNode decides a node's fate without a worker where possible. It
// returns either a settled outcome (poisoned, fingerprint failure, cache
// hit, unresolvable inputs) or the run-node task to dispatch.
func (ex *executor) prepareNode(ctx context.Context, name string) (*api.Outcome, *taskqueue.Task) {
	pn := ex.plan.Nodes[name]

	if dep, ok := ex.failedDep(name); ok {
		return &api.Outcome{
			Node:   name,
			Status: api.NodeFailed,
			Err:    &api.UpstreamFailureError{Instance: name, Failed: dep},
		}, nil
	}

	fp, err := pn.ResolveFingerprint(ex.res.fingerprint)
	if err != nil {
		return &api.Outcome{Node: name, Status: api.NodeFailed, Err: err}, nil
	}

	if rec, err := ex.eng.store.Lookup(ctx, ex.run.Graph, name, fp); err == nil {
		return &api.Outcome{
			Node:        name,
			Status:      api.NodeSkipped,
			Outputs:     rec.Outputs,
			Fingerprint: fp,
		}, nil
	} else if !errors.Is(err, runstore.ErrRecordNotFound) {
		ex.eng.log.WarnContext(ctx, "store lookup failed",
			slog.String("run_id", ex.run.RunID),
			slog.String("node", name),
			slog.Any("error", err),
		)
	}

	inputs, err := ex.resolveInputs(pn)
	if err != nil {
		return &api.Outcome{Node: name, Status: api.NodeFailed, Fingerprint: fp, Err: err}, nil
	}

	ex.eng.observer.OnNodeStart(ctx, ex.run, name)
	ex.eng.appendEvent(ctx, api.RunEvent{
		RunID: ex.run.RunID,
		Type:  api.EventNodeStarted,
		Graph: ex.run.Graph,
		Node:  name,
	})

	return nil, &taskqueue.Task{
		ID:           uuid.NewString(),
		Type:         taskqueue.TaskTypeRunNode,
		RunID:        ex.run.RunID,
		GraphName:    ex.run.Graph,
		InstanceName: name,
		Fingerprint:  fp,
		StepName:     pn.Step.Name,
		StepVersion:  pn.Step.Version,
		Inputs:       inputs,
		NodeTimeout:  ex.cfg.NodeTimeout,
	}
}

// outcomeFromResult rebuilds a typed outcome from a worker's wire answer.
func (ex *executor) outcomeFromResult(t *taskqueue.Task) *api.Outcome {
	out := &api.Outcome{
		Node:        t.InstanceName,
		Fingerprint: t.Fingerprint,
	}
	if t.Error == "" {
		out.Status = api.NodeSucceeded
		out.Outputs = t.Outputs
		return out
	}

	out.Status = api.NodeFailed
	stepID := t.StepName + "@" + t.StepVersion
	if t.StepVersion == "" {
		stepID = t.StepName + "@" + api.DefaultVersion
	}
	switch t.ErrorKind {
	case taskqueue.ErrorKindTimeout:
		out.Err = &api.TimeoutError{Instance: t.InstanceName, Limit: ex.cfg.NodeTimeout}
	case taskqueue.ErrorKindUnknownStep:
		out.Err = fmt.Errorf("%w: %s", api.ErrUnknownStep, stepID)
	default:
		out.Err = &api.ExecutionError{
			Instance: t.InstanceName,
			Step:     stepID,
			Err:      errors.New(t.Error),
		}
	}
	return out
}
