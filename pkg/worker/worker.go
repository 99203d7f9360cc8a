package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/api"
)

// Worker pulls run-node tasks from a queue, executes them against a step
// registry, and answers on the results queue. Workers are stateless between
// tasks; any number of them may share the same pair of queues.
type Worker struct {
	reg     *api.Registry
	store   runstore.Store
	tasks   taskqueue.Queue
	results taskqueue.Queue
	log     *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(w *Worker) { w.log = log }
}

// New creates a Worker executing steps from reg, persisting successful
// results to store, and exchanging tasks over the given queues.
func New(reg *api.Registry, store runstore.Store, tasks, results taskqueue.Queue, opts ...Option) *Worker {
	w := &Worker{
		reg:     reg,
		store:   store,
		tasks:   tasks,
		results: results,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessOne pulls a single task from the queue and executes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing was obtained (cancellation,
//     closed queue, broken transport).
//   - processed == true, err == nil: the task was executed and answered.
//     A failing step is a normal answer; its error travels in the result
//     task, not here.
//   - processed == true, err != nil: the task was consumed but the answer
//     could not be delivered.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.tasks.Dequeue(ctx)
	if err != nil {
		return false, err
	}

	if task.Type != taskqueue.TaskTypeRunNode {
		w.log.WarnContext(ctx, "dropping task of unexpected type",
			slog.String("task_id", task.ID),
			slog.String("task_type", string(task.Type)),
		)
		return true, nil
	}

	res := w.execute(ctx, task)
	if err := w.results.Enqueue(ctx, res); err != nil {
		return true, fmt.Errorf("report result for node %s: %w", task.InstanceName, err)
	}
	return true, nil
}

// Run processes tasks until ctx is cancelled or the task queue is closed.
// Both are clean shutdowns; any other error is returned.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, taskqueue.ErrQueueClosed) {
				return nil
			}
			return err
		}
	}
}

// execute runs one node and builds its result task. The request's identity
// fields ride along unchanged so the dispatcher can correlate the answer.
func (w *Worker) execute(ctx context.Context, t *taskqueue.Task) taskqueue.Task {
	res := *t
	res.ID = uuid.NewString()
	res.Type = taskqueue.TaskTypeNodeResult
	res.Inputs = nil
	res.EnqueuedAt = time.Now()

	step, ok := w.reg.Lookup(t.StepName, t.StepVersion)
	if !ok {
		res.Error = fmt.Sprintf("step %s@%s not registered", t.StepName, t.StepVersion)
		res.ErrorKind = taskqueue.ErrorKindUnknownStep
		return res
	}

	w.log.DebugContext(ctx, "executing node",
		slog.String("run_id", t.RunID),
		slog.String("node", t.InstanceName),
		slog.String("step", step.ID()),
	)

	runCtx := ctx
	if t.NodeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.NodeTimeout)
		defer cancel()
	}
	if dir, err := w.store.WorkDir(t.GraphName, t.InstanceName); err == nil {
		runCtx = api.WithWorkDir(runCtx, dir)
	} else {
		w.log.WarnContext(ctx, "work dir unavailable",
			slog.String("node", t.InstanceName),
			slog.Any("error", err),
		)
	}

	out, err := step.Runner.Run(runCtx, t.Inputs)
	if err != nil {
		if t.NodeTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Error = fmt.Sprintf("node %s timed out after %s", t.InstanceName, t.NodeTimeout)
			res.ErrorKind = taskqueue.ErrorKindTimeout
		} else {
			res.Error = err.Error()
		}
		return res
	}
	if err := api.ValidateOutputs(step, out); err != nil {
		res.Error = err.Error()
		return res
	}

	res.Outputs = out

	rec := runstore.Record{
		GraphName:    t.GraphName,
		InstanceName: t.InstanceName,
		Fingerprint:  t.Fingerprint,
		StepID:       step.ID(),
		Outputs:      out,
		RunID:        t.RunID,
		CreatedAt:    time.Now(),
	}
	if err := w.store.Persist(ctx, rec); err != nil {
		// The outputs still travel back on the result, so the run proceeds;
		// only future cache hits are lost.
		w.log.WarnContext(ctx, "persist run record failed",
			slog.String("run_id", t.RunID),
			slog.String("node", t.InstanceName),
			slog.Any("error", err),
		)
	}
	return res
}
