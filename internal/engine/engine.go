// Package engine schedules flattened graphs: serially, on a bounded pool,
// or through task queues to external workers. All three share one per-node
// pipeline; they differ only in how the frontier is walked.
package engine

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
	"github.com/petrijr/grafo/pkg/dag"
)

// Config describes how to construct an Engine. Zero-value fields fall back
// to in-memory or no-op defaults; external callers use the grafo package
// helpers instead of building a Config by hand.
type Config struct {
	Store    runstore.Store
	Events   runstore.EventStore
	Observer api.Observer
	Logger   *slog.Logger

	// Tasks and Results enable the distributed scheduler. A run requesting
	// it without both queues fails with api.ErrNoQueue.
	Tasks   taskqueue.Queue
	Results taskqueue.Queue
}

// Engine executes graphs against a memoization store. It is safe for
// concurrent use; independent runs may proceed in parallel.
type Engine struct {
	store    runstore.Store
	events   runstore.EventStore
	observer api.Observer
	log      *slog.Logger
	tasks    taskqueue.Queue
	results  taskqueue.Queue
}

// New creates an Engine from cfg, applying defaults for nil fields.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = runstore.NewMemoryStore()
	}
	if cfg.Events == nil {
		cfg.Events = runstore.NoopEventStore{}
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:    cfg.Store,
		events:   cfg.Events,
		observer: cfg.Observer,
		log:      cfg.Logger,
		tasks:    cfg.Tasks,
		results:  cfg.Results,
	}
}

// Store returns the engine's memoization store.
func (e *Engine) Store() runstore.Store { return e.store }

// Run flattens g, executes it under cfg, and returns the per-node report.
//
// Node failures do not abort the run: independent branches complete and the
// failed node's dependent subtree is marked failed with upstream-failure
// errors. Run itself returns an error only for infrastructure problems
// that prevent a complete report: an invalid graph, a cancelled context,
// a missing queue.
func (e *Engine) Run(ctx context.Context, g *dag.Graph, cfg api.RunConfig) (*api.RunReport, error) {
	cfg = cfg.Normalize()

	plan, err := g.Flatten()
	if err != nil {
		return nil, err
	}

	run := api.RunRef{RunID: uuid.NewString(), Graph: plan.Graph}

	e.observer.OnRunStart(ctx, run)
	e.appendEvent(ctx, api.RunEvent{
		RunID: run.RunID,
		Type:  api.EventRunStarted,
		Graph: run.Graph,
	})

	startedAt := time.Now()
	ex := &executor{
		eng:  e,
		plan: plan,
		run:  run,
		cfg:  cfg,
		res:  newResultSet(plan.Len()),
	}

	switch cfg.Scheduler {
	case api.SchedulerSerial:
		err = ex.runSerial(ctx)
	case api.SchedulerParallel:
		err = ex.runParallel(ctx)
	case api.SchedulerDistributed:
		err = ex.runDistributed(ctx)
	default:
		err = fmt.Errorf("unknown scheduler %q", cfg.Scheduler)
	}
	if err != nil {
		e.observer.OnRunFailed(ctx, run, err)
		e.appendEvent(ctx, api.RunEvent{
			RunID:  run.RunID,
			Type:   api.EventRunFailed,
			Graph:  run.Graph,
			Detail: err.Error(),
		})
		return nil, err
	}

	report := &api.RunReport{
		RunID:      run.RunID,
		Graph:      run.Graph,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Outcomes:   ex.res.all(),
	}

	counts := report.Counts()
	e.observer.OnRunCompleted(ctx, run, report)
	e.appendEvent(ctx, api.RunEvent{
		RunID: run.RunID,
		Type:  api.EventRunCompleted,
		Graph: run.Graph,
		Detail: fmt.Sprintf("succeeded=%d skipped=%d failed=%d",
			counts[api.NodeSucceeded], counts[api.NodeSkipped], counts[api.NodeFailed]),
	})

	return report, nil
}

// History returns the recorded events of a run, in append order. Engines
// built without an event store return an empty history.
func (e *Engine) History(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return e.events.ListEvents(ctx, runID)
}

// Records returns the memoized results currently stored for a graph.
func (e *Engine) Records(ctx context.Context, graph string) ([]runstore.Record, error) {
	return e.store.List(ctx, graph)
}

// Close releases the engine-owned store and queues. Shared handles such as
// a caller-provided *sql.DB stay open.
func (e *Engine) Close() error {
	var errs []error
	if e.tasks != nil {
		errs = append(errs, e.tasks.Close())
	}
	if e.results != nil {
		errs = append(errs, e.results.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// appendEvent records a history event best-effort: a broken event store
// degrades observability, not execution.
func (e *Engine) appendEvent(ctx context.Context, ev api.RunEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := e.events.AppendEvent(ctx, ev); err != nil {
		e.log.WarnContext(ctx, "append run event failed",
			slog.String("run_id", ev.RunID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
