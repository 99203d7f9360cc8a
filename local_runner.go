package grafo

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, in-memory task queues, and a
// Worker over the caller's step registry, so SchedulerDistributed runs can
// be exercised inside a single process.
//
// Typical usage:
//
//	reg := grafo.NewRegistry()
//	reg.MustRegister(fetchStep)
//	reg.MustRegister(parseStep)
//
//	runner := grafo.NewLocalRunner(reg)
//	defer runner.Engine.Close()
//
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//
//	report, err := runner.Run(ctx, g, grafo.RunConfig{})
type LocalRunner struct {
	// Engine dispatches runs onto the in-memory queues.
	Engine Engine

	// Tasks and Results are the queues shared by Engine and Worker.
	Tasks   Queue
	Results Queue

	// Worker executes dispatched nodes using the caller's registry.
	Worker *Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner around reg. Engine and Worker
// share one in-memory store, so memoization behaves exactly as it would
// against a shared backend.
func NewLocalRunner(reg *Registry) *LocalRunner {
	store := runstore.NewMemoryStore()
	tasks := taskqueue.NewInMemoryQueue(1024)
	results := taskqueue.NewInMemoryQueue(1024)

	return &LocalRunner{
		Engine:  NewEngine(EngineConfig{Store: store, Tasks: tasks, Results: results}),
		Tasks:   tasks,
		Results: results,
		Worker:  worker.New(reg, store, tasks, results),
	}
}

// Run executes g over the runner's queues. A zero cfg.Scheduler is forced
// to SchedulerDistributed; any other value passes through, so the same
// runner can also execute serial and parallel runs.
func (r *LocalRunner) Run(ctx context.Context, g *Graph, cfg RunConfig) (*RunReport, error) {
	if cfg.Scheduler == "" {
		cfg.Scheduler = SchedulerDistributed
	}
	return r.Engine.Run(ctx, g, cfg)
}

// StartWorkers starts 'concurrency' worker goroutines that process tasks
// until Stop is called or the surrounding context ends.
//
// If StartWorkers is called again without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("grafo: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				_, err := r.Worker.ProcessOne(ctx)
				if err == nil {
					continue
				}
				if errors.Is(err, context.Canceled) ||
					errors.Is(err, context.DeadlineExceeded) ||
					errors.Is(err, ErrQueueClosed) {
					return
				}
				// Keep going so a single undeliverable result does not
				// kill the worker loop.
				slog.Warn("local runner worker error", slog.Any("error", err))
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
