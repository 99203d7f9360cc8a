package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/api"
	"github.com/petrijr/grafo/pkg/dag"
	"github.com/petrijr/grafo/pkg/worker"
)

// countingQueue counts enqueues so tests can assert what reached the wire.
type countingQueue struct {
	taskqueue.Queue
	enqueued atomic.Int32
}

func (q *countingQueue) Enqueue(ctx context.Context, t taskqueue.Task) error {
	q.enqueued.Add(1)
	return q.Queue.Enqueue(ctx, t)
}

// startDistributed builds an engine wired to in-memory queues and starts
// one worker executing steps from reg against the engine's store.
func startDistributed(t *testing.T, reg *api.Registry) (*Engine, *countingQueue) {
	t.Helper()

	store := runstore.NewMemoryStore()
	tasks := &countingQueue{Queue: taskqueue.NewInMemoryQueue(64)}
	results := taskqueue.NewInMemoryQueue(64)

	eng := New(Config{Store: store, Tasks: tasks, Results: results})
	t.Cleanup(func() { _ = eng.Close() })

	w := worker.New(reg, store, tasks, results)
	wctx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	go func() { _ = w.Run(wctx) }()

	return eng, tasks
}

func chainRegistry(c *chainCounters) *api.Registry {
	reg := api.NewRegistry()
	reg.MustRegister(countedStep("source", &c.src, identity))
	reg.MustRegister(countedStep("upper", &c.upper, strings.ToUpper))
	reg.MustRegister(countedStep("suffix", &c.suffix, func(s string) string { return s + "!" }))
	return reg
}

func TestDistributedRequiresQueues(t *testing.T) {
	eng := New(Config{})
	defer eng.Close()

	var c chainCounters
	g := buildChain(t, &c)

	_, err := eng.Run(context.Background(), g, api.RunConfig{Scheduler: api.SchedulerDistributed})
	if !errors.Is(err, api.ErrNoQueue) {
		t.Fatalf("err = %v, want ErrNoQueue", err)
	}
}

func TestDistributedRunCompletes(t *testing.T) {
	ctx := context.Background()
	var c chainCounters
	eng, tasks := startDistributed(t, chainRegistry(&c))

	g := buildChain(t, &c)
	report, err := eng.Run(ctx, g, api.RunConfig{Scheduler: api.SchedulerDistributed})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.OK() {
		t.Fatalf("run failed: %v", report.Failed())
	}
	out, _ := report.Outcome("suffix")
	if out.Outputs["text"] != "HELLO!" {
		t.Fatalf("final output = %v", out.Outputs)
	}
	if got := tasks.enqueued.Load(); got != 3 {
		t.Fatalf("%d tasks dispatched, want 3", got)
	}
	if c.src.Load() != 1 || c.upper.Load() != 1 || c.suffix.Load() != 1 {
		t.Fatalf("worker executions = %d %d %d", c.src.Load(), c.upper.Load(), c.suffix.Load())
	}
}

func TestDistributedCacheHitsBypassQueue(t *testing.T) {
	ctx := context.Background()
	var c chainCounters
	eng, tasks := startDistributed(t, chainRegistry(&c))

	g := buildChain(t, &c)
	if _, err := eng.Run(ctx, g, api.RunConfig{Scheduler: api.SchedulerDistributed}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	report, err := eng.Run(ctx, g, api.RunConfig{Scheduler: api.SchedulerDistributed})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for _, name := range []string{"src", "upper", "suffix"} {
		if got := report.Status(name); got != api.NodeSkipped {
			t.Fatalf("node %s status = %q, want SKIPPED", name, got)
		}
	}
	// Hits settle in the dispatcher; nothing new reaches the wire.
	if got := tasks.enqueued.Load(); got != 3 {
		t.Fatalf("%d tasks dispatched across both runs, want 3", got)
	}
	if c.suffix.Load() != 1 {
		t.Fatalf("worker re-executed a cached node %d times", c.suffix.Load())
	}
}

func forkedRegistry(failBad func() error) *api.Registry {
	reg := api.NewRegistry()
	pass := func(name string) api.Step {
		return api.Step{
			Name:    name,
			Inputs:  []api.FieldSpec{{Name: "text", Kind: api.KindString}},
			Outputs: []api.FieldSpec{{Name: "text", Kind: api.KindString}},
			Runner: api.RunnerFunc(func(ctx context.Context, in api.Values) (api.Values, error) {
				return api.Values{"text": in["text"]}, nil
			}),
		}
	}
	for _, name := range []string{"src", "good", "sink1", "sink2"} {
		reg.MustRegister(pass(name))
	}
	reg.MustRegister(api.Step{
		Name:    "bad",
		Inputs:  []api.FieldSpec{{Name: "text", Kind: api.KindString}},
		Outputs: []api.FieldSpec{{Name: "text", Kind: api.KindString}},
		Runner: api.RunnerFunc(func(ctx context.Context, in api.Values) (api.Values, error) {
			if err := failBad(); err != nil {
				return nil, err
			}
			return api.Values{"text": in["text"]}, nil
		}),
	})
	return reg
}

func TestDistributedFailureIsolation(t *testing.T) {
	ctx := context.Background()
	eng, _ := startDistributed(t, forkedRegistry(func() error { return errors.New("boom") }))

	// The graph-side runners never execute in distributed mode; the
	// worker's registry versions do.
	g := buildForked(t, func() error { return nil })

	report, err := eng.Run(ctx, g, api.RunConfig{Scheduler: api.SchedulerDistributed})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := report.Failed(); len(got) != 2 || got[0] != "bad" || got[1] != "sink1" {
		t.Fatalf("failed nodes = %v, want [bad sink1]", got)
	}
	if report.Status("sink2") != api.NodeSucceeded {
		t.Fatal("independent branch must complete despite the failure")
	}

	// The wire carries the error back as a typed execution failure.
	badOut, _ := report.Outcome("bad")
	var execErr *api.ExecutionError
	if !errors.As(badOut.Err, &execErr) {
		t.Fatalf("bad error = %T, want ExecutionError", badOut.Err)
	}
	if !strings.Contains(execErr.Error(), "boom") {
		t.Fatalf("execution error lost its message: %v", execErr)
	}
	sinkOut, _ := report.Outcome("sink1")
	if failed, ok := api.IsUpstreamFailure(sinkOut.Err); !ok || failed != "bad" {
		t.Fatalf("sink1 error = %v", sinkOut.Err)
	}
}

func TestDistributedUnknownStepFailsNode(t *testing.T) {
	ctx := context.Background()
	var c chainCounters
	reg := api.NewRegistry()
	reg.MustRegister(countedStep("source", &c.src, identity))
	reg.MustRegister(countedStep("upper", &c.upper, strings.ToUpper))
	// "suffix" is deliberately missing from the worker's registry.
	eng, _ := startDistributed(t, reg)

	g := buildChain(t, &c)
	report, err := eng.Run(ctx, g, api.RunConfig{Scheduler: api.SchedulerDistributed})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	out, _ := report.Outcome("suffix")
	if out.Status != api.NodeFailed {
		t.Fatalf("suffix status = %q, want FAILED", out.Status)
	}
	if !errors.Is(out.Err, api.ErrUnknownStep) {
		t.Fatalf("suffix error = %v, want ErrUnknownStep", out.Err)
	}
	if report.Status("upper") != api.NodeSucceeded {
		t.Fatal("registered steps should run normally")
	}
}

func TestDistributedHonorsNodeTimeout(t *testing.T) {
	ctx := context.Background()
	reg := api.NewRegistry()
	reg.MustRegister(api.Step{
		Name:    "slow",
		Outputs: []api.FieldSpec{{Name: "out", Kind: api.KindAny}},
		Runner: api.RunnerFunc(func(ctx context.Context, in api.Values) (api.Values, error) {
			select {
			case <-time.After(5 * time.Second):
				return api.Values{"out": 1}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	})
	eng, _ := startDistributed(t, reg)

	g := dag.New("slowgraph")
	if _, err := g.AddStep("slow", api.Step{
		Name:    "slow",
		Outputs: []api.FieldSpec{{Name: "out", Kind: api.KindAny}},
		Runner:  api.RunnerFunc(func(ctx context.Context, in api.Values) (api.Values, error) { return nil, nil }),
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	report, err := eng.Run(ctx, g, api.RunConfig{
		Scheduler:   api.SchedulerDistributed,
		NodeTimeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced")
	}
	out, _ := report.Outcome("slow")
	if !api.IsTimeout(out.Err) {
		t.Fatalf("slow error = %v, want TimeoutError", out.Err)
	}
}
