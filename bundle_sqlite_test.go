package grafo

import (
	"context"
	"testing"
)

func TestSQLiteBundle_DistributedRunSharesOneDatabase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	bundle, err := NewSQLiteBundle(db, textRegistry())
	if err != nil {
		t.Fatalf("NewSQLiteBundle failed: %v", err)
	}

	wctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bundle.Worker.Run(wctx)
	}()
	defer func() { stop(); <-done }()

	g := buildTextChain(t)
	report, err := bundle.Engine.Run(ctx, g, RunConfig{Scheduler: SchedulerDistributed})
	if err != nil {
		t.Fatalf("distributed run failed: %v", err)
	}
	requireChainOutput(t, report)

	// After the run both queues have drained back to empty.
	if n := bundle.tasks.Len(); n != 0 {
		t.Fatalf("task queue still holds %d tasks", n)
	}
	if n := bundle.results.Len(); n != 0 {
		t.Fatalf("results queue still holds %d tasks", n)
	}

	// Everything lives in the one database: a second bundle over it serves
	// the rerun from cache and can read the first run's history.
	second, err := NewSQLiteBundle(db, textRegistry())
	if err != nil {
		t.Fatalf("second NewSQLiteBundle failed: %v", err)
	}
	defer second.Engine.Close()

	rerun, err := second.Engine.Run(ctx, g, RunConfig{Scheduler: SchedulerDistributed})
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	for _, node := range []string{"src", "upper", "suffix"} {
		if rerun.Status(node) != NodeSkipped {
			t.Fatalf("%s rerun status = %s", node, rerun.Status(node))
		}
	}

	events, err := second.Engine.History(ctx, report.RunID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("first run's history lost")
	}

	if err := bundle.Engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
