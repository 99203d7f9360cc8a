package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// countingObserver records callback counts to verify fan-out behavior.
type countingObserver struct {
	mu sync.Mutex

	runStarts    int
	runCompletes int
	runFails     int
	nodeStarts   int
	nodeDone     int

	lastOutcome *Outcome
}

func (o *countingObserver) OnRunStart(ctx context.Context, run RunRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts++
}

func (o *countingObserver) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runCompletes++
}

func (o *countingObserver) OnRunFailed(ctx context.Context, run RunRef, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runFails++
}

func (o *countingObserver) OnNodeStart(ctx context.Context, run RunRef, node string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeStarts++
}

func (o *countingObserver) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeDone++
	o.lastOutcome = out
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	obs := NewCompositeObserver(a, nil, b)

	ctx := context.Background()
	run := RunRef{RunID: "r1", Graph: "prep"}
	obs.OnRunStart(ctx, run)
	obs.OnNodeStart(ctx, run, "realign")
	obs.OnNodeCompleted(ctx, run, &Outcome{Node: "realign", Status: NodeSucceeded})
	obs.OnRunCompleted(ctx, run, &RunReport{})

	for _, o := range []*countingObserver{a, b} {
		if o.runStarts != 1 || o.nodeStarts != 1 || o.nodeDone != 1 || o.runCompletes != 1 {
			t.Fatalf("observer missed events: %+v", o)
		}
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatalf("all-nil composite should collapse to NoopObserver")
	}
	single := &countingObserver{}
	if got := NewCompositeObserver(single, nil); got != Observer(single) {
		t.Fatalf("single observer should be returned unwrapped")
	}
}

func TestBasicMetricsSnapshot(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	run := RunRef{RunID: "r1", Graph: "prep"}

	m.OnRunStart(ctx, run)
	m.OnNodeCompleted(ctx, run, &Outcome{Node: "a", Status: NodeSucceeded, Duration: 20 * time.Millisecond})
	m.OnNodeCompleted(ctx, run, &Outcome{Node: "b", Status: NodeSucceeded, Duration: 40 * time.Millisecond})
	m.OnNodeCompleted(ctx, run, &Outcome{Node: "c", Status: NodeSkipped})
	m.OnNodeCompleted(ctx, run, &Outcome{Node: "d", Status: NodeFailed, Err: errors.New("boom")})
	m.OnRunCompleted(ctx, run, &RunReport{})

	snap := m.Snapshot()
	if snap.RunsStarted != 1 || snap.RunsCompleted != 1 || snap.ActiveRuns != 0 {
		t.Fatalf("run counters wrong: %+v", snap)
	}
	if snap.NodesSucceeded != 2 || snap.NodesSkipped != 1 || snap.NodesFailed != 1 {
		t.Fatalf("node counters wrong: %+v", snap)
	}
	if snap.AvgNodeDuration != 30*time.Millisecond {
		t.Fatalf("AvgNodeDuration = %v, want 30ms", snap.AvgNodeDuration)
	}
}

func TestBasicMetricsActiveRuns(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()

	m.OnRunStart(ctx, RunRef{RunID: "r1"})
	m.OnRunStart(ctx, RunRef{RunID: "r2"})
	m.OnRunFailed(ctx, RunRef{RunID: "r2"}, errors.New("flatten failed"))

	snap := m.Snapshot()
	if snap.ActiveRuns != 1 || snap.RunsFailed != 1 {
		t.Fatalf("active run accounting wrong: %+v", snap)
	}
}
