package runstore

import (
	"context"
	"testing"
	"time"

	"github.com/petrijr/grafo/pkg/api"
)

func sampleEvents(runID string) []api.RunEvent {
	base := time.Now()
	return []api.RunEvent{
		{RunID: runID, At: base, Type: api.EventRunStarted, Graph: "pipeline"},
		{RunID: runID, At: base.Add(time.Millisecond), Type: api.EventNodeStarted, Graph: "pipeline", Node: "prep.align"},
		{RunID: runID, At: base.Add(2 * time.Millisecond), Type: api.EventNodeSucceeded, Graph: "pipeline", Node: "prep.align", Detail: "fp1"},
		{RunID: runID, At: base.Add(3 * time.Millisecond), Type: api.EventRunCompleted, Graph: "pipeline"},
	}
}

func exerciseEventStore(t *testing.T, store EventStore) {
	t.Helper()
	ctx := context.Background()

	for _, ev := range sampleEvents("run-1") {
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.AppendEvent(ctx, api.RunEvent{RunID: "run-2", Type: api.EventRunStarted}); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	// Append order is preserved.
	wantTypes := []api.EventType{api.EventRunStarted, api.EventNodeStarted, api.EventNodeSucceeded, api.EventRunCompleted}
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Fatalf("event %d type = %s, want %s", i, ev.Type, wantTypes[i])
		}
	}
	if events[2].Node != "prep.align" || events[2].Detail != "fp1" {
		t.Fatalf("event detail = %+v", events[2])
	}

	other, err := store.ListEvents(ctx, "run-nope")
	if err != nil || len(other) != 0 {
		t.Fatalf("unknown run = %v, %v", other, err)
	}
}

func TestMemoryEventStore(t *testing.T) {
	exerciseEventStore(t, NewMemoryEventStore())
}

func TestSQLiteEventStore(t *testing.T) {
	store, err := NewSQLiteEventStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteEventStore failed: %v", err)
	}
	exerciseEventStore(t, store)
}

func TestSQLiteEventStore_AssignsTimeWhenZero(t *testing.T) {
	store, err := NewSQLiteEventStore(newTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.AppendEvent(ctx, api.RunEvent{RunID: "run-1", Type: api.EventRunStarted}); err != nil {
		t.Fatal(err)
	}
	events, err := store.ListEvents(ctx, "run-1")
	if err != nil || len(events) != 1 {
		t.Fatalf("list = %v, %v", events, err)
	}
	if events[0].At.IsZero() {
		t.Fatal("zero event time persisted as zero")
	}
}

func TestNoopEventStore(t *testing.T) {
	var store NoopEventStore
	ctx := context.Background()
	if err := store.AppendEvent(ctx, api.RunEvent{RunID: "run-1"}); err != nil {
		t.Fatal(err)
	}
	events, err := store.ListEvents(ctx, "run-1")
	if err != nil || events != nil {
		t.Fatalf("noop store returned %v, %v", events, err)
	}
}
