package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// exerciseQueue runs the FIFO behavior every backend must share.
func exerciseQueue(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	t1 := Task{ID: "1", Type: TaskTypeRunNode, RunID: "run", InstanceName: "a", StepName: "s"}
	t2 := Task{ID: "2", Type: TaskTypeRunNode, RunID: "run", InstanceName: "b", StepName: "s"}
	t3 := Task{ID: "3", Type: TaskTypeNodeResult, RunID: "run", InstanceName: "a", Outputs: map[string]any{"x": 1}}

	for _, task := range []Task{t1, t2, t3} {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", task.ID, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	got1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1 failed: %v", err)
	}
	got2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2 failed: %v", err)
	}
	got3, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 3 failed: %v", err)
	}
	if got1.ID != "1" || got2.ID != "2" || got3.ID != "3" {
		t.Fatalf("unexpected dequeue order: %q, %q, %q", got1.ID, got2.ID, got3.ID)
	}
	if got1.InstanceName != "a" || got1.Type != TaskTypeRunNode {
		t.Fatalf("task fields lost in transit: %+v", got1)
	}
	if got3.Outputs["x"] != 1 {
		t.Fatalf("result outputs lost in transit: %+v", got3.Outputs)
	}

	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func exerciseQueueCancellation(t *testing.T, q Queue) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("Dequeue on empty queue returned without error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("Dequeue did not honor cancellation promptly")
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	exerciseQueue(t, NewInMemoryQueue(0))
}

func TestInMemoryQueue_DequeueHonorsContextCancellation(t *testing.T) {
	exerciseQueueCancellation(t, NewInMemoryQueue(0))
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Task{ID: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	// Buffered tasks drain after close; then Dequeue reports closure.
	got, err := q.Dequeue(ctx)
	if err != nil || got.ID != "1" {
		t.Fatalf("drain after close = %v, %v", got, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Dequeue after close = %v, want ErrQueueClosed", err)
	}
	if err := q.Enqueue(ctx, Task{ID: "2"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
	// Closing twice is fine.
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInMemoryQueue_BlockedDequeueUnblocksOnClose(t *testing.T) {
	q := NewInMemoryQueue(0)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("blocked Dequeue returned %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue still blocked after Close")
	}
}
