package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisQueue_FIFO(t *testing.T) {
	q := NewRedisQueue(newTestRedis(t), "", "tasks")
	exerciseQueue(t, q)
}

func TestRedisQueue_DequeueHonorsContextCancellation(t *testing.T) {
	client := newTestRedis(t)
	q := NewRedisQueue(client, "", "tasks")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("Dequeue on empty queue returned without error")
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("Dequeue error = %v, want context error", err)
	}
}

func TestRedisQueue_KeyPrefix(t *testing.T) {
	client := newTestRedis(t)

	q := NewRedisQueue(client, "", "tasks")
	if q.Key() != "grafo:queue:tasks" {
		t.Fatalf("default key = %q", q.Key())
	}

	custom := NewRedisQueue(client, "myapp:", "results")
	if custom.Key() != "myapp:results" {
		t.Fatalf("custom key = %q", custom.Key())
	}
}

func TestRedisQueue_NamedQueuesAreIsolated(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	tasks := NewRedisQueue(client, "", "tasks")
	results := NewRedisQueue(client, "", "results")

	if err := tasks.Enqueue(ctx, Task{ID: "t1", Type: TaskTypeRunNode}); err != nil {
		t.Fatal(err)
	}
	if err := results.Enqueue(ctx, Task{ID: "r1", Type: TaskTypeNodeResult}); err != nil {
		t.Fatal(err)
	}

	if tasks.Len() != 1 || results.Len() != 1 {
		t.Fatalf("expected one task per queue, got %d and %d", tasks.Len(), results.Len())
	}

	got, err := results.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "r1" {
		t.Fatalf("results queue returned %q", got.ID)
	}
}
