package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/grafo"
	"github.com/petrijr/grafo/mongo/internal/testutil"
)

const testDB = "grafo_test"

func newTestClient(t *testing.T) *mongo.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testutil.GetMongoURI(t)))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("mongo ping failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

// uniqueName keeps tests that share the package-wide database isolated.
var queueSeq atomic.Int64

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), queueSeq.Add(1))
}

func TestMongoQueue_FIFO(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	q, err := NewMongoQueue(client, testDB, "", uniqueName("fifo"))
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	for _, id := range []string{"1", "2", "3"} {
		task := grafo.Task{ID: id, RunID: "run", InstanceName: "node-" + id, StepName: "s"}
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for _, want := range []string{"1", "2", "3"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.ID != want {
			t.Fatalf("dequeued %q, want %q", got.ID, want)
		}
		if got.InstanceName != "node-"+want {
			t.Fatalf("task fields lost in transit: %+v", got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained, Len = %d", q.Len())
	}
}

func TestMongoQueue_NamedQueuesShareOneCollection(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	tasks, err := NewMongoQueue(client, testDB, "", uniqueName("tasks"))
	if err != nil {
		t.Fatal(err)
	}
	defer tasks.Close()
	results, err := NewMongoQueue(client, testDB, "", uniqueName("results"))
	if err != nil {
		t.Fatal(err)
	}
	defer results.Close()

	if err := tasks.Enqueue(ctx, grafo.Task{ID: "t1"}); err != nil {
		t.Fatal(err)
	}
	if err := results.Enqueue(ctx, grafo.Task{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if tasks.Len() != 1 || results.Len() != 1 {
		t.Fatalf("expected one task per queue, got %d and %d", tasks.Len(), results.Len())
	}

	got, err := tasks.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "t1" {
		t.Fatalf("tasks queue returned %q", got.ID)
	}
	if results.Len() != 1 {
		t.Fatal("dequeue from one queue drained the other")
	}
}

func TestMongoQueue_ConcurrentConsumersClaimDistinctTasks(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	name := uniqueName("claim")
	q, err := NewMongoQueue(client, testDB, "", name)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	const n = 20
	for i := 0; i < n; i++ {
		if err := q.Enqueue(ctx, grafo.Task{ID: fmt.Sprintf("%02d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	// Competing consumers over the same collection; the atomic
	// FindOneAndDelete must hand every task to exactly one of them.
	seen := make(chan string, n)
	for c := 0; c < 4; c++ {
		consumer, err := NewMongoQueue(client, testDB, "", name)
		if err != nil {
			t.Fatal(err)
		}
		defer consumer.Close()
		go func() {
			for {
				task, err := consumer.Dequeue(ctx)
				if err != nil {
					return
				}
				seen <- task.ID
			}
		}()
	}

	got := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case id := <-seen:
			if got[id] {
				t.Fatalf("task %s delivered twice", id)
			}
			got[id] = true
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d of %d tasks delivered", len(got), n)
		}
	}
}

func TestMongoQueue_Close(t *testing.T) {
	client := newTestClient(t)

	q, err := NewMongoQueue(client, testDB, "", uniqueName("close"))
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, grafo.ErrQueueClosed) {
			t.Fatalf("blocked Dequeue returned %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue still blocked after Close")
	}

	if err := q.Enqueue(context.Background(), grafo.Task{ID: "x"}); !errors.Is(err, grafo.ErrQueueClosed) {
		t.Fatalf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
}
