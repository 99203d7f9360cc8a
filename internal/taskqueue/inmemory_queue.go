package taskqueue

import (
	"context"
	"sync"
)

// InMemoryQueue is a Queue backed by a buffered channel. It is safe for
// concurrent use and suited to single-process deployments and tests.
type InMemoryQueue struct {
	ch chan Task

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewInMemoryQueue creates a new queue with the given capacity. For tests
// and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch:   make(chan Task, capacity),
		done: make(chan struct{}),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	// Drain buffered tasks even when the queue is already closed.
	select {
	case t := <-q.ch:
		return &t, nil
	default:
	}

	select {
	case t := <-q.ch:
		return &t, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}

// Close unblocks pending and future Dequeues. Tasks still buffered remain
// drainable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
