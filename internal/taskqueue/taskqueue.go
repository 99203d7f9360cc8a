// Package taskqueue carries the work units of the distributed scheduler.
//
// The dispatcher enqueues run-node tasks for nodes whose fingerprints
// missed the store; workers execute them and answer on a second queue with
// node-result tasks. Queues only see cache misses: hits are settled by the
// dispatcher without leaving the process.
package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/grafo/pkg/api"
)

// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
var ErrQueueClosed = errors.New("task queue closed")

// TaskType identifies what a task asks for.
type TaskType string

const (
	// TaskTypeRunNode asks a worker to execute one node.
	TaskTypeRunNode TaskType = "run-node"
	// TaskTypeNodeResult reports a node's terminal state back to the
	// dispatcher.
	TaskTypeNodeResult TaskType = "node-result"
)

// Error kinds carried on node-result tasks, so the dispatcher can rebuild
// a typed error from the wire form.
const (
	ErrorKindExecution   = ""
	ErrorKindTimeout     = "timeout"
	ErrorKindUnknownStep = "unknown-step"
)

// Task is one unit of distributed work. Run-node tasks carry the resolved
// inputs and the step identity; node-result tasks carry the outputs or the
// error string plus its kind.
type Task struct {
	ID    string
	Type  TaskType
	RunID string

	GraphName    string
	InstanceName string
	Fingerprint  string

	// Run-node fields.
	StepName    string
	StepVersion string
	Inputs      api.Values
	NodeTimeout time.Duration

	// Node-result fields.
	Outputs   api.Values
	Error     string
	ErrorKind string

	EnqueuedAt time.Time
}

// Queue is a FIFO task transport. Implementations must be safe for
// concurrent use.
type Queue interface {
	// Enqueue adds a task, respecting ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available, the context is cancelled, or the queue is closed.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int

	// Close unblocks pending Dequeues where the transport supports it.
	// Closing never deletes queued tasks from persistent backends.
	Close() error
}
