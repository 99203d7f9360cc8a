package api

import (
	"runtime"
	"time"
)

// SchedulerKind selects the execution strategy for a run.
type SchedulerKind string

const (
	// SchedulerSerial executes the topological order one node at a time on
	// a single goroutine.
	SchedulerSerial SchedulerKind = "serial"

	// SchedulerParallel executes the ready frontier on a bounded pool of
	// goroutines.
	SchedulerParallel SchedulerKind = "parallel"

	// SchedulerDistributed dispatches ready nodes to a task queue and
	// collects results from workers over a result queue.
	SchedulerDistributed SchedulerKind = "distributed"
)

// RunConfig configures a single graph run.
type RunConfig struct {
	// Scheduler selects the execution strategy. Empty means SchedulerSerial.
	Scheduler SchedulerKind

	// Procs bounds the worker pool in SchedulerParallel mode. Zero or
	// negative means the platform's available parallelism.
	Procs int

	// NodeTimeout, when positive, bounds each node's runner invocation.
	// A node exceeding it fails with a TimeoutError; its dependents are
	// poisoned like any other failure.
	NodeTimeout time.Duration
}

// Normalize returns a copy of c with defaults applied.
func (c RunConfig) Normalize() RunConfig {
	if c.Scheduler == "" {
		c.Scheduler = SchedulerSerial
	}
	if c.Procs <= 0 {
		c.Procs = runtime.GOMAXPROCS(0)
	}
	return c
}
