package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay node execution.
type Observer interface {
	// OnRunStart is called once when a graph run begins, before any node is
	// scheduled.
	OnRunStart(ctx context.Context, run RunRef)

	// OnRunCompleted is called when a run finishes, whether fully or
	// partially successful. The report enumerates every node's terminal
	// state.
	OnRunCompleted(ctx context.Context, run RunRef, report *RunReport)

	// OnRunFailed is called when a run aborts for infrastructure reasons
	// (flatten failure, cancelled context, missing queues) before reaching
	// a complete report.
	OnRunFailed(ctx context.Context, run RunRef, err error)

	// OnNodeStart is called before invoking a node's runner. Nodes that are
	// skipped (cache hit) or poisoned by an upstream failure never start.
	OnNodeStart(ctx context.Context, run RunRef, node string)

	// OnNodeCompleted is called when a node reaches a terminal state:
	// Succeeded, Skipped, or Failed (including upstream failures).
	OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run RunRef)                         {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport)  {}
func (NoopObserver) OnRunFailed(ctx context.Context, run RunRef, err error)             {}
func (NoopObserver) OnNodeStart(ctx context.Context, run RunRef, node string)           {}
func (NoopObserver) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome)      {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run RunRef) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run, report)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run RunRef, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run RunRef, node string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, node)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, run, out)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run RunRef) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.RunID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport) {
	counts := report.Counts()
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.RunID),
		slog.Int("succeeded", counts[NodeSucceeded]),
		slog.Int("skipped", counts[NodeSkipped]),
		slog.Int("failed", counts[NodeFailed]),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run RunRef, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.RunID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run RunRef, node string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.RunID),
		slog.String("node", node),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome) {
	level := slog.LevelDebug
	if out.Status == NodeFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_completed",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.RunID),
		slog.String("node", out.Node),
		slog.String("status", string(out.Status)),
		slog.String("fingerprint", out.Fingerprint),
		slog.Duration("duration", out.Duration),
		slog.Any("error", out.Err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	nodesSucceeded    atomic.Int64
	nodesSkipped      atomic.Int64
	nodesFailed       atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	ActiveRuns    int64

	NodesSucceeded int64
	NodesSkipped   int64
	NodesFailed    int64

	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run RunRef) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run RunRef, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome) {
	switch out.Status {
	case NodeSucceeded:
		m.nodesSucceeded.Add(1)
		// Only executed nodes contribute to the average duration.
		m.totalNodeDuration.Add(out.Duration.Nanoseconds())
	case NodeSkipped:
		m.nodesSkipped.Add(1)
	case NodeFailed:
		m.nodesFailed.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	succeeded := m.nodesSucceeded.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if succeeded > 0 {
		avg = time.Duration(totalNs / succeeded)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsCompleted:   completed,
		RunsFailed:      failed,
		ActiveRuns:      started - completed - failed,
		NodesSucceeded:  succeeded,
		NodesSkipped:    m.nodesSkipped.Load(),
		NodesFailed:     m.nodesFailed.Load(),
		AvgNodeDuration: avg,
	}
}
