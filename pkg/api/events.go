package api

import "time"

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventNodeStarted   EventType = "node.started"
	EventNodeSucceeded EventType = "node.succeeded"
	EventNodeSkipped   EventType = "node.skipped"
	EventNodeFailed    EventType = "node.failed"
)

// RunEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type RunEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	Graph string
	Node  string

	// Small, human-oriented details (e.g. fingerprint, error string).
	// Keep this low-volume: do NOT dump output payloads here.
	Detail string
}
