package api

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the engine surface.
var (
	// ErrNoQueue is returned when a run requests the distributed scheduler
	// but the engine was built without task and result queues.
	ErrNoQueue = errors.New("no task queue configured")

	// ErrUnknownStep is returned when a step name@version is not present in
	// the registry consulted to execute or rebuild it.
	ErrUnknownStep = errors.New("step not registered")
)

// UnknownFieldError reports a reference to a field that is not part of a
// step's schema (or not exported by a nested graph).
type UnknownFieldError struct {
	Instance string
	Field    string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("instance %q has no field %q", e.Instance, e.Field)
}

// UnknownInstanceError reports a reference to an instance name that does not
// exist in the graph.
type UnknownInstanceError struct {
	Graph    string
	Instance string
}

func (e *UnknownInstanceError) Error() string {
	return fmt.Sprintf("graph %q has no instance %q", e.Graph, e.Instance)
}

// DuplicateNameError reports a name collision: a second node, nested graph,
// export alias, or registry entry under a name that is already taken.
type DuplicateNameError struct {
	Name  string
	Where string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate name %q in %s", e.Name, e.Where)
}

// DuplicateBindingError reports an attempt to bind an input field that is
// already owned by a connection. A field has at most one incoming
// connection, and a connected field refuses literal values.
type DuplicateBindingError struct {
	Instance string
	Field    string

	// Source names the connection that owns the field.
	SourceInstance string
	SourceField    string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("input %s.%s is already bound by connection from %s.%s",
		e.Instance, e.Field, e.SourceInstance, e.SourceField)
}

// CycleDetectedError reports a connection that would make the graph cyclic.
// The offending call leaves the graph unmodified. From and To are empty when
// the cycle was found by a whole-graph check rather than a single edge.
type CycleDetectedError struct {
	Graph string
	From  string
	To    string
}

func (e *CycleDetectedError) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("graph %q contains a cycle", e.Graph)
	}
	return fmt.Sprintf("connecting %s -> %s would create a cycle in graph %q", e.From, e.To, e.Graph)
}

// InvalidNameError reports a node or graph name the engine cannot accept.
// Names must be non-empty and free of '/' and '.'; dots are reserved for
// the qualified names of flattened nested nodes.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

// IncompatibleKindsError reports a connection between fields whose declared
// kinds cannot carry the same value.
type IncompatibleKindsError struct {
	SourceInstance string
	SourceField    string
	SourceKind     ValueKind
	DestInstance   string
	DestField      string
	DestKind       ValueKind
}

func (e *IncompatibleKindsError) Error() string {
	return fmt.Sprintf("cannot connect %s.%s (%s) to %s.%s (%s)",
		e.SourceInstance, e.SourceField, e.SourceKind,
		e.DestInstance, e.DestField, e.DestKind)
}

// UnresolvedError reports a fingerprint resolution that reached a
// connection whose upstream outcome is not available yet. Seen during
// execution it indicates a scheduling bug: topological gating should have
// settled every dependency first.
type UnresolvedError struct {
	Instance string
	Field    string
	Source   string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("input %s.%s is unresolved: upstream %q has not produced a result",
		e.Instance, e.Field, e.Source)
}

// ExecutionError wraps the error a step's runner returned, or a schema
// violation in the values it produced. It is attached to the failing node's
// terminal state; it never aborts sibling branches.
type ExecutionError struct {
	Instance string
	Step     string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("instance %q (step %s) failed: %v", e.Instance, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError marks a node whose runner exceeded the configured per-node
// timeout.
type TimeoutError struct {
	Instance string
	Limit    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("instance %q timed out after %s", e.Instance, e.Limit)
}

// UpstreamFailureError marks a node that never ran because one of its
// dependencies failed. It propagates transitively through the dependent
// subtree.
type UpstreamFailureError struct {
	Instance string
	Failed   string
}

func (e *UpstreamFailureError) Error() string {
	return fmt.Sprintf("instance %q not run: upstream failure of %q", e.Instance, e.Failed)
}

// IsUpstreamFailure returns (failedDependency, true) if err marks a node
// poisoned by a failed dependency.
func IsUpstreamFailure(err error) (string, bool) {
	var u *UpstreamFailureError
	if errors.As(err, &u) {
		return u.Failed, true
	}
	return "", false
}

// IsTimeout reports whether err marks a per-node timeout.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
