package api

import (
	"errors"
	"sort"
	"time"
)

// NodeStatus is the lifecycle state of a node within a run.
type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeSucceeded NodeStatus = "SUCCEEDED"
	NodeSkipped   NodeStatus = "SKIPPED"
	NodeFailed    NodeStatus = "FAILED"
)

// Terminal reports whether s is a final state.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeSucceeded, NodeSkipped, NodeFailed:
		return true
	}
	return false
}

// Outcome is the terminal result of one node within a run.
//
// Skipped means the node's fingerprint matched a previously persisted
// record and Outputs were reused from the store without invoking the
// runner.
type Outcome struct {
	Node        string
	Status      NodeStatus
	Outputs     Values
	Err         error
	Fingerprint string
	StartedAt   time.Time
	Duration    time.Duration
}

// RunRef identifies a run in observer callbacks.
type RunRef struct {
	RunID string
	Graph string
}

// RunReport enumerates the per-node terminal states of one graph run.
// A report with failed nodes is a partial success: independent branches
// still carry their Succeeded/Skipped outcomes.
type RunReport struct {
	RunID      string
	Graph      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Outcomes is keyed by qualified node name ("prep.align" for nodes of
	// nested graphs).
	Outcomes map[string]*Outcome
}

// Outcome returns the terminal state of the named node.
func (r *RunReport) Outcome(node string) (*Outcome, bool) {
	out, ok := r.Outcomes[node]
	return out, ok
}

// Status returns the named node's status, or the empty string if the run
// never saw the node.
func (r *RunReport) Status(node string) NodeStatus {
	if out, ok := r.Outcomes[node]; ok {
		return out.Status
	}
	return ""
}

// Counts tallies outcomes by status.
func (r *RunReport) Counts() map[NodeStatus]int {
	counts := make(map[NodeStatus]int, 4)
	for _, out := range r.Outcomes {
		counts[out.Status]++
	}
	return counts
}

// Failed returns the sorted names of nodes that ended in NodeFailed.
func (r *RunReport) Failed() []string {
	var names []string
	for name, out := range r.Outcomes {
		if out.Status == NodeFailed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// OK reports whether every node ended Succeeded or Skipped.
func (r *RunReport) OK() bool {
	for _, out := range r.Outcomes {
		if out.Status == NodeFailed {
			return false
		}
	}
	return true
}

// Err joins the root-cause errors of all failed nodes, in node-name order.
// Nodes that failed only because a dependency failed (UpstreamFailureError)
// are excluded, so the result names the actual origins. Returns nil when
// the run fully succeeded.
func (r *RunReport) Err() error {
	names := r.Failed()
	var errs []error
	for _, name := range names {
		out := r.Outcomes[name]
		if out.Err == nil {
			continue
		}
		if _, upstream := IsUpstreamFailure(out.Err); upstream {
			continue
		}
		errs = append(errs, out.Err)
	}
	return errors.Join(errs...)
}
