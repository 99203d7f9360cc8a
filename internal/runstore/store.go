// Package runstore persists memoized node results and run event history.
//
// A Record is the unit of memoization: the outputs one node produced under
// one fingerprint. Stores keep at most one record per (graph, instance)
// pair; persisting replaces the previous record, and a lookup whose
// fingerprint does not match the stored one is a cache miss. Failed
// executions are never persisted, so a store only ever holds reusable
// results.
//
// Each (graph, instance) pair also owns a private working directory where
// runners may write file artifacts; the directory survives as long as the
// store's base directory does.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/grafo/pkg/api"
)

// ErrRecordNotFound is returned by Lookup when no record exists for the
// (graph, instance) pair or when the stored fingerprint does not match.
var ErrRecordNotFound = errors.New("run record not found")

// Record is one memoized node result.
type Record struct {
	GraphName    string
	InstanceName string
	Fingerprint  string

	// StepID is the "name@version" identity of the step that produced the
	// outputs, kept for inspection.
	StepID string

	Outputs   api.Values
	RunID     string
	CreatedAt time.Time
}

// Store is the memoization backend consulted before executing a node.
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup returns the stored record for (graph, instance) when its
	// fingerprint equals the given one. Both a missing record and a
	// fingerprint mismatch return ErrRecordNotFound.
	Lookup(ctx context.Context, graph, instance, fingerprint string) (Record, error)

	// Persist saves rec, replacing any previous record for the same
	// (graph, instance) pair.
	Persist(ctx context.Context, rec Record) error

	// List returns all records of a graph, sorted by instance name.
	List(ctx context.Context, graph string) ([]Record, error)

	// WorkDir returns the private working directory for (graph, instance),
	// creating it if needed.
	WorkDir(graph, instance string) (string, error)

	// Close releases resources owned by the store. It does not close
	// caller-provided handles such as a shared *sql.DB.
	Close() error
}

// validateRecord rejects records the store could not key.
func validateRecord(rec Record) error {
	switch {
	case rec.GraphName == "":
		return errors.New("record has no graph name")
	case rec.InstanceName == "":
		return errors.New("record has no instance name")
	case rec.Fingerprint == "":
		return errors.New("record has no fingerprint")
	}
	return nil
}
