package grafo

import (
	"database/sql"

	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/worker"
)

// WorkerBundle wires together an Engine and a Worker sharing one durable
// backend, for single-process deployments that want persistence without a
// separate worker fleet.
//
// Closing the Engine closes the shared queues, which in turn stops a
// running Worker.Run loop cleanly.
type WorkerBundle struct {
	Engine Engine
	Worker *Worker

	// queues are kept unexported; they are primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	tasks   Queue
	results Queue
}

// NewSQLiteBundle constructs a durable Engine + Worker combo sharing the
// same SQLite database: memoized results, run history, and both task
// queues are persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:grafo.db?_journal=WAL")
//	bundle, err := grafo.NewSQLiteBundle(db, reg)
//	// go bundle.Worker.Run(ctx)
//	// run graphs on bundle.Engine with SchedulerDistributed
func NewSQLiteBundle(db *sql.DB, reg *Registry, opts ...worker.Option) (*WorkerBundle, error) {
	store, err := runstore.NewSQLiteStore(db, "")
	if err != nil {
		return nil, err
	}
	events, err := runstore.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	tasks, err := taskqueue.NewSQLiteQueue(db, "tasks")
	if err != nil {
		return nil, err
	}
	results, err := taskqueue.NewSQLiteQueue(db, "results")
	if err != nil {
		return nil, err
	}

	eng := NewEngine(EngineConfig{
		Store:   store,
		Events:  events,
		Tasks:   tasks,
		Results: results,
	})
	w := worker.New(reg, store, tasks, results, opts...)

	return &WorkerBundle{
		Engine:  eng,
		Worker:  w,
		tasks:   tasks,
		results: results,
	}, nil
}
