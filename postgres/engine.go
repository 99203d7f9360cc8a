// Package postgres backs the grafo engine with PostgreSQL: run records,
// the event log and both task queues live in one database, shared by the
// dispatching engine and any number of worker processes.
package postgres

import (
	"database/sql"

	"github.com/petrijr/grafo"
	"github.com/petrijr/grafo/pkg/worker"

	pstore "github.com/petrijr/grafo/postgres/internal/runstore"
	pqueue "github.com/petrijr/grafo/postgres/internal/taskqueue"
)

// NewPostgresEngine returns an Engine that persists run state in PostgreSQL.
//
// db must use a PostgreSQL driver, e.g.:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//	db, err := sql.Open("pgx", dsn)
func NewPostgresEngine(db *sql.DB) (grafo.Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs grafo.Observer) (grafo.Engine, error) {
	store, err := pstore.NewPostgresStore(db, "")
	if err != nil {
		return nil, err
	}
	events, err := pstore.NewPostgresEventStore(db)
	if err != nil {
		return nil, err
	}
	tasks, err := pqueue.NewPostgresQueue(db, "tasks")
	if err != nil {
		return nil, err
	}
	results, err := pqueue.NewPostgresQueue(db, "results")
	if err != nil {
		return nil, err
	}

	return grafo.NewEngine(grafo.EngineConfig{
		Store:    store,
		Events:   events,
		Observer: obs,
		Tasks:    tasks,
		Results:  results,
	}), nil
}

// NewPostgresWorker returns a Worker consuming the task queues of a
// Postgres-backed engine sharing the same database.
func NewPostgresWorker(db *sql.DB, reg *grafo.Registry, opts ...worker.Option) (*grafo.Worker, error) {
	store, err := pstore.NewPostgresStore(db, "")
	if err != nil {
		return nil, err
	}
	tasks, err := pqueue.NewPostgresQueue(db, "tasks")
	if err != nil {
		return nil, err
	}
	results, err := pqueue.NewPostgresQueue(db, "results")
	if err != nil {
		return nil, err
	}
	return grafo.NewWorker(reg, store, tasks, results, opts...), nil
}

// NewPostgresRunStore returns a standalone RunStore for custom
// EngineConfig or Worker assembly.
func NewPostgresRunStore(db *sql.DB, workRoot string) (grafo.RunStore, error) {
	return pstore.NewPostgresStore(db, workRoot)
}
