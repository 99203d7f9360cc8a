package postgres

import (
	"database/sql"

	"github.com/petrijr/grafo"

	pqueue "github.com/petrijr/grafo/postgres/internal/taskqueue"
)

// NewPostgresQueue returns the named task queue backed by db. Engine and
// workers reaching the same database under the same name share the queue.
func NewPostgresQueue(db *sql.DB, name string) (grafo.Queue, error) {
	return pqueue.NewPostgresQueue(db, name)
}
