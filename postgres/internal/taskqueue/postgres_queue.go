// Package taskqueue implements the grafo task queue contract on PostgreSQL.
package taskqueue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"sync"
	"time"

	"github.com/petrijr/grafo"
)

// PostgresQueue is a persistent Queue backed by a PostgreSQL table. Rows
// are claimed with SELECT ... FOR UPDATE SKIP LOCKED and deleted in the
// same transaction, so concurrent consumers on any number of machines
// never see the same task.
//
// Several logical queues share one table, distinguished by name; the
// distributed scheduler uses one for run-node tasks and one for results.
type PostgresQueue struct {
	db           *sql.DB
	name         string
	pollInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewPostgresQueue initializes the tasks table in the given DB and returns
// the named queue. The caller owns the database handle.
func NewPostgresQueue(db *sql.DB, name string) (*PostgresQueue, error) {
	q := &PostgresQueue{
		db:           db,
		name:         name,
		pollInterval: 100 * time.Millisecond,
		done:         make(chan struct{}),
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			queue TEXT NOT NULL,
			task BYTEA NOT NULL,
			enqueued_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_queue ON tasks(queue, id);
	`)
	return err
}

var _ grafo.Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) Enqueue(ctx context.Context, t grafo.Task) error {
	select {
	case <-q.done:
		return grafo.ErrQueueClosed
	default:
	}

	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (queue, task, enqueued_at)
		VALUES ($1, $2, $3)`,
		q.name,
		data,
		t.EnqueuedAt.UnixNano(),
	)
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*grafo.Task, error) {
	for {
		select {
		case <-q.done:
			return nil, grafo.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, ok, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return task, nil
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-q.done:
			return nil, grafo.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// tryClaim locks and removes the oldest task of this queue, if any.
// SKIP LOCKED keeps competing consumers from blocking on each other.
func (q *PostgresQueue) tryClaim(ctx context.Context) (*grafo.Task, bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}

	var (
		id   int64
		data []byte
	)
	row := tx.QueryRowContext(ctx, `
		SELECT id, task
		FROM tasks
		WHERE queue = $1
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, q.name)
	if err := row.Scan(&id, &data); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	task, err := decodeTask(data)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (q *PostgresQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE queue = $1`, q.name).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// Close stops pending Dequeues. Queued rows stay in the database and are
// claimable after a restart.
func (q *PostgresQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func encodeTask(t grafo.Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTask(data []byte) (*grafo.Task, error) {
	var t grafo.Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
