package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// SQLiteQueue is a persistent Queue backed by SQLite. It uses simple FIFO
// semantics based on an auto-incrementing id, claiming rows inside a
// transaction so concurrent consumers never see the same task.
//
// Several logical queues share one table, distinguished by name; the
// distributed scheduler uses one for run-node tasks and one for results.
type SQLiteQueue struct {
	db           *sql.DB
	name         string
	pollInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns
// the named queue. The caller owns the database handle.
func NewSQLiteQueue(db *sql.DB, name string) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		name:         name,
		pollInterval: 20 * time.Millisecond,
		done:         make(chan struct{}),
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue TEXT NOT NULL,
			task BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_queue ON tasks(queue, id);
	`)
	return err
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (queue, task, enqueued_at)
		VALUES (?, ?, ?)`,
		q.name,
		data,
		t.EnqueuedAt.UnixNano(),
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrQueueClosed
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
			return nil, ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// tryClaim removes and returns the oldest task of this queue, if any.
func (q *SQLiteQueue) tryClaim(ctx context.Context) (*Task, bool, error) {
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
		WHERE queue = ?
		ORDER BY id
		LIMIT 1`, q.name)
	if err := row.Scan(&id, &data); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	task, err := DecodeTask(data)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE queue = ?`, q.name).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// Close stops pending Dequeues. Queued rows stay in the database and are
// claimable after a restart.
func (q *SQLiteQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
