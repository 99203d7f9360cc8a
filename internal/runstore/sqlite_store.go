package runstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver and owns the database handle; Close does not close it.
type SQLiteStore struct {
	db *sql.DB

	mu           sync.Mutex
	workRoot     string
	ownsWorkRoot bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore. workRoot is where node working directories
// live; empty means a temporary root removed by Close.
func NewSQLiteStore(db *sql.DB, workRoot string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, workRoot: workRoot}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_records (
			graph_name TEXT NOT NULL,
			instance_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			outputs BLOB,
			run_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (graph_name, instance_name)
		);`,
	)
	return err
}

func (s *SQLiteStore) Lookup(ctx context.Context, graph, instance, fingerprint string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, step_id, outputs, run_id, created_at
		FROM run_records
		WHERE graph_name = ? AND instance_name = ?`,
		graph, instance,
	)

	rec := Record{GraphName: graph, InstanceName: instance}
	var outputs []byte
	var createdAt int64
	if err := row.Scan(&rec.Fingerprint, &rec.StepID, &outputs, &rec.RunID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	if rec.Fingerprint != fingerprint {
		return Record{}, ErrRecordNotFound
	}
	rec.CreatedAt = time.Unix(0, createdAt)

	if len(outputs) > 0 {
		decoded, err := DecodeRecord(outputs)
		if err != nil {
			return Record{}, err
		}
		rec.Outputs = decoded.Outputs
	}
	return rec, nil
}

func (s *SQLiteStore) Persist(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	// The whole record is gob-encoded into the outputs column; the typed
	// columns exist for SQL-side inspection and keying.
	blob, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_records (graph_name, instance_name, fingerprint, step_id, outputs, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (graph_name, instance_name) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			step_id = excluded.step_id,
			outputs = excluded.outputs,
			run_id = excluded.run_id,
			created_at = excluded.created_at`,
		rec.GraphName,
		rec.InstanceName,
		rec.Fingerprint,
		rec.StepID,
		blob,
		rec.RunID,
		createdAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) List(ctx context.Context, graph string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_name, outputs
		FROM run_records
		WHERE graph_name = ?
		ORDER BY instance_name ASC`,
		graph,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var instance string
		var blob []byte
		if err := rows.Scan(&instance, &blob); err != nil {
			return nil, err
		}
		rec, err := DecodeRecord(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WorkDir(graph, instance string) (string, error) {
	s.mu.Lock()
	if s.workRoot == "" {
		root, err := os.MkdirTemp("", "grafo-work-")
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.workRoot = root
		s.ownsWorkRoot = true
	}
	root := s.workRoot
	s.mu.Unlock()

	dir := filepath.Join(root, graph, instance)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Close removes the working-directory root when the store created it
// itself. The database handle belongs to the caller and stays open.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	root := ""
	if s.ownsWorkRoot {
		root = s.workRoot
		s.workRoot = ""
		s.ownsWorkRoot = false
	}
	s.mu.Unlock()

	if root == "" {
		return nil
	}
	return os.RemoveAll(root)
}
