// Package runstore implements the grafo run store contracts on PostgreSQL.
package runstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/petrijr/grafo"
)

// PostgresStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib"). The caller imports the driver for its
// side effects and owns the database handle; Close does not close it.
//
// Working directories are process-local: node file artifacts land on the
// machine that executed the node. Put the work root on a shared mount when
// artifacts must be visible across workers.
type PostgresStore struct {
	db *sql.DB

	mu           sync.Mutex
	workRoot     string
	ownsWorkRoot bool
}

var _ grafo.RunStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore. workRoot is where node working
// directories live; empty means a temporary root removed by Close.
func NewPostgresStore(db *sql.DB, workRoot string) (*PostgresStore, error) {
	s := &PostgresStore{db: db, workRoot: workRoot}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_records (
			graph_name TEXT NOT NULL,
			instance_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			outputs BYTEA,
			run_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			PRIMARY KEY (graph_name, instance_name)
		);`,
	)
	return err
}

func (s *PostgresStore) Lookup(ctx context.Context, graph, instance, fingerprint string) (grafo.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, step_id, outputs, run_id, created_at
		FROM run_records
		WHERE graph_name = $1 AND instance_name = $2`,
		graph, instance,
	)

	rec := grafo.RunRecord{GraphName: graph, InstanceName: instance}
	var outputs []byte
	var createdAt int64
	if err := row.Scan(&rec.Fingerprint, &rec.StepID, &outputs, &rec.RunID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grafo.RunRecord{}, grafo.ErrRecordNotFound
		}
		return grafo.RunRecord{}, err
	}
	if rec.Fingerprint != fingerprint {
		return grafo.RunRecord{}, grafo.ErrRecordNotFound
	}
	rec.CreatedAt = time.Unix(0, createdAt)

	if len(outputs) > 0 {
		decoded, err := decodeRecord(outputs)
		if err != nil {
			return grafo.RunRecord{}, err
		}
		rec.Outputs = decoded.Outputs
	}
	return rec, nil
}

func (s *PostgresStore) Persist(ctx context.Context, rec grafo.RunRecord) error {
	switch {
	case rec.GraphName == "":
		return errors.New("record has no graph name")
	case rec.InstanceName == "":
		return errors.New("record has no instance name")
	case rec.Fingerprint == "":
		return errors.New("record has no fingerprint")
	}

	// The whole record is gob-encoded into the outputs column; the typed
	// columns exist for SQL-side inspection and keying.
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_records (graph_name, instance_name, fingerprint, step_id, outputs, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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

func (s *PostgresStore) List(ctx context.Context, graph string) ([]grafo.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outputs
		FROM run_records
		WHERE graph_name = $1
		ORDER BY instance_name ASC`,
		graph,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grafo.RunRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WorkDir(graph, instance string) (string, error) {
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
func (s *PostgresStore) Close() error {
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

func encodeRecord(rec grafo.RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (grafo.RunRecord, error) {
	var rec grafo.RunRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return grafo.RunRecord{}, err
	}
	return rec, nil
}
