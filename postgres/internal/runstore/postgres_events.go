package runstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/grafo"
)

// PostgresEventStore stores run events in PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

var _ grafo.EventStore = (*PostgresEventStore)(nil)

// NewPostgresEventStore initializes the event schema and returns the store.
// The caller owns the database handle.
func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			graph_name TEXT NOT NULL DEFAULT '',
			node_name TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *PostgresEventStore) AppendEvent(ctx context.Context, ev grafo.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, graph_name, node_name, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Graph,
		ev.Node,
		ev.Detail,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, runID string) ([]grafo.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, graph_name, node_name, detail
		FROM run_events
		WHERE run_id = $1
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grafo.RunEvent
	for rows.Next() {
		var (
			id     string
			atN    int64
			typ    string
			graph  string
			node   string
			detail string
		)
		if err := rows.Scan(&id, &atN, &typ, &graph, &node, &detail); err != nil {
			return nil, err
		}
		out = append(out, grafo.RunEvent{
			RunID:  id,
			At:     time.Unix(0, atN),
			Type:   grafo.EventType(typ),
			Graph:  graph,
			Node:   node,
			Detail: detail,
		})
	}
	return out, rows.Err()
}
