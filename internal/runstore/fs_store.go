package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/petrijr/grafo/pkg/api"
)

const (
	recordGobFile  = "record.gob"
	recordJSONFile = "record.json"
	workDirName    = "work"
)

// FSStore keeps records on disk under <baseDir>/<graph>/<instance>/. Each
// instance directory holds the authoritative gob record, a JSON projection
// of it for ad-hoc inspection, and the node's private working directory:
//
//	<baseDir>/<graph>/<instance>/record.gob
//	<baseDir>/<graph>/<instance>/record.json
//	<baseDir>/<graph>/<instance>/work/
//
// Results survive process restarts, so reruns of an unchanged graph skip
// every node.
type FSStore struct {
	base string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a store rooted at baseDir, creating the directory if
// needed. An empty baseDir means a fresh temporary directory: an ephemeral
// store that still memoizes within the process lifetime.
func NewFSStore(baseDir string) (*FSStore, error) {
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "grafo-runs-")
		if err != nil {
			return nil, err
		}
		return &FSStore{base: dir}, nil
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (s *FSStore) BaseDir() string { return s.base }

func (s *FSStore) instanceDir(graph, instance string) string {
	return filepath.Join(s.base, graph, instance)
}

func (s *FSStore) Lookup(_ context.Context, graph, instance, fingerprint string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(s.instanceDir(graph, instance), recordGobFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return Record{}, err
	}
	if rec.Fingerprint != fingerprint {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *FSStore) Persist(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	dir := s.instanceDir(rec.GraphName, rec.InstanceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(dir, recordGobFile, data); err != nil {
		return err
	}

	// The JSON projection is best-effort: outputs that do not marshal are
	// dropped from it, never from the gob record.
	jsonData, jerr := json.MarshalIndent(recordJSON(rec, true), "", "  ")
	if jerr != nil {
		jsonData, _ = json.MarshalIndent(recordJSON(rec, false), "", "  ")
	}
	return writeFileAtomic(dir, recordJSONFile, jsonData)
}

func (s *FSStore) List(_ context.Context, graph string) ([]Record, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, graph))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.base, graph, entry.Name(), recordGobFile))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("record of %s/%s: %w", graph, entry.Name(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FSStore) WorkDir(graph, instance string) (string, error) {
	dir := filepath.Join(s.instanceDir(graph, instance), workDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Close is a no-op: the on-disk records are the point of this store.
func (s *FSStore) Close() error { return nil }

type recordProjection struct {
	GraphName    string     `json:"graph_name"`
	InstanceName string     `json:"instance_name"`
	Fingerprint  string     `json:"fingerprint"`
	StepID       string     `json:"step_id,omitempty"`
	RunID        string     `json:"run_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Outputs      api.Values `json:"outputs,omitempty"`
}

func recordJSON(rec Record, withOutputs bool) recordProjection {
	p := recordProjection{
		GraphName:    rec.GraphName,
		InstanceName: rec.InstanceName,
		Fingerprint:  rec.Fingerprint,
		StepID:       rec.StepID,
		RunID:        rec.RunID,
		CreatedAt:    rec.CreatedAt,
	}
	if withOutputs {
		p.Outputs = rec.Outputs
	}
	return p
}

// writeFileAtomic writes data to a unique temp file in dir and renames it
// into place, so readers never observe a partial record.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
