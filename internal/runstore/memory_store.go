package runstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore is a goroutine-safe Store backed by maps. Records are lost
// when the process exits; working directories live in a temporary root
// removed by Close.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[recordKey]Record
	workRoot string
}

type recordKey struct {
	graph    string
	instance string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Lookup(_ context.Context, graph, instance, fingerprint string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{graph: graph, instance: instance}]
	if !ok || rec.Fingerprint != fingerprint {
		return Record{}, ErrRecordNotFound
	}
	rec.Outputs = rec.Outputs.Clone()
	return rec, nil
}

func (s *MemoryStore) Persist(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	rec.Outputs = rec.Outputs.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{graph: rec.GraphName, instance: rec.InstanceName}] = rec
	return nil
}

func (s *MemoryStore) List(_ context.Context, graph string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for key, rec := range s.records {
		if key.graph != graph {
			continue
		}
		rec.Outputs = rec.Outputs.Clone()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceName < out[j].InstanceName })
	return out, nil
}

func (s *MemoryStore) WorkDir(graph, instance string) (string, error) {
	s.mu.Lock()
	if s.workRoot == "" {
		root, err := os.MkdirTemp("", "grafo-work-")
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.workRoot = root
	}
	root := s.workRoot
	s.mu.Unlock()

	dir := filepath.Join(root, graph, instance)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Close removes the temporary working-directory root, if one was created.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	root := s.workRoot
	s.workRoot = ""
	s.mu.Unlock()

	if root == "" {
		return nil
	}
	return os.RemoveAll(root)
}
