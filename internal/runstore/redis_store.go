package runstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces all keys a RedisStore or RedisEventStore
// writes when the caller does not choose a prefix.
const DefaultRedisPrefix = "grafo:"

// RedisStore is a Store backed by Redis, for deployments where engine and
// workers run in separate processes and need a shared memoization cache.
//
// Key layout:
//
//	<prefix>record:<graph>:<instance>  gob-encoded Record
//	<prefix>idx:graph:<graph>          SET of instance names, used by List
//
// Working directories are local to the process; runners that exchange file
// artifacts across machines need a shared mount for the work root instead.
type RedisStore struct {
	client *redis.Client
	prefix string

	mu           sync.Mutex
	workRoot     string
	ownsWorkRoot bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a RedisStore writing under the given key prefix.
// An empty prefix means DefaultRedisPrefix. workRoot is where node working
// directories live; empty means a temporary root removed by Close. The
// caller owns the client.
func NewRedisStore(client *redis.Client, prefix, workRoot string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, workRoot: workRoot}
}

func (s *RedisStore) keyRecord(graph, instance string) string {
	return s.prefix + "record:" + graph + ":" + instance
}

func (s *RedisStore) keyGraph(graph string) string {
	return s.prefix + "idx:graph:" + graph
}

func (s *RedisStore) Lookup(ctx context.Context, graph, instance, fingerprint string) (Record, error) {
	data, err := s.client.Get(ctx, s.keyRecord(graph, instance)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (s *RedisStore) Persist(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRecord(rec.GraphName, rec.InstanceName), data, 0)
	pipe.SAdd(ctx, s.keyGraph(rec.GraphName), rec.InstanceName)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List(ctx context.Context, graph string) ([]Record, error) {
	instances, err := s.client.SMembers(ctx, s.keyGraph(graph)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(instances)

	var out []Record
	for _, instance := range instances {
		data, err := s.client.Get(ctx, s.keyRecord(graph, instance)).Bytes()
		if err != nil {
			// A stale index entry whose record expired or was deleted is
			// not an error.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) WorkDir(graph, instance string) (string, error) {
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
// itself. The Redis client belongs to the caller and stays open.
func (s *RedisStore) Close() error {
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
