package runstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/grafo/pkg/api"
)

// RedisEventStore appends run events to a per-run Redis list:
//
//	<prefix>events:<runID>  LIST of gob-encoded events
type RedisEventStore struct {
	client *redis.Client
	prefix string
}

var _ EventStore = (*RedisEventStore)(nil)

// NewRedisEventStore returns a RedisEventStore writing under the given key
// prefix. An empty prefix means DefaultRedisPrefix.
func NewRedisEventStore(client *redis.Client, prefix string) *RedisEventStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisEventStore{client: client, prefix: prefix}
}

func (s *RedisEventStore) key(runID string) string {
	return s.prefix + "events:" + runID
}

func (s *RedisEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}
	return s.client.RPush(ctx, s.key(ev.RunID), buf.Bytes()).Err()
}

func (s *RedisEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	items, err := s.client.LRange(ctx, s.key(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var out []api.RunEvent
	for _, item := range items {
		var ev api.RunEvent
		if err := gob.NewDecoder(bytes.NewReader([]byte(item))).Decode(&ev); err != nil {
			return nil, fmt.Errorf("decode run event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
