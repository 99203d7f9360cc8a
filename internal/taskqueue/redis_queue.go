package taskqueue

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a single Redis list:
//
//	<prefix><name>
//
// Values are gob-encoded Task structs. LPUSH/BRPOP give FIFO order and
// blocking consumption across any number of worker processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *slog.Logger
}

// NewRedisQueue constructs a Redis-backed queue over the caller's client.
// An empty prefix defaults to "grafo:queue:".
func NewRedisQueue(client *redis.Client, prefix, name string) *RedisQueue {
	if prefix == "" {
		prefix = "grafo:queue:"
	}
	return &RedisQueue{
		client: client,
		key:    prefix + name,
		log:    slog.Default(),
	}
}

var _ Queue = (*RedisQueue)(nil)

// Key returns the Redis list key backing this queue.
func (q *RedisQueue) Key() string { return q.key }

// Enqueue pushes a task onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until a task is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		// BRPop returns [key, value].
		res, err := q.client.BRPop(ctx, 0, q.key).Result()
		if err != nil {
			return nil, err
		}
		if len(res) != 2 {
			q.log.Warn("redis queue: unexpected BRPOP shape", "key", q.key, "elements", len(res))
			continue
		}
		return DecodeTask([]byte(res[1]))
	}
}

// Len returns the approximate number of tasks queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		q.log.Warn("redis queue: LLEN failed", "key", q.key, "error", err)
		return 0
	}
	return int(n)
}

// Close is a no-op: the Redis client belongs to the caller, and pending
// BRPOPs unblock through context cancellation.
func (q *RedisQueue) Close() error { return nil }
