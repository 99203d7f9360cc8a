package runstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	store := NewRedisStore(newTestRedis(t), "", t.TempDir())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_Conformance(t *testing.T) {
	exerciseStore(t, newTestRedisStore(t))
}

func TestRedisStore_SharedClient(t *testing.T) {
	// Two stores over one Redis see each other's records, as an engine and
	// a worker fleet sharing a server would.
	client := newTestRedis(t)
	first := NewRedisStore(client, "", t.TempDir())
	second := NewRedisStore(client, "", t.TempDir())
	ctx := context.Background()

	if err := first.Persist(ctx, sampleRecord("node", "fp1")); err != nil {
		t.Fatal(err)
	}
	got, err := second.Lookup(ctx, "pipeline", "node", "fp1")
	if err != nil {
		t.Fatalf("second store misses record: %v", err)
	}
	if got.Outputs["text"] != "hello" {
		t.Fatalf("outputs = %#v", got.Outputs)
	}
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	client := newTestRedis(t)
	a := NewRedisStore(client, "a:", t.TempDir())
	b := NewRedisStore(client, "b:", t.TempDir())
	ctx := context.Background()

	if err := a.Persist(ctx, sampleRecord("node", "fp1")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Lookup(ctx, "pipeline", "node", "fp1"); err == nil {
		t.Fatal("record leaked across prefixes")
	}
	records, err := b.List(ctx, "pipeline")
	if err != nil || len(records) != 0 {
		t.Fatalf("list under other prefix = %v, %v", records, err)
	}
}

func TestRedisStore_ListSkipsDeletedRecords(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client, "", t.TempDir())
	ctx := context.Background()

	if err := store.Persist(ctx, sampleRecord("keep", "fp1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Persist(ctx, sampleRecord("drop", "fp2")); err != nil {
		t.Fatal(err)
	}
	// Deleting a record leaves its index entry behind; List must tolerate
	// the stale entry.
	if err := client.Del(ctx, store.keyRecord("pipeline", "drop")).Err(); err != nil {
		t.Fatal(err)
	}

	records, err := store.List(ctx, "pipeline")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].InstanceName != "keep" {
		t.Fatalf("list = %+v", records)
	}
}

func TestRedisEventStore(t *testing.T) {
	exerciseEventStore(t, NewRedisEventStore(newTestRedis(t), ""))
}
