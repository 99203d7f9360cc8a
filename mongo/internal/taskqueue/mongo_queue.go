// Package taskqueue implements the grafo task queue contract on MongoDB.
package taskqueue

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/grafo"
)

// MongoQueue is a persistent Queue backed by a MongoDB collection. A
// FindOneAndDelete on the oldest document is the claim: MongoDB executes
// it atomically, so concurrent consumers on any number of machines never
// see the same task.
//
// Several logical queues share one collection, distinguished by name; the
// distributed scheduler uses one for run-node tasks and one for results.
type MongoQueue struct {
	coll         *mongo.Collection
	name         string
	pollInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewMongoQueue returns the named queue stored in the given database.
// dbName defaults to "grafo", collName to "queue_tasks". The caller owns
// the client.
func NewMongoQueue(client *mongo.Client, dbName, collName, name string) (*MongoQueue, error) {
	if dbName == "" {
		dbName = "grafo"
	}
	if collName == "" {
		collName = "queue_tasks"
	}

	q := &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		name:         name,
		pollInterval: 100 * time.Millisecond,
		done:         make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := q.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "enqueued_at", Value: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

var _ grafo.Queue = (*MongoQueue)(nil)

type taskDoc struct {
	Queue      string `bson:"queue"`
	Payload    []byte `bson:"payload"`
	EnqueuedAt int64  `bson:"enqueued_at"`
}

func (q *MongoQueue) Enqueue(ctx context.Context, t grafo.Task) error {
	select {
	case <-q.done:
		return grafo.ErrQueueClosed
	default:
	}

	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.coll.InsertOne(ctx, taskDoc{
		Queue:      q.name,
		Payload:    data,
		EnqueuedAt: t.EnqueuedAt.UnixNano(),
	})
	return err
}

func (q *MongoQueue) Dequeue(ctx context.Context) (*grafo.Task, error) {
	for {
		select {
		case <-q.done:
			return nil, grafo.ErrQueueClosed
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
			return nil, grafo.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// tryClaim removes and returns the oldest task of this queue, if any.
// Ties on enqueued_at break on _id so replayed batches keep their order.
func (q *MongoQueue) tryClaim(ctx context.Context) (*grafo.Task, bool, error) {
	var doc taskDoc
	err := q.coll.FindOneAndDelete(ctx,
		bson.M{"queue": q.name},
		options.FindOneAndDelete().SetSort(bson.D{
			{Key: "enqueued_at", Value: 1},
			{Key: "_id", Value: 1},
		}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}

	task, err := decodeTask(doc.Payload)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := q.coll.CountDocuments(ctx, bson.M{"queue": q.name})
	if err != nil {
		return 0
	}
	return int(n)
}

// Close stops pending Dequeues. Queued documents stay in the collection
// and are claimable after a restart.
func (q *MongoQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func encodeTask(t grafo.Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTask(data []byte) (*grafo.Task, error) {
	var t grafo.Task
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
