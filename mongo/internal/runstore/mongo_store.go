// Package runstore implements the grafo run store contracts on MongoDB.
package runstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/grafo"
)

const opTimeout = 5 * time.Second

// MongoStore is a RunStore backed by a MongoDB collection. Records are
// keyed by (graph_name, instance_name) under a unique compound index, so
// persisting replaces the previous record like every other backend.
//
// Working directories are process-local: node file artifacts land on the
// machine that executed the node.
type MongoStore struct {
	coll *mongo.Collection

	mu           sync.Mutex
	workRoot     string
	ownsWorkRoot bool
}

var _ grafo.RunStore = (*MongoStore)(nil)

type recordDoc struct {
	Graph    string `bson:"graph_name"`
	Instance string `bson:"instance_name"`
	// Fingerprint is duplicated outside the payload for query-side
	// inspection; Lookup compares against the decoded record.
	Fingerprint string `bson:"fingerprint"`
	Payload     []byte `bson:"payload"`
	CreatedAt   int64  `bson:"created_at"`
}

// NewMongoStore creates a Mongo-backed run store and ensures its index.
// dbName defaults to "grafo", collName to "run_records". workRoot is where
// node working directories live; empty means a temporary root removed by
// Close.
func NewMongoStore(client *mongo.Client, dbName, collName, workRoot string) (*MongoStore, error) {
	if dbName == "" {
		dbName = "grafo"
	}
	if collName == "" {
		collName = "run_records"
	}

	s := &MongoStore{
		coll:     client.Database(dbName).Collection(collName),
		workRoot: workRoot,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "graph_name", Value: 1},
			{Key: "instance_name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) Lookup(ctx context.Context, graph, instance, fingerprint string) (grafo.RunRecord, error) {
	var doc recordDoc
	err := s.coll.FindOne(ctx, bson.M{
		"graph_name":    graph,
		"instance_name": instance,
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return grafo.RunRecord{}, grafo.ErrRecordNotFound
		}
		return grafo.RunRecord{}, err
	}
	if doc.Fingerprint != fingerprint {
		return grafo.RunRecord{}, grafo.ErrRecordNotFound
	}
	return decodeRecord(doc.Payload)
}

func (s *MongoStore) Persist(ctx context.Context, rec grafo.RunRecord) error {
	switch {
	case rec.GraphName == "":
		return errors.New("record has no graph name")
	case rec.InstanceName == "":
		return errors.New("record has no instance name")
	case rec.Fingerprint == "":
		return errors.New("record has no fingerprint")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	doc := recordDoc{
		Graph:       rec.GraphName,
		Instance:    rec.InstanceName,
		Fingerprint: rec.Fingerprint,
		Payload:     payload,
		CreatedAt:   rec.CreatedAt.UnixNano(),
	}
	_, err = s.coll.ReplaceOne(ctx,
		bson.M{"graph_name": rec.GraphName, "instance_name": rec.InstanceName},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) List(ctx context.Context, graph string) ([]grafo.RunRecord, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"graph_name": graph},
		options.Find().SetSort(bson.D{{Key: "instance_name", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []grafo.RunRecord
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(doc.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

func (s *MongoStore) WorkDir(graph, instance string) (string, error) {
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
// itself. The Mongo client belongs to the caller and stays open.
func (s *MongoStore) Close() error {
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
