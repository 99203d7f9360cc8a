// Package mongo backs the grafo engine with MongoDB: run records, the
// event log and both task queues live in one database, shared by the
// dispatching engine and any number of worker processes.
package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/grafo"
	"github.com/petrijr/grafo/pkg/worker"

	mstore "github.com/petrijr/grafo/mongo/internal/runstore"
	mqueue "github.com/petrijr/grafo/mongo/internal/taskqueue"
)

// Database is the default MongoDB database name for all grafo
// collections.
const Database = "grafo"

// NewMongoEngine returns an Engine that persists run state in MongoDB,
// in the grafo database of the given client.
func NewMongoEngine(client *mongo.Client) (grafo.Engine, error) {
	return NewMongoEngineWithObserver(client, nil)
}

// NewMongoEngineWithObserver returns a Mongo-backed Engine with the
// given Observer.
func NewMongoEngineWithObserver(client *mongo.Client, obs grafo.Observer) (grafo.Engine, error) {
	store, err := mstore.NewMongoStore(client, Database, "", "")
	if err != nil {
		return nil, err
	}
	events, err := mstore.NewMongoEventStore(client, Database, "")
	if err != nil {
		return nil, err
	}
	tasks, err := mqueue.NewMongoQueue(client, Database, "", "tasks")
	if err != nil {
		return nil, err
	}
	results, err := mqueue.NewMongoQueue(client, Database, "", "results")
	if err != nil {
		return nil, err
	}

	return grafo.NewEngine(grafo.EngineConfig{
		Store:    store,
		Events:   events,
		Observer: obs,
		Tasks:    tasks,
		Results:  results,
	}), nil
}

// NewMongoWorker returns a Worker consuming the task queues of a
// Mongo-backed engine sharing the same database.
func NewMongoWorker(client *mongo.Client, reg *grafo.Registry, opts ...worker.Option) (*grafo.Worker, error) {
	store, err := mstore.NewMongoStore(client, Database, "", "")
	if err != nil {
		return nil, err
	}
	tasks, err := mqueue.NewMongoQueue(client, Database, "", "tasks")
	if err != nil {
		return nil, err
	}
	results, err := mqueue.NewMongoQueue(client, Database, "", "results")
	if err != nil {
		return nil, err
	}
	return grafo.NewWorker(reg, store, tasks, results, opts...), nil
}

// NewMongoRunStore returns a standalone RunStore for custom EngineConfig
// or Worker assembly. dbName defaults to the grafo database.
func NewMongoRunStore(client *mongo.Client, dbName, workRoot string) (grafo.RunStore, error) {
	return mstore.NewMongoStore(client, dbName, "", workRoot)
}
