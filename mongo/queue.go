package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/grafo"

	mqueue "github.com/petrijr/grafo/mongo/internal/taskqueue"
)

// NewMongoQueue returns the named task queue stored in the grafo
// database. Engine and workers reaching the same database under the same
// name share the queue.
func NewMongoQueue(client *mongo.Client, name string) (grafo.Queue, error) {
	return mqueue.NewMongoQueue(client, Database, "", name)
}
