package runstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/grafo"
)

// MongoEventStore keeps the append-only run event log in a MongoDB
// collection. ObjectIDs are monotonic enough to preserve insert order
// within a single process, which is all ListEvents promises.
type MongoEventStore struct {
	coll *mongo.Collection
}

var _ grafo.EventStore = (*MongoEventStore)(nil)

type eventDoc struct {
	RunID  string `bson:"run_id"`
	At     int64  `bson:"at"`
	Type   string `bson:"event_type"`
	Graph  string `bson:"graph_name,omitempty"`
	Node   string `bson:"node_name,omitempty"`
	Detail string `bson:"detail,omitempty"`
}

// NewMongoEventStore creates the event log. dbName defaults to "grafo",
// collName to "run_events".
func NewMongoEventStore(client *mongo.Client, dbName, collName string) (*MongoEventStore, error) {
	if dbName == "" {
		dbName = "grafo"
	}
	if collName == "" {
		collName = "run_events"
	}

	s := &MongoEventStore{coll: client.Database(dbName).Collection(collName)}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoEventStore) AppendEvent(ctx context.Context, ev grafo.RunEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, eventDoc{
		RunID:  ev.RunID,
		At:     ev.At.UnixNano(),
		Type:   string(ev.Type),
		Graph:  ev.Graph,
		Node:   ev.Node,
		Detail: ev.Detail,
	})
	return err
}

func (s *MongoEventStore) ListEvents(ctx context.Context, runID string) ([]grafo.RunEvent, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"run_id": runID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []grafo.RunEvent
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, grafo.RunEvent{
			RunID:  doc.RunID,
			At:     time.Unix(0, doc.At),
			Type:   grafo.EventType(doc.Type),
			Graph:  doc.Graph,
			Node:   doc.Node,
			Detail: doc.Detail,
		})
	}
	return out, cur.Err()
}
