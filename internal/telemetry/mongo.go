package telemetry

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSink writes batches to a Mongo collection with one InsertMany.
type MongoSink struct {
	col *mongo.Collection
}

func NewMongoSink(col *mongo.Collection) *MongoSink {
	return &MongoSink{col: col}
}

func (s *MongoSink) WriteBatch(ctx context.Context, events []Event) error {
	docs := make([]interface{}, 0, len(events))
	for _, ev := range events {
		doc := bson.M{
			"event_type": ev.Type,
			"severity":   string(ev.Severity),
			"context":    ev.SinkContext(),
			"created_at": ev.Timestamp,
		}
		if ev.UserID != "" {
			doc["user_id"] = ev.UserID
		}
		docs = append(docs, doc)
	}
	_, err := s.col.InsertMany(ctx, docs)
	return err
}
