package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Repository persists the session cached for each terminal key.
// Get returns (nil, nil) when no live session exists.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, terminalKey string) (*Session, error)
	Delete(ctx context.Context, terminalKey string) error
}

// MongoRepository keeps one document per terminal, keyed by the terminal key.
type MongoRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, now: time.Now}
}

// EnsureTTLIndex lets MongoDB purge sessions once expiresAt has passed.
func (r *MongoRepository) EnsureTTLIndex(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("session_expiry").SetExpireAfterSeconds(0),
	}
	if _, err := r.col.Indexes().CreateOne(ctx, idx); err != nil {
		return fmt.Errorf("create session ttl index: %w", err)
	}
	return nil
}

func (r *MongoRepository) Save(ctx context.Context, s *Session) error {
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(defaultSessionTTL)
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.TerminalKey}, s, options.Replace().SetUpsert(true))
	return err
}

// Get ignores documents past their expiry that the TTL monitor has not removed yet.
func (r *MongoRepository) Get(ctx context.Context, terminalKey string) (*Session, error) {
	var s Session
	filter := bson.M{"_id": terminalKey, "expiresAt": bson.M{"$gt": r.now().UTC()}}
	if err := r.col.FindOne(ctx, filter).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) Delete(ctx context.Context, terminalKey string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": terminalKey})
	return err
}
