// Path: internal/storage/mongo_storage.go
package storage

import (
	"context"
	"fmt"

	"chanbroker/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoChannelCatalog is the MongoDB implementation of the ChannelCatalog interface.
type MongoChannelCatalog struct {
	collection *mongo.Collection
}

// NewMongoChannelCatalog creates a new storage adapter for channel records.
func NewMongoChannelCatalog(db *mongo.Database, collectionName string) *MongoChannelCatalog {
	return &MongoChannelCatalog{
		collection: db.Collection(collectionName),
	}
}

// Save implements the ChannelCatalog interface.
func (s *MongoChannelCatalog) Save(ctx context.Context, record domain.ChannelRecord) error {
	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": record.Name}
	if _, err := s.collection.ReplaceOne(ctx, filter, record, opts); err != nil {
		return fmt.Errorf("failed to save channel %q: %w", record.Name, err)
	}
	return nil
}

// List implements the ChannelCatalog interface.
func (s *MongoChannelCatalog) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer cursor.Close(ctx)

	var records []domain.ChannelRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return records, nil
}
