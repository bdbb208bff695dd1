package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	CollectionAccounts  = "accounts"
	CollectionSchedules = "posting_schedules"
	CollectionPosts     = "posts"
	CollectionHashtags  = "hashtag_repository"
	CollectionTemplates = "caption_templates"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = CreateIndexes(ctx, client.Database(cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// CreateIndexes is idempotent; existing indexes with the same spec are kept.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionAccounts: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "instagram_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		CollectionSchedules: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		// Quota counting and rehydration both filter on these
		CollectionPosts: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "scheduled_time", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_time", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		CollectionHashtags: {
			{
				Keys:    bson.D{{Key: "tag", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		CollectionTemplates: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}
