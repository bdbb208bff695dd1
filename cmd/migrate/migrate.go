package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"instagram-automation/internal/config"
	"instagram-automation/internal/store"
	"instagram-automation/services"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  indexes       - Create collection indexes")
		fmt.Println("  seed-catalog  - Add the starter hashtags and caption templates to an empty catalog")
		fmt.Println("  verify        - Check indexes and print collection counts")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// ConnectMongoDB also creates the indexes
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	st := store.NewMongoStore(client, cfg.DBName, nil)
	defer st.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "indexes":
		fmt.Println("Indexes are in place.")

	case "seed-catalog":
		tags, templates, err := services.NewCatalogService(st).SeedDefaults(ctx)
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		fmt.Printf("Seeded %d hashtags and %d templates.\n", tags, templates)

	case "verify":
		if err := verify(ctx, client.Database(cfg.DBName)); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Println("Verification completed successfully!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func verify(ctx context.Context, db *mongo.Database) error {
	collections := []string{
		config.CollectionAccounts,
		config.CollectionSchedules,
		config.CollectionPosts,
		config.CollectionHashtags,
		config.CollectionTemplates,
	}

	for _, name := range collections {
		coll := db.Collection(name)

		count, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}

		specs, err := coll.Indexes().ListSpecifications(ctx)
		if err != nil {
			return fmt.Errorf("list indexes of %s: %w", name, err)
		}
		// _id is always there
		if len(specs) < 2 {
			return fmt.Errorf("%s has no secondary indexes, run the indexes command", name)
		}

		fmt.Printf("  %-20s %6d documents, %d indexes\n", name, count, len(specs))
	}

	// Every account needs exactly one active schedule
	accounts, err := db.Collection(config.CollectionAccounts).Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, id := range accounts {
		n, err := db.Collection(config.CollectionSchedules).CountDocuments(ctx, bson.M{"account_id": id, "is_active": true})
		if err != nil {
			return fmt.Errorf("count schedules: %w", err)
		}
		if n != 1 {
			fmt.Printf("  warning: account %v has %d active schedules\n", id, n)
		}
	}

	return nil
}
