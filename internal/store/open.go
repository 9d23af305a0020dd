package store

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/contentforge/api/internal/config"
)

// Open returns the MongoDB store, or the memory store when no URI is
// configured. The returned client is nil for the memory store.
func Open(ctx context.Context, cfg config.MongoConfig, log *slog.Logger) (ContentStore, *mongo.Client, error) {
	if cfg.URI == "" {
		log.Warn("MONGO_URI not set, using in-memory content store")
		return NewMemoryContentStore(), nil, nil
	}

	client, err := ConnectMongo(ctx, cfg.URI)
	if err != nil {
		return nil, nil, err
	}

	s := NewMongoContentStore(client.Database(cfg.Database).Collection(cfg.Collection))
	if err := s.EnsureIndexes(ctx); err != nil {
		log.Warn("Failed to ensure content indexes", "error", err)
	}

	log.Info("Connected to MongoDB", "database", cfg.Database, "collection", cfg.Collection)
	return s, client, nil
}
