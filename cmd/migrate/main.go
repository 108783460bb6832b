package main

import (
	"context"
	"os"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/config"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/database"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
)

// migrate applies the PostgreSQL schema and the MongoDB indexes, then exits.
// The service migrates on startup too; this is for deploy pipelines.
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.Postgres.URL == "" && cfg.MongoDB.URI == "" {
		logger.Fatalf("nothing to migrate: set DATABASE_URL or MONGODB_URI")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.Postgres.URL != "" {
		pool, err := database.ConnectPostgres(ctx, cfg.Postgres.URL, 1, cfg.Postgres.Timeout)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("postgres migrate: %v", err)
		}
		logger.Infof("postgres schema up to date")
	}

	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Fatalf("mongo: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := shifts.EnsureMongoIndexes(ctx, client.Database(cfg.MongoDB.Database)); err != nil {
			logger.Fatalf("mongo indexes: %v", err)
		}
		logger.Infof("mongo indexes up to date")
	}
}
