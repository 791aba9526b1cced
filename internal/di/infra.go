package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/database"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	pkgredis "github.com/prohmpiriya/hayak-access/pkg/redis"
)

// Infra holds the connections a binary opened
type Infra struct {
	DB    *database.PostgresDB
	Redis *pkgredis.Client
	Mongo *database.MongoDB
}

// ConnectInfra opens the backing stores the configuration asks for.
//
// The memory ledger backend runs without Postgres. Redis is required only
// by the redis ledger; otherwise a failed connection just disables request
// idempotency. MongoDB is connected when enabled and falls back to the
// in-memory audit trail when it is unreachable.
func ConnectInfra(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	infra := &Infra{}
	backend := cfg.Allocation.LedgerBackend

	if backend != config.LedgerBackendMemory {
		db, err := database.NewPostgres(ctx, database.ConfigFromApp(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		infra.DB = db
		log.Info("database connected")
	}

	if backend != config.LedgerBackendMemory || cfg.Redis.Host != "" {
		rdb, err := pkgredis.NewClient(ctx, pkgredis.ConfigFromApp(cfg))
		switch {
		case err == nil:
			infra.Redis = rdb
			log.Info("redis connected")
		case backend == config.LedgerBackendRedis:
			infra.Close(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		default:
			log.Warn("redis unavailable, idempotency disabled", "error", err)
		}
	}

	if cfg.MongoDB.Enabled {
		mongo, err := database.NewMongo(ctx, &database.MongoConfig{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			ConnectTimeout: 10 * time.Second,
			MaxRetries:     3,
			RetryInterval:  2 * time.Second,
		})
		if err != nil {
			log.Warn("mongodb unavailable, using in-memory audit trail", "error", err)
		} else {
			infra.Mongo = mongo
			log.Info("mongodb connected")
		}
	}

	return infra, nil
}

// Close releases every open connection
func (i *Infra) Close(ctx context.Context) {
	if i.Mongo != nil {
		_ = i.Mongo.Close(ctx)
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
