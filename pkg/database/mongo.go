package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/hayak-access/pkg/retry"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxRetries     int
	RetryInterval  time.Duration
}

// MongoDB wraps a connected mongo client bound to one database
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects and pings the primary, retrying like NewPostgres
func NewMongo(ctx context.Context, cfg *MongoConfig) (*MongoDB, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var client *mongo.Client
	result := retry.Do(ctx, &retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     4 * cfg.RetryInterval,
		Multiplier:      1.5,
	}, func(ctx context.Context) error {
		opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout)
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.WithoutCancel(ctx))
			return err
		}
		client = c
		return nil
	})
	if result.Err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb after %d attempts: %w", result.Attempts, errors.Join(result.Err, result.LastError))
	}

	return &MongoDB{client: client, db: client.Database(cfg.Database)}, nil
}

// Collection returns a handle on name
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Close disconnects the client
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// HealthCheck pings the primary
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}
