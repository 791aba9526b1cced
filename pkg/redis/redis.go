package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// Nil is returned by reads on missing keys
var Nil = redis.Nil

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

// ConfigFromApp maps the application redis section onto a client config
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		Addr:          cfg.Redis.Addr(),
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Client wraps redis.Client with cached Lua script support
type Client struct {
	client *redis.Client
	shas   sync.Map // script name -> sha
}

// NewClient connects to Redis, retrying the initial ping
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	result := retry.Do(ctx, &retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     4 * cfg.RetryInterval,
	}, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if result.Err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", result.Attempts, errors.Join(result.Err, result.LastError))
	}

	return &Client{client: rdb}, nil
}

// Wrap adapts an existing go-redis client
func Wrap(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck performs a health check on Redis
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Script is a named Lua script
type Script struct {
	Name   string
	Source string
}

// LoadScript loads a script into the server script cache
func (c *Client) LoadScript(ctx context.Context, s Script) (string, error) {
	sha, err := c.client.ScriptLoad(ctx, s.Source).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", s.Name, err)
	}
	c.shas.Store(s.Name, sha)
	return sha, nil
}

// Run executes the script by SHA and reloads it once when the server lost it
func (c *Client) Run(ctx context.Context, s Script, keys []string, args ...interface{}) *redis.Cmd {
	sha, ok := c.shas.Load(s.Name)
	if !ok {
		loaded, err := c.LoadScript(ctx, s)
		if err != nil {
			cmd := redis.NewCmd(ctx)
			cmd.SetErr(err)
			return cmd
		}
		sha = loaded
	}

	cmd := c.client.EvalSha(ctx, sha.(string), keys, args...)
	if !isNoScriptError(cmd.Err()) {
		return cmd
	}

	loaded, err := c.LoadScript(ctx, s)
	if err != nil {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(err)
		return cmd
	}
	return c.client.EvalSha(ctx, loaded, keys, args...)
}

func isNoScriptError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// Get gets a value by key
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	return c.client.Get(ctx, key)
}

// Set sets a value with optional expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return c.client.Set(ctx, key, value, expiration)
}

// SetNX sets a value only if key doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return c.client.SetNX(ctx, key, value, expiration)
}

// Del deletes keys
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return c.client.Del(ctx, keys...)
}

// Pipeline returns a pipeline for batch operations
func (c *Client) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}
