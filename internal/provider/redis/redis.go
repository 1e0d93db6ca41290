// Package redis implements the Provider interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

var _ provider.Provider = (*RedisProvider)(nil)

const (
	defaultPrefix   = "ledgerlens:"
	defaultRunLimit = 100
	// Superseded table versions stay readable this long after a publish.
	supersededTTL = 5 * time.Minute
)

// RedisProvider implements the Provider interface backed by Redis/Valkey.
type RedisProvider struct {
	client   *goredis.Client
	prefix   string
	runLimit int
	logger   *slog.Logger
}

// New creates a new RedisProvider.
func New(cfg *types.RedisConfig, logger *slog.Logger) *RedisProvider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := NewFromClient(client, cfg.KeyPrefix, logger)
	if cfg.RunLimit > 0 {
		p.runLimit = cfg.RunLimit
	}
	return p
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string, logger *slog.Logger) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProvider{
		client:   client,
		prefix:   prefix,
		runLimit: defaultRunLimit,
		logger:   logger,
	}
}

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (p *RedisProvider) Client() *goredis.Client {
	return p.client
}

func (p *RedisProvider) sourceKey(table string) string {
	return p.prefix + "source:" + table
}

func (p *RedisProvider) tableKey(table, runID string) string {
	return p.prefix + "table:" + table + ":v:" + runID
}

func (p *RedisProvider) currentKey(table string) string {
	return p.prefix + "table:" + table + ":current"
}

func (p *RedisProvider) runKey(runID string) string {
	return p.prefix + "run:" + runID
}

func (p *RedisProvider) runIndexKey() string {
	return p.prefix + "runs"
}

func (p *RedisProvider) lockKey(key string) string {
	return p.prefix + "lock:" + key
}
