// Package cache provides the Redis access layer used by the HTTP edge:
// token buckets for rate limits and the access gate verdict cache.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "pointsledger:"

// Pool sizing for clients opened by New. Every limited request costs one
// script call, so the pool tracks the HTTP concurrency of one instance.
const (
	poolSize        = 10
	minIdleConns    = 2
	poolTimeout     = 4 * time.Second
	connMaxIdleTime = 5 * time.Minute
)

// Cache holds a Redis client and the key namespace it writes under.
type Cache struct {
	client    *redis.Client
	namespace string
}

// New connects to redisURL and checks the server answers.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = poolSize
	opt.MinIdleConns = minIdleConns
	opt.PoolTimeout = poolTimeout
	opt.ConnMaxIdleTime = connMaxIdleTime

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client, DefaultNamespace), nil
}

// NewWithClient wraps an existing client. Tests use it to isolate runs
// under a unique namespace.
func NewWithClient(client *redis.Client, namespace string) *Cache {
	return &Cache{client: client, namespace: namespace}
}

func (c *Cache) key(parts ...string) string {
	return c.namespace + strings.Join(parts, "")
}

// Ping checks Redis connectivity for the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
