// Package redis implements the price cache, event bus, scan lock and
// trade-frequency limiter on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces keys when ClientConfig leaves it empty.
const DefaultKeyPrefix = "binarymm"

// keyspace builds keys of the form "{prefix}:{kind}:{id}".
type keyspace string

func (k keyspace) key(kind, id string) string {
	prefix := string(k)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + kind + ":" + id
}

// ClientConfig holds connection parameters for the Redis client. Replicas
// that share a KeyPrefix share price cache, scan lock and trade window.
type ClientConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	TLSEnabled  bool
	DialTimeout time.Duration
	KeyPrefix   string
}

// Client owns the go-redis connection and the key namespace shared by the
// cache, lock, limiter and bus built on it.
type Client struct {
	rdb  *redis.Client
	keys keyspace
}

// New connects to Redis and pings it. A failed ping closes the connection.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, keys: keyspace(strings.TrimSuffix(cfg.KeyPrefix, ":"))}, nil
}

// Key returns the namespaced key for id within kind, e.g. "price" or
// "lock".
func (c *Client) Key(kind, id string) string {
	return c.keys.key(kind, id)
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the go-redis client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
