// Package redis implements the cross-process plumbing of the detector on
// go-redis/v9: the signal bus that carries order books and arbitrage events,
// the distributed lock guarding matrix snapshots, and the API rate limiter.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultNamespace prefixes every key this package owns.
const defaultNamespace = "arbdetector"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes lock and rate-limit keys. Defaults to "arbdetector".
	Namespace string
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New creates a new Redis Client, pings it to verify connectivity, and returns
// the wrapper. It returns an error if the connection cannot be established.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return newClient(rdb, cfg.Namespace), nil
}

func newClient(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{rdb: rdb, namespace: namespace}
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

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// key builds a namespaced key such as "arbdetector:lock:matrix-snapshot".
func (c *Client) key(kind, name string) string {
	return c.namespace + ":" + kind + ":" + name
}
