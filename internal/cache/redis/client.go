// Package redis backs the trade lock, the price snapshot cache and the event
// bus with go-redis/v9 when several bot processes share wallets.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client. Prefix
// namespaces every key and channel, so several deployments can share one
// server.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Prefix     string
}

// Client is a connected go-redis client plus the key namespace the lock,
// price cache and signal bus write under.
type Client struct {
	rdb    *redis.Client
	addr   string
	prefix string
}

func options(cfg ClientConfig) *redis.Options {
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
	return opts
}

// New connects to cfg.Addr. A server that does not answer PING fails startup
// rather than degrading into a lock that can never be taken.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	c := &Client{
		rdb:    redis.NewClient(options(cfg)),
		addr:   cfg.Addr,
		prefix: cfg.Prefix,
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// Key joins parts with ":" under the client's prefix.
func (c *Client) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Ping round-trips to the server. It is also the health check, so the error
// names the address and how long the attempt took.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s after %s: %w", c.addr, time.Since(start).Round(time.Millisecond), err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
