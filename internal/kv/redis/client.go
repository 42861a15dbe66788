// Package redis adapts go-redis to the ports.KV contract used by the
// webhook handler's replay/idempotency guards and the rate limiter (spec
// sections 4.B and 7).
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps a *redis.Client to satisfy ports.KV.
type Client struct {
	rdb *redis.Client
}

// Config is the subset of connection settings the adapter needs.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New constructs a Client against a single redis instance.
func New(cfg Config) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// Ping verifies connectivity at startup.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetNX sets key to value with ttl if and only if it is absent.
func (c *Client) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Get returns the stored value and whether the key exists.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Incr atomically increments key, applying ttl only the first time the key
// is created so a fixed window doesn't get its expiry pushed back on every
// hit (spec section 7 rate limiting).
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}
