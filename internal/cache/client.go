package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Client wraps Redis operations using rueidis.
// It backs the "redis" storage driver: each store snapshot is one string key.
type Client struct {
	redis  rueidis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPrefix namespaces all keys (default "client_state").
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = prefix }
}

// WithTTL expires snapshots that are not rewritten within ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, url string, opts ...Option) (*Client, error) {
	// Parse Redis URL (redis://localhost:6379)
	clientOpts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	// Snapshots are read once at hydration; server-assisted caching buys nothing.
	clientOpts.DisableCache = true

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	// Verify connection
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	c := &Client{redis: client, prefix: "client_state"}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the Redis client.
func (c *Client) Close() {
	c.redis.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Do(ctx, c.redis.B().Ping().Build()).Error()
}

func (c *Client) key(name string) string {
	return fmt.Sprintf("%s:%s", c.prefix, name)
}

// GetItem retrieves a stored snapshot.
func (c *Client) GetItem(ctx context.Context, name string) ([]byte, error) {
	result, err := c.redis.Do(ctx, c.redis.B().Get().Key(c.key(name)).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return result, nil
}

// SetItem stores a snapshot, refreshing its TTL when one is configured.
func (c *Client) SetItem(ctx context.Context, name string, value []byte) error {
	var cmd rueidis.Completed
	if c.ttl > 0 {
		cmd = c.redis.B().Set().Key(c.key(name)).Value(rueidis.BinaryString(value)).Ex(c.ttl).Build()
	} else {
		cmd = c.redis.B().Set().Key(c.key(name)).Value(rueidis.BinaryString(value)).Build()
	}
	if err := c.redis.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// RemoveItem deletes a stored snapshot.
func (c *Client) RemoveItem(ctx context.Context, name string) error {
	if err := c.redis.Do(ctx, c.redis.B().Del().Key(c.key(name)).Build()).Error(); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
