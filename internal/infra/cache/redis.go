package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Client wraps go-redis with environment-prefixed keys.
type Client struct {
	rdb  *redis.Client
	keys *KeyBuilder
	log  *logrus.Entry
}

// NewClient connects to redisURL and pings it.
func NewClient(redisURL, environment string, log *logrus.Entry) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, keys: NewKeyBuilder(environment), log: log}, nil
}

func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Claim takes key for ttl. It returns false when another caller already holds it.
func (c *Client) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, c.keys.Build(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	entry := c.log.WithFields(logrus.Fields{"key": key, "duration": time.Since(start)})
	if err != nil {
		entry.WithError(err).Warn("redis claim failed")
		return false, fmt.Errorf("error claiming %s: %w", key, err)
	}
	entry.WithField("claimed", ok).Debug("redis claim")
	return ok, nil
}

// Release drops a claim so a failed insert can be retried before the TTL runs out.
func (c *Client) Release(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.keys.Build(key)).Err(); err != nil {
		return fmt.Errorf("error releasing %s: %w", key, err)
	}
	return nil
}
