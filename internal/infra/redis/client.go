package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the generation job queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
const jobQueueKey = "episode_jobs"

func aggLockKey(episodeID string) string {
	return fmt.Sprintf("agg_lock:%s", episodeID)
}

// EnqueueEpisode adds an episode to the generation queue, scored by enqueue
// time so the oldest job is popped first.
func (c *Client) EnqueueEpisode(ctx context.Context, episodeID string) error {
	z := redis.Z{Score: float64(time.Now().Unix()), Member: episodeID}
	if err := c.rdb.ZAdd(ctx, jobQueueKey, z).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// DequeueEpisode pops the oldest queued episode (lowest score).
func (c *Client) DequeueEpisode(ctx context.Context) (episodeID string, found bool, err error) {
	results, err := c.rdb.ZRangeWithScores(ctx, jobQueueKey, 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("zrange failed: %w", err)
	}

	if len(results) == 0 {
		return "", false, nil
	}

	member := results[0].Member.(string)

	// Remove from queue
	if err := c.rdb.ZRem(ctx, jobQueueKey, member).Err(); err != nil {
		return "", false, fmt.Errorf("zrem failed: %w", err)
	}

	return member, true, nil
}

// QueueLength returns the number of queued episodes.
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	return c.rdb.ZCard(ctx, jobQueueKey).Result()
}

// AcquireAggregationLock attempts to acquire the per-episode aggregation
// lock, guarding concurrent aggregation across engine instances.
func (c *Client) AcquireAggregationLock(ctx context.Context, episodeID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, aggLockKey(episodeID), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseAggregationLock releases the per-episode aggregation lock.
func (c *Client) ReleaseAggregationLock(ctx context.Context, episodeID string) error {
	return c.rdb.Del(ctx, aggLockKey(episodeID)).Err()
}
