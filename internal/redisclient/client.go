package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client caches ledger availability for cheap reads and backs webhook
// idempotency keys. The database is authoritative; every cache path
// here is best-effort.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(variantID int64) string {
	return fmt.Sprintf("inventory:available:%d", variantID)
}

// SetAvailable caches the available quantity for a variant.
func (c *Client) SetAvailable(ctx context.Context, variantID int64, available int, ttl time.Duration) error {
	return c.rdb.Set(ctx, availabilityKey(variantID), available, ttl).Err()
}

// GetAvailable returns the cached available quantity. The second
// return value reports a cache hit.
func (c *Client) GetAvailable(ctx context.Context, variantID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, availabilityKey(variantID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	available, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt availability cache for variant %d: %w", variantID, err)
	}
	return available, true, nil
}

// InvalidateAvailable drops the cached availability for a variant.
func (c *Client) InvalidateAvailable(ctx context.Context, variantID int64) error {
	return c.rdb.Del(ctx, availabilityKey(variantID)).Err()
}

// EventSeen reports whether an external event id has been recorded.
func (c *Client) EventSeen(ctx context.Context, eventID string) (bool, error) {
	err := c.rdb.Get(ctx, fmt.Sprintf("event:%s", eventID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkEventSeen records an external event id with a TTL. Returns true
// if this is the first sighting, false on replay.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("event:%s", eventID), "1", ttl).Result()
}
