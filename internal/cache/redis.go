package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client caches rendered query responses for the hot auction-list
// endpoints. Short TTLs only; the store snapshot is the source of
// truth and the cache is allowed to lag it.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewClient() (*Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	password := os.Getenv("REDIS_PASSWORD")

	ttl := 2 * time.Second
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			ttl = parsed
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

func listKey(tier, sortBy string, endingWithin int64) string {
	return fmt.Sprintf("auctions:list:%s:%s:%d", tier, sortBy, endingWithin)
}

// GetAuctionsListRaw returns the cached raw JSON for a list query, or
// an error on a miss. Raw bytes avoid a decode/encode round trip on
// the hot path.
func (c *Client) GetAuctionsListRaw(ctx context.Context, tier, sortBy string, endingWithin int64) ([]byte, error) {
	data, err := c.rdb.Get(ctx, listKey(tier, sortBy, endingWithin)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("cache miss")
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	return data, nil
}

// SetAuctionsList stores a list response under its filter key.
func (c *Client) SetAuctionsList(ctx context.Context, tier, sortBy string, endingWithin int64, response any) {
	data, err := json.Marshal(response)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, listKey(tier, sortBy, endingWithin), data, c.ttl)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
