package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tellquote/tellquote/internal/currency"
)

const (
	cacheKey        = "rates:usd"
	DefaultCacheTTL = time.Hour
)

type cachedRates struct {
	Rates     currency.Rates `json:"rates"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Cache stores the last live table in Redis. A nil Cache or client turns
// every call into a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached table and the time it was fetched.
func (c *Cache) Get(ctx context.Context) (currency.Rates, time.Time, bool, error) {
	if c == nil || c.client == nil {
		return nil, time.Time{}, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var entry cachedRates
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next fetch.
		return nil, time.Time{}, false, nil
	}
	if len(entry.Rates) == 0 {
		return nil, time.Time{}, false, nil
	}
	return entry.Rates, entry.FetchedAt, true, nil
}

// Set stores rates fetched at the given instant.
func (c *Cache) Set(ctx context.Context, rates currency.Rates, fetchedAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cachedRates{Rates: rates, FetchedAt: fetchedAt.UTC()})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey, raw, c.ttl).Err()
}

// Clear drops the cached table.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey).Err()
}
