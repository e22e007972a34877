// Package cache builds the Redis client shared by the rate cache, the quote
// draft store and the job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects the Redis instance.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisOptions converts to go-redis options.
func (o Options) RedisOptions() *redis.Options {
	return &redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// New creates a Redis client and checks it answers a ping.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.RedisOptions())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
