package app

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tellquote/tellquote/internal/platform/cache"
	"github.com/tellquote/tellquote/internal/rates"
)

// CacheOptions selects the Redis instance shared by every component.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqRedisOpt points the job queue at the same Redis instance.
func (c *Config) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewRatesService builds the live-rate service. A nil client disables the
// Redis cache.
func NewRatesService(cfg *Config, client *redis.Client, logger *slog.Logger, recorder rates.Recorder) *rates.Service {
	var rateCache *rates.Cache
	if client != nil {
		rateCache = rates.NewCache(client, cfg.RatesCacheTTL)
	}
	return rates.NewService(rates.Config{
		Fetcher:  rates.NewClient(cfg.RatesURL, cfg.RatesTimeout),
		Cache:    rateCache,
		Timeout:  cfg.RatesTimeout,
		Logger:   logger,
		Recorder: recorder,
	})
}
