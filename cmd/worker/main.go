package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tellquote/tellquote/internal/app"
	"github.com/tellquote/tellquote/internal/platform/cache"
	"github.com/tellquote/tellquote/internal/platform/db"
	"github.com/tellquote/tellquote/internal/quote/storage"
	"github.com/tellquote/tellquote/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ratesService := app.NewRatesService(cfg, redisClient, logger, nil)
	syncer := storage.NewSyncer(
		storage.NewRedisDrafts(redisClient, cfg.QuoteDraftTTL).WithLogger(logger),
		storage.NewLibrary(pool),
		logger,
	)

	refreshJob := jobs.NewRatesRefreshJob(ratesService, logger, nil)
	syncJob := jobs.NewQuotesSyncJob(syncer, logger, nil)

	refreshTask, err := jobs.NewRatesRefreshTask("cron")
	if err != nil {
		logger.Error("build rates refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	syncTask, err := jobs.NewQuotesSyncTask("cron")
	if err != nil {
		logger.Error("build quotes sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.AsynqRedisOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRatesRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskQuotesSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RatesRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.QuoteSyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(jobs.QuotesSyncUniqueWindow)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("rates_refresh_cron", cfg.RatesRefreshCron),
		slog.String("quote_sync_cron", cfg.QuoteSyncCron),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
