package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tellquote/tellquote/cmd/tellquote/cli"
	"github.com/tellquote/tellquote/internal/app"
	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/observability"
	"github.com/tellquote/tellquote/internal/pipeline"
	pipelinehttp "github.com/tellquote/tellquote/internal/pipeline/http"
	"github.com/tellquote/tellquote/internal/platform/cache"
	"github.com/tellquote/tellquote/internal/platform/db"
	quotehttp "github.com/tellquote/tellquote/internal/quote/http"
	"github.com/tellquote/tellquote/internal/quote/session"
	"github.com/tellquote/tellquote/internal/quote/storage"
	"github.com/tellquote/tellquote/internal/ratecard"
	ratecardhttp "github.com/tellquote/tellquote/internal/ratecard/http"
	rateshttp "github.com/tellquote/tellquote/internal/rates/http"
	"github.com/tellquote/tellquote/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Deps{
		Serve: serve,
		Rates: func(ctx context.Context) (cli.RateFetcher, error) {
			cfg, logger, err := loadConfig()
			if err != nil {
				return nil, err
			}
			// The CLI works without Redis; the cache is best effort.
			client, err := cache.New(ctx, cfg.CacheOptions())
			if err != nil {
				logger.Debug("rates cache unavailable", slog.Any("error", err))
				client = nil
			}
			return app.NewRatesService(cfg, client, logger, nil), nil
		},
		RateCard: func(ctx context.Context) (cli.RateCardStore, func(), error) {
			cfg, logger, err := loadConfig()
			if err != nil {
				return nil, nil, err
			}
			pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return nil, nil, err
			}
			if err := db.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			return ratecard.NewService(ratecard.NewPostgresRepository(pool), logger), pool.Close, nil
		},
		Jobs: func() (cli.JobQueue, error) {
			cfg, _, err := loadConfig()
			if err != nil {
				return nil, err
			}
			return cli.NewJobsCLI(cfg.AsynqRedisOpt())
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg), nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer dbpool.Close()
	if err := db.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		return err
	}

	redisClient, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	currency.SetUnknownObserver(metrics.UnknownCurrency)
	defer currency.SetUnknownObserver(nil)

	ratesService := app.NewRatesService(cfg, redisClient, logger, metrics)

	rateCardRepo := ratecard.NewPostgresRepository(dbpool)
	rateCardService := ratecard.NewService(rateCardRepo, logger)
	if err := seedRateCard(ctx, rateCardRepo); err != nil {
		logger.Warn("seed rate card", slog.Any("error", err))
	}

	drafts := storage.NewRedisDrafts(redisClient, cfg.QuoteDraftTTL).WithLogger(logger)
	library := storage.NewLibrary(dbpool)
	registry := session.NewRegistry(session.RegistryConfig{
		Drafts:   drafts,
		RateCard: rateCardService,
		Rates:    ratesService,
		Logger:   logger,
		Defaults: cfg.QuoteDefaults(),
	})

	pipelineService := pipeline.NewService(library, ratesService, cfg.DashboardCurrency)

	inspector := asynq.NewInspector(cfg.AsynqRedisOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		RatesHandler:    rateshttp.NewHandler(logger, ratesService),
		RateCardHandler: ratecardhttp.NewHandler(logger, rateCardService),
		QuoteHandler:    quotehttp.NewHandler(logger, registry, library, ratesService).WithSaveObserver(metrics),
		PipelineHandler: pipelinehttp.NewHandler(logger, pipelineService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

// seedRateCard installs the starter catalogue on an empty database.
func seedRateCard(ctx context.Context, repo ratecard.Repository) error {
	items, err := repo.List(ctx)
	if err != nil || len(items) > 0 {
		return err
	}
	return repo.Upsert(ctx, ratecard.SeedItems(time.Now().UTC())...)
}
