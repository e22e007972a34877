package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tellquote/tellquote/internal/jobs"
	"github.com/tellquote/tellquote/internal/rates"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const ratesRefreshJobName = "rates_refresh"

// ErrRatesFallback marks a refresh that could not reach the live feed.
var ErrRatesFallback = errors.New("rates refresh: live feed unavailable, fallback table in use")

// RatesRefresher drops the cached table and fetches a new one.
type RatesRefresher interface {
	Refresh(ctx context.Context) rates.Snapshot
}

// RatesRefreshJob keeps the Redis rate cache warm.
type RatesRefreshJob struct {
	Rates   RatesRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRatesRefreshJob wires dependencies for the refresh handler.
func NewRatesRefreshJob(refresher RatesRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *RatesRefreshJob {
	return &RatesRefreshJob{
		Rates:   refresher,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes rates refresh tasks. A run that ends on the fallback
// table fails so asynq retries it.
func (j *RatesRefreshJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Rates == nil {
		return errors.New("rates refresh: handler not configured")
	}
	var payload RatesRefreshPayload
	if err := decodePayload(t.Payload(), &payload); err != nil {
		return fmt.Errorf("rates refresh: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(ratesRefreshJobName)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	started := j.now()
	snapshot := j.Rates.Refresh(ctx)
	j.metrics().AddItems(ratesRefreshJobName, snapshot.Source, len(snapshot.Rates))
	if snapshot.Source == rates.SourceFallback {
		logger.Warn("rates refresh fell back", slog.Int("currencies", len(snapshot.Rates)))
		return ErrRatesFallback
	}
	logger.Info("rates refreshed",
		slog.String("source", snapshot.Source),
		slog.Int("currencies", len(snapshot.Rates)),
		slog.Duration("duration", j.now().Sub(started)),
	)
	return nil
}

func (j *RatesRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRatesRefresh))
	}
	return slog.Default().With(slog.String("job", TaskRatesRefresh))
}

func (j *RatesRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RatesRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
