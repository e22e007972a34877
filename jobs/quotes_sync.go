package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tellquote/tellquote/internal/jobs"
	"github.com/tellquote/tellquote/internal/quote/storage"
)

const quotesSyncJobName = "quotes_sync"

// QuoteSyncer runs one draft-to-library pass.
type QuoteSyncer interface {
	Sync(ctx context.Context) (storage.SyncResult, error)
}

// QuotesSyncJob copies edited drafts into the Postgres library.
type QuotesSyncJob struct {
	Syncer  QuoteSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQuotesSyncJob wires dependencies for the sync handler.
func NewQuotesSyncJob(syncer QuoteSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuotesSyncJob {
	return &QuotesSyncJob{
		Syncer:  syncer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes quotes sync tasks. Per-draft failures are counted but
// only fail the run when nothing could be written.
func (j *QuotesSyncJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Syncer == nil {
		return errors.New("quotes sync: handler not configured")
	}
	var payload QuotesSyncPayload
	if err := decodePayload(t.Payload(), &payload); err != nil {
		return fmt.Errorf("quotes sync: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(quotesSyncJobName)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	started := j.now()
	result, err := j.Syncer.Sync(ctx)
	m := j.metrics()
	m.AddItems(quotesSyncJobName, "synced", result.Synced)
	m.AddItems(quotesSyncJobName, "unchanged", result.Unchanged)
	m.AddItems(quotesSyncJobName, "skipped", result.Skipped)
	m.AddItems(quotesSyncJobName, "failed", result.Failed)
	if err != nil {
		logger.Error("list drafts", slog.Any("error", err))
		return fmt.Errorf("quotes sync: %w", err)
	}
	if result.Failed > 0 && result.Synced == 0 {
		logger.Error("quotes sync failed", slog.Int("failed", result.Failed))
		return fmt.Errorf("quotes sync: %d drafts failed", result.Failed)
	}

	logger.Debug("quotes synced",
		slog.Int("synced", result.Synced),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", j.now().Sub(started)),
	)
	return nil
}

func (j *QuotesSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuotesSync))
	}
	return slog.Default().With(slog.String("job", TaskQuotesSync))
}

func (j *QuotesSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *QuotesSyncJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
