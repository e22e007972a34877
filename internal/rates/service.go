package rates

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tellquote/tellquote/internal/currency"
)

// Snapshot sources.
const (
	SourceCache    = "cache"
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// Snapshot is the rate table in effect plus where it came from. Timestamp is
// nil when the static fallback table is served.
type Snapshot struct {
	Rates     currency.Rates `json:"rates"`
	Timestamp *time.Time     `json:"timestamp"`
	Source    string         `json:"source"`
}

// Fetcher retrieves a live table.
type Fetcher interface {
	Latest(ctx context.Context) (currency.Rates, error)
}

// Recorder observes which source answered a lookup.
type Recorder interface {
	RatesFetched(source string)
}

// Config wires the service dependencies.
type Config struct {
	Fetcher  Fetcher
	Cache    *Cache
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	Clock    func() time.Time
}

// Service resolves the current rate table: cache, then upstream, then the
// static fallback. It never fails.
type Service struct {
	fetcher  Fetcher
	cache    *Cache
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	clock    func() time.Time
	group    singleflight.Group
}

// NewService constructs the service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		fetcher:  cfg.Fetcher,
		cache:    cfg.Cache,
		timeout:  timeout,
		logger:   logger,
		recorder: cfg.Recorder,
		clock:    clock,
	}
}

// Fetch returns the current snapshot. Concurrent callers share one upstream
// request, which outlives the cancellation of whichever caller started it;
// a caller whose own context ends first gets the fallback table.
func (s *Service) Fetch(ctx context.Context) Snapshot {
	ch := s.group.DoChan(cacheKey, func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx)), nil
	})
	var snap Snapshot
	select {
	case res := <-ch:
		snap = res.Val.(Snapshot)
	case <-ctx.Done():
		snap = Snapshot{Rates: currency.FallbackRates(), Source: SourceFallback}
	}
	snap.Rates = snap.Rates.Clone()
	if s.recorder != nil {
		s.recorder.RatesFetched(snap.Source)
	}
	return snap
}

// Refresh drops the cached table and fetches a fresh one.
func (s *Service) Refresh(ctx context.Context) Snapshot {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("rates cache clear failed", slog.Any("error", err))
	}
	s.group.Forget(cacheKey)
	return s.Fetch(ctx)
}

// Current returns just the table, for callers that convert amounts.
func (s *Service) Current(ctx context.Context) currency.Rates {
	return s.Fetch(ctx).Rates
}

func (s *Service) resolve(ctx context.Context) Snapshot {
	cached, fetchedAt, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("rates cache read failed", slog.Any("error", err))
	}
	if ok {
		ts := fetchedAt
		return Snapshot{Rates: cached.Complete(), Timestamp: &ts, Source: SourceCache}
	}

	if s.fetcher != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		live, err := s.fetcher.Latest(fetchCtx)
		cancel()
		if err == nil {
			now := s.clock()
			table := live.Complete()
			if err := s.cache.Set(ctx, table, now); err != nil {
				s.logger.Warn("rates cache write failed", slog.Any("error", err))
			}
			return Snapshot{Rates: table, Timestamp: &now, Source: SourceLive}
		}
		s.logger.Warn("live rates unavailable, using fallback", slog.Any("error", err))
	}
	return Snapshot{Rates: currency.FallbackRates(), Source: SourceFallback}
}
