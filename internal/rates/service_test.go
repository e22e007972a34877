package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/currency"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sourceCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *sourceCounter) RatesFetched(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[source]++
}

func upstream(t *testing.T, body string, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newService(url string, client *redis.Client, recorder Recorder) *Service {
	return NewService(Config{
		Fetcher:  NewClient(url, time.Second),
		Cache:    NewCache(client, time.Hour),
		Timeout:  time.Second,
		Recorder: recorder,
		Clock:    func() time.Time { return fixedNow },
	})
}

func TestFetchLiveThenCache(t *testing.T) {
	var hits atomic.Int32
	srv := upstream(t, `{"base":"USD","rates":{"USD":1,"GBP":0.8,"EUR":0.92,"KWD":-1}}`, http.StatusOK, &hits)
	mr, client := newRedis(t)
	counter := &sourceCounter{}
	svc := newService(srv.URL, client, counter)

	snap := svc.Fetch(context.Background())
	assert.Equal(t, SourceLive, snap.Source)
	require.NotNil(t, snap.Timestamp)
	assert.Equal(t, fixedNow, *snap.Timestamp)
	assert.Equal(t, 0.8, snap.Rates[currency.GBP])
	assert.Equal(t, 0.31, snap.Rates[currency.KWD], "invalid rates fall back")
	assert.NotContains(t, snap.Rates, "EUR", "only catalog codes are kept")
	assert.Len(t, snap.Rates, len(currency.Codes()))

	assert.True(t, mr.Exists("rates:usd"))
	assert.Equal(t, time.Hour, mr.TTL("rates:usd"))

	cached := svc.Fetch(context.Background())
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, 0.8, cached.Rates[currency.GBP])
	require.NotNil(t, cached.Timestamp)
	assert.True(t, fixedNow.Equal(*cached.Timestamp))
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, map[string]int{SourceLive: 1, SourceCache: 1}, counter.counts)
}

func TestFetchFallsBack(t *testing.T) {
	cases := map[string]*httptest.Server{
		"server error":  upstream(t, `{}`, http.StatusBadGateway, nil),
		"malformed":     upstream(t, `not json`, http.StatusOK, nil),
		"empty rates":   upstream(t, `{"rates":{}}`, http.StatusOK, nil),
		"missing rates": upstream(t, `{"result":"error"}`, http.StatusOK, nil),
	}
	for name, srv := range cases {
		t.Run(name, func(t *testing.T) {
			mr, client := newRedis(t)
			svc := newService(srv.URL, client, nil)

			snap := svc.Fetch(context.Background())
			assert.Equal(t, SourceFallback, snap.Source)
			assert.Nil(t, snap.Timestamp)
			assert.Equal(t, currency.FallbackRates(), snap.Rates)
			assert.False(t, mr.Exists("rates:usd"), "fallback is never cached")
		})
	}
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	svc := NewService(Config{
		Fetcher: NewClient(srv.URL, time.Minute),
		Timeout: 50 * time.Millisecond,
	})
	start := time.Now()
	snap := svc.Fetch(context.Background())
	assert.Equal(t, SourceFallback, snap.Source)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchWithoutRedisOrFetcher(t *testing.T) {
	svc := NewService(Config{})
	snap := svc.Fetch(context.Background())
	assert.Equal(t, SourceFallback, snap.Source)
	assert.Equal(t, currency.FallbackRates(), svc.Current(context.Background()))
}

func TestRefreshBypassesCache(t *testing.T) {
	var hits atomic.Int32
	srv := upstream(t, `{"rates":{"GBP":0.75}}`, http.StatusOK, &hits)
	_, client := newRedis(t)
	svc := newService(srv.URL, client, nil)

	require.Equal(t, SourceLive, svc.Fetch(context.Background()).Source)
	require.Equal(t, SourceCache, svc.Fetch(context.Background()).Source)

	snap := svc.Refresh(context.Background())
	assert.Equal(t, SourceLive, snap.Source)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCorruptCacheEntryIsAMiss(t *testing.T) {
	srv := upstream(t, `{"rates":{"GBP":0.7}}`, http.StatusOK, nil)
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("rates:usd", "{broken"))
	svc := newService(srv.URL, client, nil)

	snap := svc.Fetch(context.Background())
	assert.Equal(t, SourceLive, snap.Source)
	assert.Equal(t, 0.7, snap.Rates[currency.GBP])
}

func TestFetchReturnsIndependentTables(t *testing.T) {
	svc := NewService(Config{})
	first := svc.Fetch(context.Background())
	first.Rates[currency.GBP] = 99
	assert.Equal(t, 0.79, svc.Fetch(context.Background()).Rates[currency.GBP])
}

func TestConcurrentFetchesShareUpstreamCall(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		_, _ = w.Write([]byte(`{"rates":{"GBP":0.8}}`))
	}))
	t.Cleanup(srv.Close)
	svc := NewService(Config{Fetcher: NewClient(srv.URL, 5*time.Second), Timeout: 5 * time.Second})

	var wg sync.WaitGroup
	results := make([]Snapshot, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Fetch(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(2))
	for _, snap := range results {
		assert.Equal(t, SourceLive, snap.Source)
		assert.Equal(t, 0.8, snap.Rates[currency.GBP])
	}
}

func TestCancelledCallerDoesNotDowngradeSharedFetch(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		_, _ = w.Write([]byte(`{"rates":{"GBP":0.8}}`))
	}))
	t.Cleanup(srv.Close)
	svc := NewService(Config{Fetcher: NewClient(srv.URL, 5*time.Second), Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Snapshot, 1)
	go func() { first <- svc.Fetch(ctx) }()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	second := make(chan Snapshot, 1)
	go func() { second <- svc.Fetch(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.Equal(t, SourceFallback, (<-first).Source)

	close(gate)
	snap := <-second
	assert.Equal(t, SourceLive, snap.Source)
	assert.Equal(t, 0.8, snap.Rates[currency.GBP])
	assert.Equal(t, int32(1), hits.Load())
}
