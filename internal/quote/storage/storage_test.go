package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/quote"
)

var now = time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)

func newDrafts(t *testing.T) (*RedisDrafts, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDrafts(client, time.Hour), mr
}

func TestDraftRoundTrip(t *testing.T) {
	drafts, mr := newDrafts(t)
	ctx := context.Background()
	q := quote.New(now, quote.Defaults{})
	q.Client.Company = "Acme"

	require.NoError(t, drafts.Persister("s1").Save(ctx, q))
	assert.True(t, mr.Exists("quote:draft:s1"))
	assert.Equal(t, time.Hour, mr.TTL("quote:draft:s1"))

	raw, err := drafts.Load(ctx, "s1")
	require.NoError(t, err)
	loaded, err := quote.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Acme", loaded.Client.Company)
	assert.Equal(t, q.QuoteNumber, loaded.QuoteNumber)

	missing, err := drafts.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDraftSessionsPrunesExpired(t *testing.T) {
	drafts, mr := newDrafts(t)
	ctx := context.Background()
	require.NoError(t, drafts.Save(ctx, "b", quote.New(now, quote.Defaults{})))
	require.NoError(t, drafts.Save(ctx, "a", quote.New(now, quote.Defaults{})))
	mr.Del("quote:draft:b")

	ids, err := drafts.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	members, err := mr.Members("quote:drafts")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)

	require.NoError(t, drafts.Delete(ctx, "a"))
	ids, err = drafts.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

type failSRem struct{}

func (failSRem) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failSRem) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "srem" {
			err := errors.New("READONLY replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failSRem) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestDraftSessionsLogsPruneFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	client.AddHook(failSRem{})

	var logs bytes.Buffer
	drafts := NewRedisDrafts(client, time.Hour).WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	ctx := context.Background()
	require.NoError(t, drafts.Save(ctx, "gone", quote.New(now, quote.Defaults{})))
	mr.Del("quote:draft:gone")

	ids, err := drafts.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Contains(t, logs.String(), "prune draft index")
	assert.Contains(t, logs.String(), "session=gone")
}

func TestDraftSaveErrorKinds(t *testing.T) {
	drafts, mr := newDrafts(t)
	ctx := context.Background()

	bad := quote.New(now, quote.Defaults{})
	bad.Fees.Discount = math.NaN()
	err := drafts.Save(ctx, "s", bad)
	kind, ok := quote.SaveErrorKind(err)
	require.True(t, ok)
	assert.Equal(t, quote.SaveKindInvalid, kind)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	mr.SetError("OOM command not allowed when used memory > 'maxmemory'.")
	err = drafts.Save(ctx, "s", quote.New(now, quote.Defaults{}))
	kind, _ = quote.SaveErrorKind(err)
	assert.Equal(t, quote.SaveKindQuota, kind)
	assert.ErrorIs(t, err, httpx.ErrStorage)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	err = drafts.Save(ctx, "s", quote.New(now, quote.Defaults{}))
	kind, _ = quote.SaveErrorKind(err)
	assert.Equal(t, quote.SaveKindIO, kind)
}

func TestFingerprintIgnoresLibraryID(t *testing.T) {
	q := quote.New(now, quote.Defaults{})
	before := Fingerprint(q)
	q.ID = "lib-1"
	assert.Equal(t, before, Fingerprint(q))
	q.InternalNotes = "changed"
	assert.NotEqual(t, before, Fingerprint(q))
}

type fakeLibrary struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeLibrary) Save(_ context.Context, q *quote.Quote) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, q.QuoteNumber)
	return "id-" + q.QuoteNumber, nil
}

func TestSyncerSkipsUnchangedDrafts(t *testing.T) {
	drafts, mr := newDrafts(t)
	ctx := context.Background()
	lib := &fakeLibrary{}
	syncer := NewSyncer(drafts, lib, slog.New(slog.NewTextHandler(io.Discard, nil)))

	q := quote.New(now, quote.Defaults{})
	require.NoError(t, drafts.Save(ctx, "s1", q))
	require.NoError(t, mr.Set("quote:draft:broken", "{"))
	_, err := mr.SetAdd("quote:drafts", "broken")
	require.NoError(t, err)

	res, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 1, Skipped: 1}, res)

	res, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Unchanged: 1, Skipped: 1}, res)

	q.InternalNotes = "edited"
	require.NoError(t, drafts.Save(ctx, "s1", q))
	lib.err = errors.New("db down")
	res, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	lib.err = nil
	res, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Len(t, lib.saved, 2)
}
