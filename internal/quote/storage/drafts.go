// Package storage persists quotes: working drafts in Redis and the saved
// library in PostgreSQL, with a syncer that copies changed drafts across.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tellquote/tellquote/internal/quote"
)

const (
	draftKeyPrefix = "quote:draft:"
	draftIndexKey  = "quote:drafts"
)

// DefaultDraftTTL keeps an idle draft for a month.
const DefaultDraftTTL = 30 * 24 * time.Hour

// RedisDrafts stores one JSON draft per editing session.
type RedisDrafts struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisDrafts constructs the draft store. ttl <= 0 uses DefaultDraftTTL.
func NewRedisDrafts(client *redis.Client, ttl time.Duration) *RedisDrafts {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &RedisDrafts{client: client, ttl: ttl, logger: slog.Default()}
}

// WithLogger sets the logger used for index maintenance warnings.
func (d *RedisDrafts) WithLogger(logger *slog.Logger) *RedisDrafts {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func draftKey(sessionID string) string {
	return draftKeyPrefix + sessionID
}

// Load returns the raw draft or nil when the session has none.
func (d *RedisDrafts) Load(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := d.client.Get(ctx, draftKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quote/storage: load draft: %w", err)
	}
	return raw, nil
}

// Save writes the draft and indexes the session.
func (d *RedisDrafts) Save(ctx context.Context, sessionID string, q *quote.Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return quote.NewSaveError(quote.SaveKindInvalid, err)
	}
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, draftKey(sessionID), raw, d.ttl)
		pipe.SAdd(ctx, draftIndexKey, sessionID)
		return nil
	})
	if err != nil {
		return quote.NewSaveError(classify(err), err)
	}
	return nil
}

// Persister binds Save to one session.
func (d *RedisDrafts) Persister(sessionID string) quote.Persister {
	return quote.PersisterFunc(func(ctx context.Context, q *quote.Quote) error {
		return d.Save(ctx, sessionID, q)
	})
}

// Sessions lists sessions with a live draft. Expired drafts are pruned from
// the index on the way.
func (d *RedisDrafts) Sessions(ctx context.Context) ([]string, error) {
	ids, err := d.client.SMembers(ctx, draftIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("quote/storage: list drafts: %w", err)
	}
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := d.client.Exists(ctx, draftKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("quote/storage: list drafts: %w", err)
		}
		if n == 0 {
			if err := d.client.SRem(ctx, draftIndexKey, id).Err(); err != nil {
				d.logger.Warn("prune draft index", slog.String("session", id), slog.Any("error", err))
			}
			continue
		}
		live = append(live, id)
	}
	sort.Strings(live)
	return live, nil
}

// Delete drops a session's draft.
func (d *RedisDrafts) Delete(ctx context.Context, sessionID string) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, draftKey(sessionID))
		pipe.SRem(ctx, draftIndexKey, sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("quote/storage: delete draft: %w", err)
	}
	return nil
}

// classify maps a Redis write failure onto a save kind. Redis refuses
// writes past maxmemory with an OOM error.
func classify(err error) quote.SaveKind {
	if strings.Contains(err.Error(), "OOM ") {
		return quote.SaveKindQuota
	}
	return quote.SaveKindIO
}
