package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/tellquote/tellquote/internal/quote"
)

// Fingerprint hashes the quote document. The library id is excluded so that
// adopting an id does not count as a change.
func Fingerprint(q *quote.Quote) [32]byte {
	doc := q.Clone()
	doc.ID = ""
	doc.SavedAt = nil
	raw, err := json.Marshal(doc)
	if err != nil {
		return [32]byte{}
	}
	return blake2b.Sum256(raw)
}

// DraftSource enumerates working drafts.
type DraftSource interface {
	Sessions(ctx context.Context) ([]string, error)
	Load(ctx context.Context, sessionID string) ([]byte, error)
}

// LibraryWriter upserts a quote into the library.
type LibraryWriter interface {
	Save(ctx context.Context, q *quote.Quote) (string, error)
}

// SyncResult counts what one pass did.
type SyncResult struct {
	Synced    int `json:"synced"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Syncer copies drafts into the library when their content changed since
// the last successful sync.
type Syncer struct {
	drafts  DraftSource
	library LibraryWriter
	logger  *slog.Logger

	mu   sync.Mutex
	last map[string][32]byte
}

// NewSyncer constructs a syncer.
func NewSyncer(drafts DraftSource, library LibraryWriter, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{drafts: drafts, library: library, logger: logger, last: make(map[string][32]byte)}
}

// Sync runs one pass over every draft. Individual failures are counted and
// logged; only listing the drafts can fail the pass.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result SyncResult
	sessions, err := s.drafts.Sessions(ctx)
	if err != nil {
		return result, err
	}
	for _, id := range sessions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		raw, err := s.drafts.Load(ctx, id)
		if err != nil {
			result.Failed++
			s.logger.Warn("load draft for sync", slog.String("session", id), slog.Any("error", err))
			continue
		}
		if raw == nil {
			result.Skipped++
			continue
		}
		q, err := quote.Decode(raw)
		if err != nil {
			result.Skipped++
			continue
		}
		fp := Fingerprint(q)
		if prev, ok := s.last[id]; ok && prev == fp {
			result.Unchanged++
			continue
		}
		if _, err := s.library.Save(ctx, q); err != nil {
			result.Failed++
			s.logger.Warn("sync quote", slog.String("session", id), slog.String("quote_number", q.QuoteNumber), slog.Any("error", err))
			continue
		}
		s.last[id] = fp
		result.Synced++
	}
	return result, nil
}
