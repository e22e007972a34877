package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/quote"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = fmt.Errorf("quote: session not found: %w", httpx.ErrNotFound)

// Drafts loads and stores the working copy of each session.
type Drafts interface {
	// Load returns the raw draft, or nil when the session has none.
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Persister(sessionID string) quote.Persister
}

// RegistryConfig configures NewRegistry.
type RegistryConfig struct {
	Drafts   Drafts
	RateCard RateCard
	Rates    RateSource
	Logger   *slog.Logger
	Clock    func() time.Time
	Defaults quote.Defaults
}

// Registry keeps one Store per editing session.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	cfg    RegistryConfig
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{stores: make(map[string]*Store), cfg: cfg}
}

// Create starts a new session with a fresh quote.
func (r *Registry) Create(ctx context.Context) (string, *Store, error) {
	id := uuid.NewString()
	store := r.newStore(id, nil)
	r.mu.Lock()
	r.stores[id] = store
	r.mu.Unlock()
	if err := store.Reset(ctx); err != nil {
		return id, store, err
	}
	return id, store, nil
}

// Open returns the live store for id, restoring it from its draft when the
// process has not seen it yet. A corrupt draft is replaced by a fresh quote.
func (r *Registry) Open(ctx context.Context, id string) (*Store, error) {
	r.mu.Lock()
	if store, ok := r.stores[id]; ok {
		r.mu.Unlock()
		return store, nil
	}
	r.mu.Unlock()

	if r.cfg.Drafts == nil {
		return nil, ErrSessionNotFound
	}
	raw, err := r.cfg.Drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrSessionNotFound
	}
	q, err := quote.DecodeOrNew(raw, r.now(), r.cfg.Defaults)
	if err != nil {
		r.cfg.Logger.Warn("discarding unreadable draft", slog.String("session", id), slog.Any("error", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[id]; ok {
		return store, nil
	}
	store := r.newStore(id, q)
	r.stores[id] = store
	return store, nil
}

// Close forgets a session. Its draft stays in the draft store.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.stores, id)
	return nil
}

// IDs lists the live sessions.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stores))
	for id := range r.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) newStore(id string, q *quote.Quote) *Store {
	var persister quote.Persister
	if r.cfg.Drafts != nil {
		persister = r.cfg.Drafts.Persister(id)
	}
	return NewStore(Config{
		Quote:     q,
		Persister: persister,
		RateCard:  r.cfg.RateCard,
		Rates:     r.cfg.Rates,
		Logger:    r.cfg.Logger.With(slog.String("session", id)),
		Clock:     r.cfg.Clock,
		Defaults:  r.cfg.Defaults,
	})
}

func (r *Registry) now() time.Time {
	if r.cfg.Clock != nil {
		return r.cfg.Clock()
	}
	return time.Now().UTC()
}

// IsSessionNotFound reports whether err means the session is unknown.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
