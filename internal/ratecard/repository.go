package ratecard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tellquote/tellquote/internal/platform/db"
)

// Repository persists rate card items.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Upsert(ctx context.Context, items ...Item) error
	Delete(ctx context.Context, id string) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository stores items in the rate_card_items table.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewPostgresRepository constructs a pgx backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

const selectItems = `SELECT id, name, description, section, unit, pricing, created_at, updated_at FROM rate_card_items`

// List returns every item ordered by section then name.
func (r *PostgresRepository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, selectItems+` ORDER BY section, name`)
	if err != nil {
		return nil, fmt.Errorf("ratecard: list: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ratecard: list: %w", err)
	}
	return items, nil
}

// Get loads a single item.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx, selectItems+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// Upsert inserts or replaces items inside one transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, item := range items {
			pricing, err := json.Marshal(item.Pricing)
			if err != nil {
				return fmt.Errorf("ratecard: encode pricing: %w", err)
			}
			batch.Queue(`INSERT INTO rate_card_items (id, name, description, section, unit, pricing, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
	section = EXCLUDED.section, unit = EXCLUDED.unit, pricing = EXCLUDED.pricing, updated_at = EXCLUDED.updated_at`,
				item.ID, item.Name, item.Description, item.Section, item.Unit, pricing, item.CreatedAt, item.UpdatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("ratecard: upsert: %w", err)
		}
		return nil
	})
}

// Delete removes an item.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_card_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ratecard: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item    Item
		pricing []byte
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Section, &item.Unit, &pricing, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	item.Pricing = Pricing{}
	if len(pricing) > 0 {
		if err := json.Unmarshal(pricing, &item.Pricing); err != nil {
			return Item{}, fmt.Errorf("ratecard: decode pricing for %s: %w", item.ID, err)
		}
	}
	return item, nil
}

// MemoryRepository keeps items in process. Used by tests and CLI dry runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryRepository seeds a repository with items.
func NewMemoryRepository(items ...Item) *MemoryRepository {
	repo := &MemoryRepository{items: make(map[string]Item, len(items))}
	for _, item := range items {
		repo.items[item.ID] = cloneItem(item)
	}
	return repo
}

// List returns items ordered by section then name.
func (m *MemoryRepository) List(ctx context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Section == out[j].Section {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
		return out[i].Section < out[j].Section
	})
	return out, nil
}

// Get loads one item.
func (m *MemoryRepository) Get(ctx context.Context, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return cloneItem(item), nil
}

// Upsert stores items by id.
func (m *MemoryRepository) Upsert(ctx context.Context, items ...Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if existing, ok := m.items[item.ID]; ok && !existing.CreatedAt.IsZero() {
			item.CreatedAt = existing.CreatedAt
		}
		m.items[item.ID] = cloneItem(item)
	}
	return nil
}

// Delete removes an item.
func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func cloneItem(item Item) Item {
	item.Pricing = item.Pricing.Clone()
	return item
}
