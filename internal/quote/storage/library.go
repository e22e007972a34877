package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tellquote/tellquote/internal/platform/httpx"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
)

// ErrQuoteNotFound is returned for an unknown library id.
var ErrQuoteNotFound = fmt.Errorf("quote/storage: quote not found: %w", httpx.ErrNotFound)

// Entry is a library listing row.
type Entry struct {
	ID          string       `json:"id"`
	QuoteNumber string       `json:"quoteNumber"`
	Status      quote.Status `json:"status"`
	Currency    string       `json:"currency"`
	Region      string       `json:"region"`
	Client      string       `json:"client"`
	TotalCharge float64      `json:"totalCharge"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// DB is the subset of *pgxpool.Pool the library uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Library stores saved quotes in the quotes table, one JSONB document per
// quote number.
type Library struct {
	pool  DB
	now   func() time.Time
	newID func() string
}

// NewLibrary constructs the pgx backed library.
func NewLibrary(pool DB) *Library {
	return &Library{
		pool:  pool,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Save upserts q by quote number and returns the library id. A quote
// without an id adopts the id of an existing row with the same number. A
// quote whose id belongs to a row filed under another number was renumbered
// and is saved as a new entry.
func (l *Library) Save(ctx context.Context, q *quote.Quote) (string, error) {
	if q == nil || q.QuoteNumber == "" {
		return "", fmt.Errorf("%w: quote number required", quote.ErrInvalidDocument)
	}
	id, err := l.resolveID(ctx, q)
	if err != nil {
		return "", quote.NewSaveError(quote.SaveKindIO, err)
	}
	doc := q.Clone()
	now := l.now()
	doc.SavedAt = &now
	doc.ID = ""
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", quote.NewSaveError(quote.SaveKindInvalid, err)
	}
	fp := Fingerprint(q)
	total := decimal.NewFromFloat(pricing.GrandTotalWithFees(q.Sections, q.Fees).TotalCharge).Round(2)

	var saved string
	err = l.pool.QueryRow(ctx, `INSERT INTO quotes (id, quote_number, status, currency, region, client, total_charge, document, fingerprint, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (quote_number) DO UPDATE SET status = EXCLUDED.status, currency = EXCLUDED.currency,
	region = EXCLUDED.region, client = EXCLUDED.client, total_charge = EXCLUDED.total_charge,
	document = EXCLUDED.document, fingerprint = EXCLUDED.fingerprint, updated_at = EXCLUDED.updated_at
RETURNING id`,
		id, q.QuoteNumber, string(statusOrDraft(q.Status)), q.Currency, q.Region, q.Client.Company,
		total.InexactFloat64(), raw, fp[:], now).Scan(&saved)
	if err != nil {
		return "", quote.NewSaveError(quote.SaveKindIO, fmt.Errorf("quote/storage: save %s: %w", q.QuoteNumber, err))
	}
	return saved, nil
}

func (l *Library) resolveID(ctx context.Context, q *quote.Quote) (string, error) {
	if q.ID == "" {
		return l.newID(), nil
	}
	var number string
	err := l.pool.QueryRow(ctx, `SELECT quote_number FROM quotes WHERE id = $1`, q.ID).Scan(&number)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return q.ID, nil
	case err != nil:
		return "", fmt.Errorf("quote/storage: resolve id %s: %w", q.ID, err)
	case number != q.QuoteNumber:
		return l.newID(), nil
	default:
		return q.ID, nil
	}
}

// Get loads a saved quote.
func (l *Library) Get(ctx context.Context, id string) (*quote.Quote, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT document FROM quotes WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quote/storage: get %s: %w", id, err)
	}
	q, err := quote.Decode(raw)
	if err != nil {
		return nil, err
	}
	q.ID = id
	return q, nil
}

// List returns library entries, newest first. An empty status lists all.
func (l *Library) List(ctx context.Context, status quote.Status) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, quote_number, status, currency, region, client, total_charge::float8, updated_at
FROM quotes WHERE ($1 = '' OR status = $1) ORDER BY updated_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("quote/storage: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var st string
		err := row.Scan(&e.ID, &e.QuoteNumber, &st, &e.Currency, &e.Region, &e.Client, &e.TotalCharge, &e.UpdatedAt)
		e.Status = quote.Status(st)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("quote/storage: list: %w", err)
	}
	return entries, nil
}

// All loads every saved document for reporting.
func (l *Library) All(ctx context.Context) ([]*quote.Quote, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, document FROM quotes ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("quote/storage: load all: %w", err)
	}
	defer rows.Close()
	var out []*quote.Quote
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("quote/storage: load all: %w", err)
		}
		q, err := quote.Decode(raw)
		if err != nil {
			continue
		}
		q.ID = id
		out = append(out, q)
	}
	return out, rows.Err()
}

// Delete removes a saved quote.
func (l *Library) Delete(ctx context.Context, id string) error {
	tag, err := l.pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("quote/storage: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

func statusOrDraft(s quote.Status) quote.Status {
	if s == "" {
		return quote.StatusDraft
	}
	return s
}
