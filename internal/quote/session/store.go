// Package session holds the editable state of one quote. A Store applies
// mutations under a mutex, persists after each one and memoises totals by
// version.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/pricing"
	"github.com/tellquote/tellquote/internal/quote"
	"github.com/tellquote/tellquote/internal/ratecard"
)

// RateCard provides the rate card snapshot used when a quote changes region.
type RateCard interface {
	Lookup(ctx context.Context) (ratecard.Lookup, error)
}

// RateSource provides the conversion table used when a quote changes currency.
type RateSource interface {
	Current(ctx context.Context) currency.Rates
}

// Config configures NewStore. Only Quote or Defaults is needed; everything
// else has a usable zero value.
type Config struct {
	Quote     *quote.Quote
	Persister quote.Persister
	RateCard  RateCard
	Rates     RateSource
	Logger    *slog.Logger
	Clock     func() time.Time
	Defaults  quote.Defaults
}

// Store owns one quote being edited.
type Store struct {
	mu        sync.Mutex
	q         *quote.Quote
	version   uint64
	summary   *Summary
	persister quote.Persister
	rateCard  RateCard
	rates     RateSource
	logger    *slog.Logger
	now       func() time.Time
	defaults  quote.Defaults
}

// NewStore builds a store around cfg.Quote, or a fresh quote when nil.
func NewStore(cfg Config) *Store {
	s := &Store{
		persister: cfg.Persister,
		rateCard:  cfg.RateCard,
		rates:     cfg.Rates,
		logger:    cfg.Logger,
		now:       cfg.Clock,
		defaults:  cfg.Defaults,
	}
	if s.persister == nil {
		s.persister = quote.Discard
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Quote != nil {
		s.q = cfg.Quote.Clone()
		quote.EnsureSchema(s.q)
	} else {
		s.q = quote.New(s.now(), s.defaults)
	}
	return s
}

// Snapshot returns a copy of the current quote.
func (s *Store) Snapshot() *quote.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Clone()
}

// Version increases by one with every committed mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Summary is the derived pricing of a quote at one version.
type Summary struct {
	Version   uint64                    `json:"version"`
	Totals    pricing.FeeTotals         `json:"totals"`
	Sections  map[string]pricing.Totals `json:"sections"`
	ItemCount int                       `json:"itemCount"`
}

// Summary computes totals once per version.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil || s.summary.Version != s.version {
		s.summary = &Summary{
			Version:   s.version,
			Totals:    pricing.GrandTotalWithFees(s.q.Sections, s.q.Fees),
			Sections:  pricing.SectionTotals(s.q.Sections),
			ItemCount: pricing.CountItems(s.q.Sections),
		}
	}
	out := *s.summary
	out.Sections = make(map[string]pricing.Totals, len(s.summary.Sections))
	for id, t := range s.summary.Sections {
		out.Sections[id] = t
	}
	return out
}

// Totals returns the fee-adjusted grand total.
func (s *Store) Totals() pricing.FeeTotals {
	return s.Summary().Totals
}

// mutate applies fn and commits when fn reports a change.
func (s *Store) mutate(ctx context.Context, fn func(q *quote.Quote) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := fn(s.q)
	if err != nil || !changed {
		return err
	}
	return s.commitLocked(ctx)
}

// commitLocked stamps, versions and persists the quote. The in-memory change
// stands even when persistence fails.
func (s *Store) commitLocked(ctx context.Context) error {
	s.q.UpdatedAt = s.now()
	s.version++
	if err := s.persister.Save(ctx, s.q.Clone()); err != nil {
		if _, ok := quote.SaveErrorKind(err); !ok {
			err = quote.NewSaveError(quote.SaveKindIO, err)
		}
		s.logger.Warn("persist quote",
			slog.String("quote_number", s.q.QuoteNumber),
			slog.Uint64("version", s.version),
			slog.Any("error", err))
		return err
	}
	return nil
}

func findSection(q *quote.Quote, id string) (*quote.Section, error) {
	section := q.Sections[id]
	if section == nil {
		return nil, fmt.Errorf("%w: %s", quote.ErrSectionNotFound, id)
	}
	return section, nil
}

func findSubsection(q *quote.Quote, sectionID, sub string) (*quote.Section, []quote.LineItem, error) {
	section, err := findSection(q, sectionID)
	if err != nil {
		return nil, nil, err
	}
	items, ok := section.Subsections[sub]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", quote.ErrSubsectionNotFound, sectionID, sub)
	}
	return section, items, nil
}

func itemIndex(items []quote.LineItem, id string) int {
	return slices.IndexFunc(items, func(item quote.LineItem) bool { return item.ID == id })
}

func newItemID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

func positiveOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fallback
	}
	return v
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// AddLineItem appends item to a subsection. A missing id is generated and
// quantity and days default to 1.
func (s *Store) AddLineItem(ctx context.Context, sectionID, sub string, item quote.LineItem) (quote.LineItem, error) {
	var added quote.LineItem
	err := s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, items, err := findSubsection(q, sectionID, sub)
		if err != nil {
			return false, err
		}
		if item.ID == "" || itemIndex(items, item.ID) >= 0 {
			item.ID = newItemID(s.now())
		}
		item.Quantity = positiveOr(item.Quantity, 1)
		item.Days = positiveOr(item.Days, 1)
		item.Cost = finiteOr(item.Cost, 0)
		item.Charge = finiteOr(item.Charge, 0)
		section.Subsections[sub] = append(items, item)
		added = item
		return true, nil
	})
	return added, err
}

// ItemPatch holds optional line item field updates.
type ItemPatch struct {
	Name           *string  `json:"name" validate:"omitempty,max=200"`
	Description    *string  `json:"description" validate:"omitempty,max=2000"`
	Quantity       *float64 `json:"quantity" validate:"omitempty,gt=0"`
	Days           *float64 `json:"days" validate:"omitempty,gt=0"`
	Cost           *float64 `json:"cost" validate:"omitempty,gte=0"`
	Charge         *float64 `json:"charge" validate:"omitempty,gte=0"`
	Unit           *string  `json:"unit" validate:"omitempty,max=20"`
	RateCardItemID *string  `json:"rateCardItemId"`
	IsPercentage   *bool    `json:"isPercentage"`
	PercentValue   *float64 `json:"percentValue" validate:"omitempty,gte=0,lte=100"`
}

func (p ItemPatch) apply(item *quote.LineItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Days != nil {
		item.Days = *p.Days
	}
	if p.Cost != nil {
		item.Cost = *p.Cost
	}
	if p.Charge != nil {
		item.Charge = *p.Charge
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.RateCardItemID != nil {
		item.RateCardItemID = *p.RateCardItemID
	}
	if p.IsPercentage != nil {
		item.IsPercentage = *p.IsPercentage
	}
	if p.PercentValue != nil {
		item.PercentValue = *p.PercentValue
	}
}

// UpdateLineItem shallow-merges patch into an item.
func (s *Store) UpdateLineItem(ctx context.Context, sectionID, sub, itemID string, patch ItemPatch) (quote.LineItem, error) {
	var updated quote.LineItem
	err := s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		_, items, err := findSubsection(q, sectionID, sub)
		if err != nil {
			return false, err
		}
		i := itemIndex(items, itemID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", quote.ErrItemNotFound, itemID)
		}
		patch.apply(&items[i])
		updated = items[i]
		return true, nil
	})
	return updated, err
}

// DeleteLineItem removes an item.
func (s *Store) DeleteLineItem(ctx context.Context, sectionID, sub, itemID string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		section, items, err := findSubsection(q, sectionID, sub)
		if err != nil {
			return false, err
		}
		i := itemIndex(items, itemID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", quote.ErrItemNotFound, itemID)
		}
		section.Subsections[sub] = slices.Delete(items, i, i+1)
		return true, nil
	})
}

// MoveLineItem relocates an item to the end of another subsection, keeping
// its id.
func (s *Store) MoveLineItem(ctx context.Context, srcSection, srcSub, itemID, dstSection, dstSub string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		source, items, err := findSubsection(q, srcSection, srcSub)
		if err != nil {
			return false, err
		}
		i := itemIndex(items, itemID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", quote.ErrItemNotFound, itemID)
		}
		target, _, err := findSubsection(q, dstSection, dstSub)
		if err != nil {
			return false, err
		}
		item := items[i]
		source.Subsections[srcSub] = slices.Delete(items, i, i+1)
		target.Subsections[dstSub] = append(target.Subsections[dstSub], item)
		return true, nil
	})
}

// SetRegion switches region and the region's default currency, then
// re-prices linked items from the rate card. Items are matched by
// rateCardItemId first and by exact name otherwise; a name match links the
// item. Unmatched items keep their prices.
func (s *Store) SetRegion(ctx context.Context, region string) error {
	if _, ok := currency.LookupRegion(region); !ok {
		return fmt.Errorf("%w: %q", quote.ErrInvalidRegion, region)
	}
	var lookup ratecard.Lookup
	if s.rateCard != nil {
		var err error
		if lookup, err = s.rateCard.Lookup(ctx); err != nil {
			return fmt.Errorf("quote: load rate card: %w", err)
		}
	}
	rates := s.currentRates(ctx)
	code := currency.RegionCurrency(region)

	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.Region = region
		q.Currency = code
		if lookup == nil {
			return true, nil
		}
		relinked := 0
		q.EachItem(func(_, _ string, item *quote.LineItem) bool {
			if item.IsPercentage {
				return true
			}
			rc, ok := lookup.ByID(item.RateCardItemID)
			if !ok {
				if rc, ok = lookup.ByName(item.Name); !ok {
					return true
				}
			}
			price, ok := rc.Price(region)
			if !ok {
				return true
			}
			item.RateCardItemID = rc.ID
			item.Cost = priceIn(price.Cost, code, rates)
			item.Charge = priceIn(price.Charge, code, rates)
			relinked++
			return true
		})
		s.logger.Debug("quote region changed", slog.String("region", region), slog.Int("repriced", relinked))
		return true, nil
	})
}

func priceIn(m ratecard.Money, code string, rates currency.Rates) float64 {
	if m.BaseCurrency == "" || m.BaseCurrency == code {
		return m.Amount
	}
	return currency.RoundCents(currency.Convert(m.Amount, m.BaseCurrency, code, rates))
}

func (s *Store) currentRates(ctx context.Context) currency.Rates {
	if s.rates == nil {
		return currency.FallbackRates()
	}
	return s.rates.Current(ctx)
}

// FeesPatch holds optional fee updates.
type FeesPatch struct {
	ManagementFee  *float64 `json:"managementFee"`
	CommissionFee  *float64 `json:"commissionFee"`
	Discount       *float64 `json:"discount"`
	DistributeFees *bool    `json:"distributeFees"`
}

// SetFees merges patch into the quote's fees and clamps every percentage
// into [0, 100].
func (s *Store) SetFees(ctx context.Context, patch FeesPatch) (quote.Fees, error) {
	var fees quote.Fees
	err := s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if patch.ManagementFee != nil {
			q.Fees.ManagementFee = *patch.ManagementFee
		}
		if patch.CommissionFee != nil {
			q.Fees.CommissionFee = *patch.CommissionFee
		}
		if patch.Discount != nil {
			q.Fees.Discount = *patch.Discount
		}
		if patch.DistributeFees != nil {
			q.Fees.DistributeFees = *patch.DistributeFees
		}
		q.Fees = pricing.ClampFees(q.Fees)
		fees = q.Fees
		return true, nil
	})
	return fees, err
}

// SetCurrency converts every item's cost and charge into code, rounded to
// cents. Setting the current currency is a no-op.
func (s *Store) SetCurrency(ctx context.Context, code string) error {
	if !currency.Supported(code) {
		return fmt.Errorf("%w: %q", quote.ErrInvalidCurrency, code)
	}
	rates := s.currentRates(ctx)
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		from := q.Currency
		if from == code {
			return false, nil
		}
		q.EachItem(func(_, _ string, item *quote.LineItem) bool {
			item.Cost = currency.RoundCents(currency.Convert(item.Cost, from, code, rates))
			item.Charge = currency.RoundCents(currency.Convert(item.Charge, from, code, rates))
			return true
		})
		q.Currency = code
		return true, nil
	})
}

// SetQuoteNumber replaces the quote number.
func (s *Store) SetQuoteNumber(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return fmt.Errorf("%w: empty quote number", quote.ErrInvalidDocument)
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.QuoteNumber = number
		return true, nil
	})
}

// SetQuoteDate sets the issue date (YYYY-MM-DD).
func (s *Store) SetQuoteDate(ctx context.Context, date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("%w: quote date %q", quote.ErrInvalidDocument, date)
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.QuoteDate = date
		return true, nil
	})
}

// SetValidityDays sets how long the quote stays valid.
func (s *Store) SetValidityDays(ctx context.Context, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: validity days must be positive", quote.ErrInvalidDocument)
	}
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.ValidityDays = days
		return true, nil
	})
}

// ClientPatch holds optional client updates.
type ClientPatch struct {
	Company   *string `json:"company" validate:"omitempty,max=200"`
	ContactID *string `json:"contactId"`
	Contact   *string `json:"contact" validate:"omitempty,max=200"`
	Role      *string `json:"role" validate:"omitempty,max=200"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=50"`
	Notes     *string `json:"notes"`
}

// SetClientDetails merges patch into the client block.
func (s *Store) SetClientDetails(ctx context.Context, patch ClientPatch) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		c := &q.Client
		setString(&c.Company, patch.Company)
		setString(&c.Contact, patch.Contact)
		setString(&c.Role, patch.Role)
		setString(&c.Email, patch.Email)
		setString(&c.Phone, patch.Phone)
		setString(&c.Notes, patch.Notes)
		if patch.ContactID != nil {
			if *patch.ContactID == "" {
				c.ContactID = nil
			} else {
				id := *patch.ContactID
				c.ContactID = &id
			}
		}
		return true, nil
	})
}

// ProjectPatch holds optional project updates.
type ProjectPatch struct {
	Title       *string `json:"title" validate:"omitempty,max=300"`
	Type        *string `json:"type" validate:"omitempty,max=50"`
	Venue       *string `json:"venue" validate:"omitempty,max=300"`
	StartDate   *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Description *string `json:"description"`
}

// SetProjectDetails merges patch into the project block.
func (s *Store) SetProjectDetails(ctx context.Context, patch ProjectPatch) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		p := &q.Project
		setString(&p.Title, patch.Title)
		setString(&p.Type, patch.Type)
		setString(&p.Venue, patch.Venue)
		setString(&p.StartDate, patch.StartDate)
		setString(&p.EndDate, patch.EndDate)
		setString(&p.Description, patch.Description)
		return true, nil
	})
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// SetPreparedBy records who prepared the quote.
func (s *Store) SetPreparedBy(ctx context.Context, userID string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		q.PreparedBy = userID
		return true, nil
	})
}

// SetID records the library id assigned on first save.
func (s *Store) SetID(ctx context.Context, id string) error {
	return s.mutate(ctx, func(q *quote.Quote) (bool, error) {
		if q.ID == id {
			return false, nil
		}
		q.ID = id
		return true, nil
	})
}
