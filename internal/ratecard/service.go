package ratecard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service implements rate card management on top of a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// AddInput describes a new item. Missing fields take defaults.
type AddInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Section     string  `json:"section" validate:"max=100"`
	Unit        string  `json:"unit" validate:"omitempty,oneof=day item project"`
	Pricing     Pricing `json:"pricing"`
}

// Add creates an item.
func (s *Service) Add(ctx context.Context, in AddInput) (Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidItem, errEmptyName)
	}
	now := s.now()
	item := Item{
		ID:          s.newID(),
		Name:        name,
		Description: in.Description,
		Section:     in.Section,
		Unit:        in.Unit,
		Pricing:     in.Pricing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	item, err := normalise(item)
	if err != nil {
		return Item{}, err
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// ItemPatch holds optional field updates.
type ItemPatch struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Section     *string `json:"section" validate:"omitempty,max=100"`
	Unit        *string `json:"unit" validate:"omitempty,oneof=day item project"`
}

// Update applies patch to an item.
func (s *Service) Update(ctx context.Context, id string, patch ItemPatch) (Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Item{}, fmt.Errorf("%w: %v", ErrInvalidItem, errEmptyName)
		}
		item.Name = name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Section != nil {
		item.Section = *patch.Section
	}
	if patch.Unit != nil {
		item.Unit = *patch.Unit
	}
	item.UpdatedAt = s.now()
	if item, err = normalise(item); err != nil {
		return Item{}, err
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// PricePatch updates one side of a regional price.
type PricePatch struct {
	Cost   *float64 `json:"cost" validate:"omitempty,gte=0"`
	Charge *float64 `json:"charge" validate:"omitempty,gte=0"`
}

// UpdatePricing merges patch into the item's pricing for region.
func (s *Service) UpdatePricing(ctx context.Context, id, region string, patch PricePatch) (Item, error) {
	if err := validateRegion(region); err != nil {
		return Item{}, err
	}
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item.Pricing == nil {
		item.Pricing = EmptyPricing()
	}
	price := item.Pricing[region]
	if patch.Cost != nil {
		price.Cost.Amount = *patch.Cost
	}
	if patch.Charge != nil {
		price.Charge.Amount = *patch.Charge
	}
	item.Pricing[region] = price
	item.UpdatedAt = s.now()
	if item, err = normalise(item); err != nil {
		return Item{}, err
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Get loads one item.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	return s.repo.Get(ctx, id)
}

// List returns every item.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// BySection returns the items filed under section.
func (s *Service) BySection(ctx context.Context, section string) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0)
	for _, item := range items {
		if item.Section == section {
			out = append(out, item)
		}
	}
	return out, nil
}

// Search matches query case-insensitively against name and description.
func (s *Service) Search(ctx context.Context, query string) ([]Item, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Item, 0)
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), q) || strings.Contains(strings.ToLower(item.Description), q) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Duplicate copies an item under a new id with a " (Copy)" suffix.
func (s *Service) Duplicate(ctx context.Context, id string) (Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return s.Add(ctx, AddInput{
		Name:        item.Name + " (Copy)",
		Description: item.Description,
		Section:     item.Section,
		Unit:        item.Unit,
		Pricing:     item.Pricing.Clone(),
	})
}

// normalise applies defaults and rejects unknown regions or units.
func normalise(item Item) (Item, error) {
	if item.Section == "" {
		item.Section = DefaultSection
	}
	if item.Unit == "" {
		item.Unit = UnitDay
	}
	if !validUnit(item.Unit) {
		return Item{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidItem, item.Unit)
	}
	pricing := EmptyPricing()
	for region, price := range item.Pricing {
		if err := validateRegion(region); err != nil {
			return Item{}, err
		}
		if price.Cost.Amount < 0 || price.Charge.Amount < 0 {
			return Item{}, fmt.Errorf("%w: negative price in %s", ErrInvalidItem, region)
		}
		if price.Cost.BaseCurrency == "" {
			price.Cost.BaseCurrency = pricing[region].Cost.BaseCurrency
		}
		if price.Charge.BaseCurrency == "" {
			price.Charge.BaseCurrency = pricing[region].Charge.BaseCurrency
		}
		pricing[region] = price
	}
	item.Pricing = pricing
	return item, nil
}
