// Package ratecard manages the catalog of billable services and equipment
// with per-region cost and charge pricing.
package ratecard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tellquote/tellquote/internal/currency"
	"github.com/tellquote/tellquote/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("ratecard: item not found: %w", httpx.ErrNotFound)
	ErrInvalidRegion = fmt.Errorf("ratecard: unknown region: %w", httpx.ErrValidation)
	ErrInvalidItem   = fmt.Errorf("ratecard: invalid item: %w", httpx.ErrValidation)
	ErrInvalidImport = fmt.Errorf("ratecard: invalid import: %w", httpx.ErrValidation)
)

// Units an item can be billed by.
const (
	UnitDay     = "day"
	UnitItem    = "item"
	UnitProject = "project"
)

// DefaultSection holds items imported without a section.
const DefaultSection = "other"

// Money is an amount with the currency it was entered in.
type Money struct {
	Amount       float64 `json:"amount"`
	BaseCurrency string  `json:"baseCurrency,omitempty"`
}

// UnmarshalJSON accepts either {"amount":..,"baseCurrency":..} or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*m = Money{}
		return nil
	}
	if raw[0] != '{' {
		text := strings.Trim(string(raw), `"`)
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			v = 0
		}
		*m = Money{Amount: v}
		return nil
	}
	type alias Money
	var a alias
	if err := json.Unmarshal(raw, &a); err != nil {
		return err
	}
	*m = Money(a)
	return nil
}

// RegionPrice is the unit cost and charge of an item in one region.
type RegionPrice struct {
	Cost   Money `json:"cost"`
	Charge Money `json:"charge"`
}

// Pricing maps a region id to its price.
type Pricing map[string]RegionPrice

// EmptyPricing returns zero prices for every region.
func EmptyPricing() Pricing {
	out := make(Pricing, 4)
	for _, region := range currency.RegionIDs() {
		out[region] = RegionPrice{
			Cost:   Money{BaseCurrency: currency.RegionCurrency(region)},
			Charge: Money{BaseCurrency: currency.RegionCurrency(region)},
		}
	}
	return out
}

// Clone copies the pricing map.
func (p Pricing) Clone() Pricing {
	out := make(Pricing, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Item is a rate card entry.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Section     string    `json:"section"`
	Unit        string    `json:"unit"`
	Pricing     Pricing   `json:"pricing"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Price returns the item's pricing for region.
func (i Item) Price(region string) (RegionPrice, bool) {
	p, ok := i.Pricing[region]
	return p, ok
}

// SectionDef is a rate card grouping.
type SectionDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var defaultSections = []SectionDef{
	{ID: "prod_production", Name: "Production (Team)"},
	{ID: "prod_technical", Name: "Technical Crew"},
	{ID: "prod_management", Name: "Production Management"},
	{ID: "equip_video", Name: "Video Equipment"},
	{ID: "equip_audio", Name: "Audio Equipment"},
	{ID: "equip_cameras", Name: "Cameras"},
	{ID: "equip_graphics", Name: "Graphics Equipment"},
	{ID: "equip_vt", Name: "VT & Replay"},
	{ID: "equip_cabling", Name: "Cabling & Infrastructure"},
	{ID: "equip_other", Name: "Other Equipment"},
	{ID: "creative", Name: "Creative Services"},
	{ID: "logistics", Name: "Logistics"},
	{ID: "expenses", Name: "Expenses"},
}

// DefaultSections lists the built-in rate card sections.
func DefaultSections() []SectionDef {
	return append([]SectionDef(nil), defaultSections...)
}

func validateRegion(region string) error {
	if _, ok := currency.LookupRegion(region); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRegion, region)
	}
	return nil
}

func validUnit(unit string) bool {
	switch unit {
	case UnitDay, UnitItem, UnitProject:
		return true
	}
	return false
}

var errEmptyName = errors.New("name is required")
