package ratecard

import (
	"time"

	"github.com/tellquote/tellquote/internal/currency"
)

// DefaultMarkup is the charge multiplier applied by CreatePricing.
const DefaultMarkup = 1.5

var regionMultipliers = map[string]float64{
	currency.RegionMalaysia:    0.85,
	currency.RegionSEA:         1,
	currency.RegionGulf:        1.2,
	currency.RegionCentralAsia: 1.1,
}

// CreatePricing derives regional USD pricing from a base USD cost. A markup
// of zero or less uses DefaultMarkup.
func CreatePricing(usdCost, markup float64) Pricing {
	if markup <= 0 {
		markup = DefaultMarkup
	}
	out := make(Pricing, len(regionMultipliers))
	for region, mult := range regionMultipliers {
		cost := usdCost * mult
		out[region] = RegionPrice{
			Cost:   Money{Amount: cost, BaseCurrency: currency.USD},
			Charge: Money{Amount: cost * markup, BaseCurrency: currency.USD},
		}
	}
	return out
}

type seedEntry struct {
	name, description, section string
	usd                        float64
}

var seedEntries = []seedEntry{
	{"Project Manager", "Remote project management", "prod_management", 300},
	{"Technical Project Manager", "Remote technical project management", "prod_management", 300},
	{"Consultant - TE", "Technical engineering consultant", "prod_management", 500},
	{"Graphics System - VMix", "VMix graphics system package", "equip_graphics", 33.80},
	{"Graphics Design", "Graphics design services", "creative", 150},
	{"Graphics Operator", "Graphics operator", "prod_technical", 100},
	{"Technical Director - Int", "International technical director", "prod_production", 450},
	{"Producer - Int On Site", "International producer on site", "prod_production", 500},
	{"Sound Engineer - SEA", "Regional sound engineer", "prod_technical", 350},
	{"Camera Operator - SEA", "Regional camera operator", "prod_technical", 250},
	{"Wireless Camera System", "Wireless camera transmission kit", "equip_cameras", 250},
	{"Comms", "Talkback and intercom package", "equip_audio", 250},
}

// SeedItems returns the starter rate card. Ids are derived from position so
// repeated seeding is idempotent.
func SeedItems(now time.Time) []Item {
	items := make([]Item, 0, len(seedEntries))
	for i, entry := range seedEntries {
		items = append(items, Item{
			ID:          seedID(i),
			Name:        entry.name,
			Description: entry.description,
			Section:     entry.section,
			Unit:        UnitDay,
			Pricing:     CreatePricing(entry.usd, DefaultMarkup),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return items
}

func seedID(i int) string {
	const digits = "0123456789"
	return "seed-" + string(digits[i/10%10]) + string(digits[i%10])
}
