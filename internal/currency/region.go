package currency

// Region identifiers.
const (
	RegionMalaysia    = "MALAYSIA"
	RegionSEA         = "SEA"
	RegionGulf        = "GULF"
	RegionCentralAsia = "CENTRAL_ASIA"
)

// Region pins a default quote currency and selects the rate-card pricing bucket.
type Region struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DefaultCurrency string   `json:"defaultCurrency"`
	Countries       []string `json:"countries"`
}

var regionOrder = []string{RegionMalaysia, RegionSEA, RegionGulf, RegionCentralAsia}

var regions = map[string]Region{
	RegionMalaysia: {
		ID:              RegionMalaysia,
		Name:            "Malaysia",
		DefaultCurrency: MYR,
		Countries:       []string{"Malaysia"},
	},
	RegionSEA: {
		ID:              RegionSEA,
		Name:            "Southeast Asia",
		DefaultCurrency: USD,
		Countries:       []string{"Singapore", "Indonesia", "Thailand", "Vietnam", "Philippines"},
	},
	RegionGulf: {
		ID:              RegionGulf,
		Name:            "Gulf States",
		DefaultCurrency: KWD,
		Countries:       []string{"UAE", "Kuwait", "Saudi Arabia", "Qatar", "Bahrain", "Oman"},
	},
	RegionCentralAsia: {
		ID:              RegionCentralAsia,
		Name:            "Central Asia",
		DefaultCurrency: USD,
		Countries:       []string{"Kazakhstan", "Uzbekistan", "Tajikistan"},
	},
}

// LookupRegion returns the region definition for id.
func LookupRegion(id string) (Region, bool) {
	r, ok := regions[id]
	if !ok {
		return Region{}, false
	}
	r.Countries = append([]string(nil), r.Countries...)
	return r, true
}

// RegionIDs lists region identifiers in display order.
func RegionIDs() []string {
	out := make([]string, len(regionOrder))
	copy(out, regionOrder)
	return out
}

// Regions returns every region in display order.
func Regions() []Region {
	out := make([]Region, 0, len(regionOrder))
	for _, id := range regionOrder {
		r, _ := LookupRegion(id)
		out = append(out, r)
	}
	return out
}

// RegionCurrency returns the default currency for a region, USD when unknown.
func RegionCurrency(id string) string {
	if r, ok := regions[id]; ok {
		return r.DefaultCurrency
	}
	return USD
}
