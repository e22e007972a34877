// Package currency holds the currency catalog, the pricing regions and the
// USD cross-rate conversion used to price quotes.
package currency

import "sort"

// Supported currency codes.
const (
	USD = "USD"
	GBP = "GBP"
	MYR = "MYR"
	IDR = "IDR"
	KWD = "KWD"
	AED = "AED"
	SGD = "SGD"
	THB = "THB"
	QAR = "QAR"
	SAR = "SAR"
)

// Currency describes a currency the quote editor can display.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

var catalog = map[string]Currency{
	USD: {Code: USD, Symbol: "$", Name: "US Dollar"},
	GBP: {Code: GBP, Symbol: "£", Name: "British Pound"},
	MYR: {Code: MYR, Symbol: "RM", Name: "Malaysian Ringgit"},
	IDR: {Code: IDR, Symbol: "Rp", Name: "Indonesian Rupiah"},
	KWD: {Code: KWD, Symbol: "KD", Name: "Kuwaiti Dinar"},
	AED: {Code: AED, Symbol: "د.إ", Name: "UAE Dirham"},
	SGD: {Code: SGD, Symbol: "S$", Name: "Singapore Dollar"},
	THB: {Code: THB, Symbol: "฿", Name: "Thai Baht"},
	QAR: {Code: QAR, Symbol: "QR", Name: "Qatari Riyal"},
	SAR: {Code: SAR, Symbol: "SR", Name: "Saudi Riyal"},
}

var codes = []string{USD, GBP, MYR, IDR, KWD, AED, SGD, THB, QAR, SAR}

// fallbackRates are USD-denominated and must cover every catalog code.
var fallbackRates = Rates{
	USD: 1,
	GBP: 0.79,
	MYR: 4.47,
	IDR: 15850,
	KWD: 0.31,
	AED: 3.67,
	SGD: 1.34,
	THB: 34.50,
	QAR: 3.64,
	SAR: 3.75,
}

// Lookup returns the catalog entry for code.
func Lookup(code string) (Currency, bool) {
	c, ok := catalog[code]
	return c, ok
}

// Supported reports whether code is part of the catalog.
func Supported(code string) bool {
	_, ok := catalog[code]
	return ok
}

// Codes lists the catalog codes in display order.
func Codes() []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

// All returns the catalog in display order.
func All() []Currency {
	out := make([]Currency, 0, len(codes))
	for _, code := range codes {
		out = append(out, catalog[code])
	}
	return out
}

// Symbol returns the display symbol for code, or the code itself when unknown.
func Symbol(code string) string {
	if c, ok := catalog[code]; ok {
		return c.Symbol
	}
	return code
}

// Rates maps a currency code to its rate relative to USD (USD = 1).
type Rates map[string]float64

// FallbackRates returns a copy of the static rate table.
func FallbackRates() Rates {
	return fallbackRates.Clone()
}

// Clone copies the table.
func (r Rates) Clone() Rates {
	out := make(Rates, len(r))
	for code, rate := range r {
		out[code] = rate
	}
	return out
}

// Complete returns a copy restricted to catalog codes, filling codes that are
// missing or non-positive from the fallback table.
func (r Rates) Complete() Rates {
	out := make(Rates, len(codes))
	for _, code := range codes {
		if rate, ok := r[code]; ok && validRate(rate) {
			out[code] = rate
			continue
		}
		out[code] = fallbackRates[code]
	}
	return out
}

// SortedCodes lists the codes present in the table alphabetically.
func (r Rates) SortedCodes() []string {
	out := make([]string, 0, len(r))
	for code := range r {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
