package currency

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

type formatConfig struct {
	symbol   bool
	decimals int
}

// FormatOption tweaks Format output.
type FormatOption func(*formatConfig)

// WithoutSymbol omits the currency symbol.
func WithoutSymbol() FormatOption {
	return func(c *formatConfig) { c.symbol = false }
}

// WithDecimals sets the number of fraction digits. IDR always renders without decimals.
func WithDecimals(n int) FormatOption {
	return func(c *formatConfig) {
		if n >= 0 {
			c.decimals = n
		}
	}
}

// Format renders amount with the currency symbol and en-US digit grouping.
// Unknown codes render as a plain fixed-point number.
func Format(amount float64, code string, opts ...FormatOption) string {
	cfg := formatConfig{symbol: true, decimals: 2}
	for _, opt := range opts {
		opt(&cfg)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	c, ok := catalog[code]
	if !ok {
		return strconv.FormatFloat(amount, 'f', cfg.decimals, 64)
	}
	decimals := cfg.decimals
	if code == IDR {
		decimals = 0
	}
	formatted := printer.Sprint(number.Decimal(amount,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals),
	))
	if cfg.symbol {
		return c.Symbol + formatted
	}
	return formatted
}
