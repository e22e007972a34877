package currency

import (
	"log/slog"
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// UnknownObserver is notified whenever a conversion falls back to USD parity
// because a code is missing from both the supplied and the fallback tables.
type UnknownObserver func(code string)

var (
	observerMu      sync.RWMutex
	unknownObserver UnknownObserver
	warnedCodes     sync.Map
)

// SetUnknownObserver installs fn as the unknown-code hook. Passing nil removes it.
func SetUnknownObserver(fn UnknownObserver) {
	observerMu.Lock()
	unknownObserver = fn
	observerMu.Unlock()
}

// Convert maps amount from one currency to another through USD cross-rates.
// Equal currencies and a zero amount short-circuit. Unknown codes convert at
// USD parity instead of failing.
func Convert(amount float64, from, to string, rates Rates) float64 {
	if from == to || amount == 0 {
		return amount
	}
	usd := amount / Rate(from, rates)
	return usd * Rate(to, rates)
}

// ConvertToUSD converts amount expressed in code into USD.
func ConvertToUSD(amount float64, code string, rates Rates) float64 {
	return Convert(amount, code, USD, rates)
}

// ConvertFromUSD converts a USD amount into code.
func ConvertFromUSD(amount float64, code string, rates Rates) float64 {
	return Convert(amount, USD, code, rates)
}

// Rate resolves the USD rate for code: supplied table, then fallback table, then 1.
func Rate(code string, rates Rates) float64 {
	if rate, ok := rates[code]; ok && validRate(rate) {
		return rate
	}
	if rate, ok := fallbackRates[code]; ok {
		return rate
	}
	reportUnknown(code)
	return 1
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

func reportUnknown(code string) {
	if _, seen := warnedCodes.LoadOrStore(code, struct{}{}); !seen {
		slog.Default().Warn("unknown currency code, converting at USD parity", slog.String("code", code))
	}
	observerMu.RLock()
	fn := unknownObserver
	observerMu.RUnlock()
	if fn != nil {
		fn(code)
	}
}
