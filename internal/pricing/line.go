// Package pricing derives totals, margins and fee adjustments from a quote
// document. Every function is pure and tolerates malformed numeric input by
// treating it as zero.
package pricing

import (
	"math"

	"github.com/tellquote/tellquote/internal/quote"
)

// Totals is a cost/charge pair.
type Totals struct {
	Cost   float64 `json:"totalCost"`
	Charge float64 `json:"totalCharge"`
}

// Add returns the element-wise sum.
func (t Totals) Add(o Totals) Totals {
	return Totals{Cost: t.Cost + o.Cost, Charge: t.Charge + o.Charge}
}

// Profit is charge minus cost.
func (t Totals) Profit() float64 {
	return t.Charge - t.Cost
}

// Margin is the margin percentage of the pair.
func (t Totals) Margin() float64 {
	return Margin(t.Cost, t.Charge)
}

// LineTotal multiplies unit cost and charge by quantity and days.
func LineTotal(item quote.LineItem) Totals {
	qty := num(item.Quantity)
	days := num(item.Days)
	return Totals{
		Cost:   num(item.Cost) * qty * days,
		Charge: num(item.Charge) * qty * days,
	}
}

// LineMargin is the margin percentage of a single line item.
func LineMargin(item quote.LineItem) float64 {
	return LineTotal(item).Margin()
}

// Margin returns (charge-cost)/charge as a percentage, 0 when charge is 0.
func Margin(cost, charge float64) float64 {
	cost, charge = num(cost), num(charge)
	if charge == 0 {
		return 0
	}
	return (charge - cost) / charge * 100
}

// Band classifies a margin percentage for display.
type Band string

const (
	BandGood Band = "good"
	BandWarn Band = "warn"
	BandBad  Band = "bad"
)

// Band thresholds, in percent.
const (
	GoodMarginThreshold = 30.0
	WarnMarginThreshold = 15.0
)

// MarginBand maps a margin percentage to its display band.
func MarginBand(margin float64) Band {
	switch {
	case margin >= GoodMarginThreshold:
		return BandGood
	case margin >= WarnMarginThreshold:
		return BandWarn
	default:
		return BandBad
	}
}

func num(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
