package pricing

import (
	"math"

	"github.com/tellquote/tellquote/internal/quote"
)

// ClampFee bounds a fee percentage to [0, 100]. Non-finite input becomes 0.
func ClampFee(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, -1) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// ClampFees clamps every percentage of f.
func ClampFees(f quote.Fees) quote.Fees {
	f.ManagementFee = ClampFee(f.ManagementFee)
	f.CommissionFee = ClampFee(f.CommissionFee)
	f.Discount = ClampFee(f.Discount)
	return f
}

// FeeTotals is the grand total after management, commission and discount.
type FeeTotals struct {
	BaseCost             float64 `json:"baseCost"`
	BaseCharge           float64 `json:"baseCharge"`
	ManagementAmount     float64 `json:"managementAmount"`
	CommissionAmount     float64 `json:"commissionAmount"`
	ChargeBeforeDiscount float64 `json:"chargeWithFees"`
	DiscountAmount       float64 `json:"discountAmount"`
	TotalCost            float64 `json:"totalCost"`
	TotalCharge          float64 `json:"totalCharge"`
	Profit               float64 `json:"profit"`
	Margin               float64 `json:"margin"`
	DistributeFees       bool    `json:"distributeFees"`
	DistributionFactor   float64 `json:"distributionFactor"`
}

// GrandTotalWithFees applies fees to the grand total. Management and
// commission are percentages of the base charge; the discount is a percentage
// of the charge after those fees.
func GrandTotalWithFees(sections map[string]*quote.Section, fees quote.Fees) FeeTotals {
	return ApplyFees(GrandTotal(sections), fees)
}

// ApplyFees runs the fee algorithm against precomputed base totals.
func ApplyFees(base Totals, fees quote.Fees) FeeTotals {
	fees = ClampFees(fees)
	base = Totals{Cost: num(base.Cost), Charge: num(base.Charge)}

	management := base.Charge * fees.ManagementFee / 100
	commission := base.Charge * fees.CommissionFee / 100
	beforeDiscount := base.Charge + management + commission
	discount := beforeDiscount * fees.Discount / 100
	total := beforeDiscount - discount

	factor := 1.0
	if fees.DistributeFees && base.Charge != 0 {
		factor = beforeDiscount / base.Charge
	}

	return FeeTotals{
		BaseCost:             base.Cost,
		BaseCharge:           base.Charge,
		ManagementAmount:     management,
		CommissionAmount:     commission,
		ChargeBeforeDiscount: beforeDiscount,
		DiscountAmount:       discount,
		TotalCost:            base.Cost,
		TotalCharge:          total,
		Profit:               total - base.Cost,
		Margin:               Margin(base.Cost, total),
		DistributeFees:       fees.DistributeFees,
		DistributionFactor:   factor,
	}
}

// DistributedRate folds management and commission into a unit charge when
// fee distribution is on. The discount is never distributed.
func (t FeeTotals) DistributedRate(unitCharge float64) float64 {
	if !t.DistributeFees {
		return unitCharge
	}
	return unitCharge * t.DistributionFactor
}
