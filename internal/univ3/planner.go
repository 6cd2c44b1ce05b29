package univ3

import (
	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// RangeRequest asks for a tick range at a percentage offset around the
// sampled current price. Percentages are fractions (-0.05 = -5%).
type RangeRequest struct {
	CurrentPrice decimal.Decimal
	PctLower     decimal.Decimal
	PctUpper     decimal.Decimal
	FeeTier      uint32
}

// RangePlan is the realized range. The rounded ticks move the bounds, so the
// realized prices and percentages are surfaced next to the requested ones
// instead of diverging silently.
type RangePlan struct {
	Range            model.PriceRange
	PriceLower       decimal.Decimal
	PriceUpper       decimal.Decimal
	RequestedPctLower decimal.Decimal
	RequestedPctUpper decimal.Decimal
	RealizedPctLower decimal.Decimal
	RealizedPctUpper decimal.Decimal
}

// PlanRange converts a percentage range into a spacing-aligned tick range.
// The lower bound rounds down and the upper bound rounds up, so the realized
// range is never narrower than requested.
func PlanRange(req RangeRequest) (RangePlan, error) {
	if req.PctLower.GreaterThanOrEqual(req.PctUpper) {
		return RangePlan{}, &model.InvalidRangeError{
			Lower:  req.PctLower,
			Upper:  req.PctUpper,
			Reason: "lower percentage must be below upper percentage",
		}
	}
	if req.CurrentPrice.Sign() <= 0 {
		return RangePlan{}, &model.DomainError{
			Quantity: "current price",
			Value:    req.CurrentPrice.String(),
			Reason:   "must be positive",
		}
	}

	priceLower := req.CurrentPrice.Mul(one.Add(req.PctLower))
	priceUpper := req.CurrentPrice.Mul(one.Add(req.PctUpper))
	if priceLower.Sign() <= 0 {
		return RangePlan{}, &model.InvalidRangeError{
			Lower:  req.PctLower,
			Upper:  req.PctUpper,
			Reason: "lower bound price must stay positive",
		}
	}

	spacing, err := SpacingForFee(req.FeeTier)
	if err != nil {
		return RangePlan{}, err
	}

	rawLower, err := PriceToTick(priceLower)
	if err != nil {
		return RangePlan{}, err
	}
	rawUpper, err := PriceToTick(priceUpper)
	if err != nil {
		return RangePlan{}, err
	}

	tickLower, err := RoundToSpacing(rawLower, spacing, true)
	if err != nil {
		return RangePlan{}, err
	}
	tickUpper, err := RoundToSpacing(rawUpper, spacing, false)
	if err != nil {
		return RangePlan{}, err
	}
	if tickUpper == tickLower {
		// Both bounds collapsed onto one grid point; widen upward to keep
		// the range valid.
		tickUpper += spacing
	}
	if tickLower < MinTick || tickUpper > MaxTick {
		return RangePlan{}, &model.InvalidRangeError{
			Lower:  req.PctLower,
			Upper:  req.PctUpper,
			Reason: "rounded range leaves protocol tick bounds",
		}
	}

	realizedLower, err := TickToPrice(tickLower)
	if err != nil {
		return RangePlan{}, err
	}
	realizedUpper, err := TickToPrice(tickUpper)
	if err != nil {
		return RangePlan{}, err
	}

	return RangePlan{
		Range: model.PriceRange{
			TickLower: tickLower,
			TickUpper: tickUpper,
			FeeTier:   req.FeeTier,
		},
		PriceLower:        realizedLower,
		PriceUpper:        realizedUpper,
		RequestedPctLower: req.PctLower,
		RequestedPctUpper: req.PctUpper,
		RealizedPctLower:  realizedLower.DivRound(req.CurrentPrice, ratioScale).Sub(one),
		RealizedPctUpper:  realizedUpper.DivRound(req.CurrentPrice, ratioScale).Sub(one),
	}, nil
}
