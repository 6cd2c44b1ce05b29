package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PositionType classifies where the current tick sits relative to a range.
type PositionType int

const (
	InRange PositionType = iota
	BelowRange
	AboveRange
)

func (t PositionType) String() string {
	switch t {
	case InRange:
		return "in_range"
	case BelowRange:
		return "below_range"
	case AboveRange:
		return "above_range"
	default:
		return "unknown"
	}
}

// PriceRange is a spacing-aligned tick range for a fee tier. Immutable
// once constructed by the planner.
type PriceRange struct {
	TickLower int    `json:"tick_lower"`
	TickUpper int    `json:"tick_upper"`
	FeeTier   uint32 `json:"fee_tier"`
}

// AmountQuote is the solver output. Advisory only: it is computed fresh per
// request and invalidated by the next price move.
type AmountQuote struct {
	Amount0           decimal.Decimal `json:"amount0"`
	Amount1           decimal.Decimal `json:"amount1"`
	PositionType      PositionType    `json:"position_type"`
	LiquidityEstimate decimal.Decimal `json:"liquidity_estimate"`
}

// PositionInfo mirrors an on-chain position as reported by the position
// manager contract.
type PositionInfo struct {
	ID        *big.Int
	Token0    Token
	Token1    Token
	FeeTier   uint32
	TickLower int
	TickUpper int
	Liquidity *big.Int
	OwedFees0 decimal.Decimal
	OwedFees1 decimal.Decimal
}
