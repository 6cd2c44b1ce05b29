package univ3

import (
	"fmt"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// Fractional digits kept on solved amounts. The solved side is always
// truncated downward so the deposit can never exceed what the caller
// authorized.
const amountScale = 18

const ratioScale = 40

// SolveInput feeds SolveAmounts. Exactly one desired amount must be set;
// the other side is solved for. Ticks and amounts must share one coherent
// space (the executor uses pool-native ticks with raw-unit amounts, the
// quote path uses decimal-adjusted prices with human amounts).
type SolveInput struct {
	CurrentTick    int
	TickLower      int
	TickUpper      int
	Amount0Desired *decimal.Decimal
	Amount1Desired *decimal.Decimal
}

// Classify places the current tick against the half-open range
// [tickLower, tickUpper).
func Classify(currentTick, tickLower, tickUpper int) model.PositionType {
	switch {
	case currentTick < tickLower:
		return model.BelowRange
	case currentTick >= tickUpper:
		return model.AboveRange
	default:
		return model.InRange
	}
}

// SolveAmounts computes the paired deposit amounts for a range and one
// desired amount, classifying the position along the way. Pure computation,
// never retried.
func SolveAmounts(in SolveInput) (model.AmountQuote, error) {
	if err := validateTicks(in.TickLower, in.TickUpper); err != nil {
		return model.AmountQuote{}, err
	}

	given0 := in.Amount0Desired != nil
	given1 := in.Amount1Desired != nil
	if given0 == given1 {
		return model.AmountQuote{}, &model.AmbiguousInputError{Amount0Given: given0, Amount1Given: given1}
	}
	if given0 && in.Amount0Desired.Sign() < 0 {
		return model.AmountQuote{}, &model.DomainError{Quantity: "amount0", Value: in.Amount0Desired.String(), Reason: "must not be negative"}
	}
	if given1 && in.Amount1Desired.Sign() < 0 {
		return model.AmountQuote{}, &model.DomainError{Quantity: "amount1", Value: in.Amount1Desired.String(), Reason: "must not be negative"}
	}

	sqrtPl, err := TickToSqrtPrice(in.TickLower)
	if err != nil {
		return model.AmountQuote{}, err
	}
	sqrtPu, err := TickToSqrtPrice(in.TickUpper)
	if err != nil {
		return model.AmountQuote{}, err
	}

	positionType := Classify(in.CurrentTick, in.TickLower, in.TickUpper)

	switch positionType {
	case model.BelowRange:
		// Liquidity is entirely token0.
		if !given0 {
			return model.AmountQuote{}, mismatchErr(positionType, in, 1)
		}
		amount0 := *in.Amount0Desired
		liquidity := amount0.Mul(sqrtPl).Mul(sqrtPu).DivRound(sqrtPu.Sub(sqrtPl), ratioScale)
		return model.AmountQuote{
			Amount0:           amount0,
			Amount1:           decimal.Zero,
			PositionType:      positionType,
			LiquidityEstimate: liquidity,
		}, nil

	case model.AboveRange:
		// Liquidity is entirely token1.
		if !given1 {
			return model.AmountQuote{}, mismatchErr(positionType, in, 0)
		}
		amount1 := *in.Amount1Desired
		liquidity := amount1.DivRound(sqrtPu.Sub(sqrtPl), ratioScale)
		return model.AmountQuote{
			Amount0:           decimal.Zero,
			Amount1:           amount1,
			PositionType:      positionType,
			LiquidityEstimate: liquidity,
		}, nil
	}

	if in.CurrentTick > MaxTick || in.CurrentTick < MinTick {
		return model.AmountQuote{}, &model.DomainError{Quantity: "current tick", Value: fmt.Sprint(in.CurrentTick), Reason: "outside protocol bounds"}
	}
	sqrtP, err := TickToSqrtPrice(in.CurrentTick)
	if err != nil {
		return model.AmountQuote{}, err
	}

	// amount1/amount0 = (sqrtP - sqrtPl) / (1/sqrtP - 1/sqrtPu)
	numerator := sqrtP.Sub(sqrtPl)
	denominator := one.DivRound(sqrtP, ratioScale).Sub(one.DivRound(sqrtPu, ratioScale))

	if numerator.IsZero() {
		// Current tick sits exactly on the lower bound: zero token1 is
		// required. Round-down favors the caller when solving from
		// amount0; a token1-only input has no finite counterpart.
		if !given0 {
			return model.AmountQuote{}, mismatchErr(positionType, in, 1)
		}
		amount0 := *in.Amount0Desired
		liquidity := amount0.Mul(sqrtP).Mul(sqrtPu).DivRound(sqrtPu.Sub(sqrtP), ratioScale)
		return model.AmountQuote{
			Amount0:           amount0,
			Amount1:           decimal.Zero,
			PositionType:      positionType,
			LiquidityEstimate: liquidity,
		}, nil
	}

	ratio := numerator.DivRound(denominator, ratioScale)

	var amount0, amount1, liquidity decimal.Decimal
	if given0 {
		amount0 = *in.Amount0Desired
		amount1 = amount0.Mul(ratio).RoundDown(amountScale)
		liquidity = amount0.Mul(sqrtP).Mul(sqrtPu).DivRound(sqrtPu.Sub(sqrtP), ratioScale)
	} else {
		amount1 = *in.Amount1Desired
		amount0 = amount1.DivRound(ratio, ratioScale).RoundDown(amountScale)
		liquidity = amount1.DivRound(sqrtP.Sub(sqrtPl), ratioScale)
	}

	return model.AmountQuote{
		Amount0:           amount0,
		Amount1:           amount1,
		PositionType:      positionType,
		LiquidityEstimate: liquidity,
	}, nil
}

// AmountsFromLiquidity projects the token amounts a position of the given
// liquidity holds. Used to size migrate proceeds before the withdrawal
// lands. Amounts come back in the same space the liquidity was measured in.
func AmountsFromLiquidity(liquidity decimal.Decimal, currentTick, tickLower, tickUpper int) (decimal.Decimal, decimal.Decimal, error) {
	if err := validateTicks(tickLower, tickUpper); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if liquidity.Sign() < 0 {
		return decimal.Zero, decimal.Zero, &model.DomainError{Quantity: "liquidity", Value: liquidity.String(), Reason: "must not be negative"}
	}

	sqrtPl, err := TickToSqrtPrice(tickLower)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	sqrtPu, err := TickToSqrtPrice(tickUpper)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	switch Classify(currentTick, tickLower, tickUpper) {
	case model.BelowRange:
		amount0 := liquidity.Mul(one.DivRound(sqrtPl, ratioScale).Sub(one.DivRound(sqrtPu, ratioScale)))
		return amount0, decimal.Zero, nil
	case model.AboveRange:
		amount1 := liquidity.Mul(sqrtPu.Sub(sqrtPl))
		return decimal.Zero, amount1, nil
	}

	sqrtP, err := TickToSqrtPrice(currentTick)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	amount0 := liquidity.Mul(one.DivRound(sqrtP, ratioScale).Sub(one.DivRound(sqrtPu, ratioScale)))
	amount1 := liquidity.Mul(sqrtP.Sub(sqrtPl))
	return amount0, amount1, nil
}

func validateTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return &model.DomainError{
			Quantity: "tick range",
			Value:    fmt.Sprintf("[%d, %d)", tickLower, tickUpper),
			Reason:   "lower tick must be below upper tick",
		}
	}
	if tickLower < MinTick || tickUpper > MaxTick {
		return &model.DomainError{
			Quantity: "tick range",
			Value:    fmt.Sprintf("[%d, %d)", tickLower, tickUpper),
			Reason:   "outside protocol bounds",
		}
	}
	return nil
}

func mismatchErr(positionType model.PositionType, in SolveInput, givenSide int) error {
	return &model.PositionOutOfRangeMismatchError{
		PositionType: positionType,
		CurrentTick:  in.CurrentTick,
		TickLower:    in.TickLower,
		TickUpper:    in.TickUpper,
		GivenSide:    givenSide,
	}
}
