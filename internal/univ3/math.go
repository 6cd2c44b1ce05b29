package univ3

import (
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// Protocol-wide tick bounds.
const (
	MinTick = -887272
	MaxTick = 887272
)

// Decimal places carried through the repeated-squaring power ladder. The
// largest in-bounds price is ~3.4e38, so this keeps well over 80
// significant digits at the extremes.
const priceScale = 48

const lnPrecision = 32

var (
	one      = decimal.NewFromInt(1)
	tickBase = decimal.RequireFromString("1.0001")
)

// SpacingForFee maps a fee tier to its tick spacing.
func SpacingForFee(fee uint32) (int, error) {
	switch fee {
	case 100:
		return 1, nil
	case 500:
		return 10, nil
	case 3000:
		return 60, nil
	case 10000:
		return 200, nil
	default:
		return 0, &model.DomainError{
			Quantity: "fee tier",
			Value:    strconv.FormatUint(uint64(fee), 10),
			Reason:   "supported tiers are 100, 500, 3000, 10000",
		}
	}
}

// TickToPrice returns 1.0001^tick, computed by repeated squaring so the
// result is stable across the whole tick range.
func TickToPrice(tick int) (decimal.Decimal, error) {
	if tick < MinTick || tick > MaxTick {
		return decimal.Zero, &model.DomainError{
			Quantity: "tick",
			Value:    strconv.Itoa(tick),
			Reason:   "outside protocol bounds",
		}
	}
	return powTick(tick), nil
}

// PriceToTick returns floor(log_1.0001(price)). The logarithm estimate is
// snapped onto the tick grid afterwards, so the floor is exact even when
// price sits on (or within rounding distance of) a grid point.
func PriceToTick(price decimal.Decimal) (int, error) {
	if price.Sign() <= 0 {
		return 0, &model.DomainError{
			Quantity: "price",
			Value:    price.String(),
			Reason:   "must be positive",
		}
	}

	lnPrice, err := price.Ln(lnPrecision)
	if err != nil {
		return 0, &model.DomainError{Quantity: "price", Value: price.String(), Reason: err.Error()}
	}
	lnBase, err := tickBase.Ln(lnPrecision)
	if err != nil {
		return 0, &model.DomainError{Quantity: "price", Value: price.String(), Reason: err.Error()}
	}

	estimate := lnPrice.DivRound(lnBase, 24).Floor().IntPart()
	if estimate < MinTick-1 || estimate > MaxTick+1 {
		return 0, &model.DomainError{
			Quantity: "price",
			Value:    price.String(),
			Reason:   "outside the representable tick range",
		}
	}

	tick := int(estimate)
	if tick > MaxTick {
		tick = MaxTick
	}
	if tick < MinTick {
		tick = MinTick
	}
	for tick < MaxTick && !powTick(tick+1).GreaterThan(price) {
		tick++
	}
	for tick > MinTick && powTick(tick).GreaterThan(price) {
		tick--
	}
	if powTick(tick).GreaterThan(price) {
		return 0, &model.DomainError{
			Quantity: "price",
			Value:    price.String(),
			Reason:   "below the minimum representable tick price",
		}
	}
	return tick, nil
}

// RoundToSpacing aligns a tick to the fee tier's grid. Lower bounds round
// toward negative infinity and upper bounds toward positive infinity, so a
// realized range is never narrower than requested. Already-aligned ticks
// are returned unchanged.
func RoundToSpacing(tick, spacing int, roundDown bool) (int, error) {
	if spacing <= 0 {
		return 0, &model.InvalidSpacingError{Spacing: spacing}
	}
	floored := floorDiv(tick, spacing) * spacing
	if roundDown || floored == tick {
		return floored, nil
	}
	return floored + spacing, nil
}

// NormalizeAmount scales a human-unit amount into raw token units. Amounts
// with more fractional digits than the token supports are rejected rather
// than truncated.
func NormalizeAmount(human decimal.Decimal, decimals uint8) (*big.Int, error) {
	if human.Sign() < 0 {
		return nil, &model.DomainError{
			Quantity: "amount",
			Value:    human.String(),
			Reason:   "must not be negative",
		}
	}
	shifted := human.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, &model.PrecisionLossError{Amount: human, Decimals: decimals}
	}
	return shifted.BigInt(), nil
}

// DenormalizeAmount scales raw token units back to human units.
func DenormalizeAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// TickToSqrtPrice returns 1.0001^(tick/2).
func TickToSqrtPrice(tick int) (decimal.Decimal, error) {
	price, err := TickToPrice(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return sqrtDecimal(price), nil
}

// SqrtPriceX96ToPrice converts a pool's Q64.96 sqrt price into the
// decimal-adjusted token1/token0 price.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero
	}
	q96 := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)
	s := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, priceScale)
	return s.Mul(s).Shift(int32(decimals0) - int32(decimals1))
}

func powTick(tick int) decimal.Decimal {
	n := tick
	if n < 0 {
		n = -n
	}

	result := one
	base := tickBase
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(priceScale)
		}
		n >>= 1
		if n > 0 {
			base = base.Mul(base).Round(priceScale)
		}
	}

	if tick < 0 {
		return one.DivRound(result, priceScale)
	}
	return result
}

func sqrtDecimal(x decimal.Decimal) decimal.Decimal {
	f, ok := new(big.Float).SetPrec(192).SetString(x.String())
	if !ok || f.Sign() < 0 {
		return decimal.Zero
	}
	out, err := decimal.NewFromString(new(big.Float).SetPrec(192).Sqrt(f).Text('f', priceScale))
	if err != nil {
		return decimal.Zero
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
