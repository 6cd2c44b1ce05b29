package univ3

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// planAt builds a spacing-aligned range around a current price, the same
// way the planner feeds the solver.
func planAt(t *testing.T, price float64, pctLower, pctUpper float64, fee uint32) (RangePlan, int) {
	t.Helper()

	current := decimal.NewFromFloat(price)
	plan, err := PlanRange(RangeRequest{
		CurrentPrice: current,
		PctLower:     decimal.NewFromFloat(pctLower),
		PctUpper:     decimal.NewFromFloat(pctUpper),
		FeeTier:      fee,
	})
	if err != nil {
		t.Fatalf("plan range: %v", err)
	}

	tick, err := PriceToTick(current)
	if err != nil {
		t.Fatalf("price to tick: %v", err)
	}
	return plan, tick
}

// referenceAmount1 evaluates the in-range ratio with float64 sqrt prices,
// independent of the decimal implementation.
func referenceAmount1(amount0 float64, currentTick, tickLower, tickUpper int) float64 {
	sqrtP := math.Pow(1.0001, float64(currentTick)/2)
	sqrtPl := math.Pow(1.0001, float64(tickLower)/2)
	sqrtPu := math.Pow(1.0001, float64(tickUpper)/2)
	return amount0 * (sqrtP - sqrtPl) / (1/sqrtP - 1/sqrtPu)
}

func TestSolveInRangeSymmetric(t *testing.T) {
	// Current price 3000, range -5%..+5%.
	plan, tick := planAt(t, 3000, -0.05, 0.05, 3000)

	amount0 := decimal.RequireFromString("0.01")
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	if quote.PositionType != model.InRange {
		t.Fatalf("position type %s, want in_range", quote.PositionType)
	}
	if quote.Amount0.Sign() <= 0 || quote.Amount1.Sign() <= 0 {
		t.Fatalf("in-range quote must need both tokens, got %s / %s", quote.Amount0, quote.Amount1)
	}

	want := referenceAmount1(0.01, tick, plan.Range.TickLower, plan.Range.TickUpper)
	got := quote.Amount1.InexactFloat64()
	if math.Abs(got-want)/want > 0.01 {
		t.Fatalf("amount1 = %v, want ~%v", got, want)
	}
	if quote.LiquidityEstimate.Sign() <= 0 {
		t.Fatalf("liquidity estimate should be positive, got %s", quote.LiquidityEstimate)
	}
}

func TestSolveRangeBelowCurrentPrice(t *testing.T) {
	// Range -10%..-1% sits entirely below the current price, so the
	// position holds only token1.
	plan, tick := planAt(t, 3000, -0.10, -0.01, 3000)

	if tick < plan.Range.TickUpper {
		t.Fatalf("test setup: current tick %d should be at or above upper %d", tick, plan.Range.TickUpper)
	}

	amount1 := decimal.NewFromInt(30)
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount1Desired: &amount1,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if quote.PositionType != model.AboveRange {
		t.Fatalf("position type %s, want above_range", quote.PositionType)
	}
	if !quote.Amount0.IsZero() {
		t.Fatalf("amount0 must be zero above range, got %s", quote.Amount0)
	}
	if !quote.Amount1.Equal(amount1) {
		t.Fatalf("amount1 passed through changed: %s", quote.Amount1)
	}

	// Supplying token0 for a token1-only position is a contradiction.
	amount0 := decimal.RequireFromString("0.01")
	var mismatch *model.PositionOutOfRangeMismatchError
	_, err = SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PositionOutOfRangeMismatchError, got %v", err)
	}
}

func TestSolveRangeAboveCurrentPrice(t *testing.T) {
	// Range +2%..+15% sits entirely above the current price, so the
	// position holds only token0.
	plan, tick := planAt(t, 3000, 0.02, 0.15, 3000)

	if tick >= plan.Range.TickLower {
		t.Fatalf("test setup: current tick %d should be below lower %d", tick, plan.Range.TickLower)
	}

	amount0 := decimal.RequireFromString("0.01")
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if quote.PositionType != model.BelowRange {
		t.Fatalf("position type %s, want below_range", quote.PositionType)
	}
	if !quote.Amount1.IsZero() {
		t.Fatalf("amount1 must be zero below range, got %s", quote.Amount1)
	}

	amount1 := decimal.NewFromInt(30)
	var mismatch *model.PositionOutOfRangeMismatchError
	_, err = SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount1Desired: &amount1,
	})
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PositionOutOfRangeMismatchError, got %v", err)
	}
}

func TestSolveAmbiguousInput(t *testing.T) {
	amount := decimal.NewFromInt(1)
	var ambiguous *model.AmbiguousInputError

	_, err := SolveAmounts(SolveInput{CurrentTick: 0, TickLower: -60, TickUpper: 60})
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousInputError for neither amount, got %v", err)
	}

	_, err = SolveAmounts(SolveInput{
		CurrentTick:    0,
		TickLower:      -60,
		TickUpper:      60,
		Amount0Desired: &amount,
		Amount1Desired: &amount,
	})
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousInputError for both amounts, got %v", err)
	}
}

func TestSolveInverseReproduces(t *testing.T) {
	plan, tick := planAt(t, 3000, -0.05, 0.05, 3000)

	amount0 := decimal.NewFromInt(1)
	forward, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("forward solve: %v", err)
	}

	back, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount1Desired: &forward.Amount1,
	})
	if err != nil {
		t.Fatalf("inverse solve: %v", err)
	}

	// Round-down means the inverse can lose at most one rounding unit and
	// must never come back larger than the original input.
	if back.Amount0.GreaterThan(amount0) {
		t.Fatalf("inverse over-allocated: %s > %s", back.Amount0, amount0)
	}
	oneUnit := decimal.New(1, -amountScale)
	if amount0.Sub(back.Amount0).GreaterThan(oneUnit.Mul(decimal.NewFromInt(2))) {
		t.Fatalf("inverse drifted by more than rounding: %s", amount0.Sub(back.Amount0))
	}
}

func TestSolveNeverRoundsUp(t *testing.T) {
	plan, tick := planAt(t, 3000, -0.03, 0.07, 3000)

	// An awkward input amount whose product will not land on the grid.
	amount0 := decimal.RequireFromString("0.0123456789123456789")
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	upper := referenceAmount1(0.0123456789123456789, tick, plan.Range.TickLower, plan.Range.TickUpper)
	got := quote.Amount1.InexactFloat64()
	if got > upper*(1+1e-9) {
		t.Fatalf("solved amount1 %v exceeds exact value %v", got, upper)
	}
}

func TestSolveLowerBoundary(t *testing.T) {
	// Current tick exactly on the lower bound: zero token1 required.
	amount0 := decimal.NewFromInt(1)
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    -60,
		TickLower:      -60,
		TickUpper:      60,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if quote.PositionType != model.InRange {
		t.Fatalf("position type %s, want in_range", quote.PositionType)
	}
	if !quote.Amount1.IsZero() {
		t.Fatalf("amount1 at lower boundary must be zero, got %s", quote.Amount1)
	}

	amount1 := decimal.NewFromInt(1)
	var mismatch *model.PositionOutOfRangeMismatchError
	_, err = SolveAmounts(SolveInput{
		CurrentTick:    -60,
		TickLower:      -60,
		TickUpper:      60,
		Amount1Desired: &amount1,
	})
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PositionOutOfRangeMismatchError at lower boundary, got %v", err)
	}
}

func TestSolveUpperBoundaryIsAboveRange(t *testing.T) {
	// The interval is half-open: tick == upper is already above range.
	amount1 := decimal.NewFromInt(1)
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    60,
		TickLower:      -60,
		TickUpper:      60,
		Amount1Desired: &amount1,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if quote.PositionType != model.AboveRange {
		t.Fatalf("position type %s, want above_range", quote.PositionType)
	}
	if !quote.Amount0.IsZero() {
		t.Fatalf("amount0 must be zero, got %s", quote.Amount0)
	}
}

func TestSolveInvalidTicks(t *testing.T) {
	amount := decimal.NewFromInt(1)
	var domainErr *model.DomainError

	_, err := SolveAmounts(SolveInput{CurrentTick: 0, TickLower: 60, TickUpper: -60, Amount0Desired: &amount})
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for inverted range, got %v", err)
	}

	_, err = SolveAmounts(SolveInput{CurrentTick: 0, TickLower: -60, TickUpper: MaxTick + 60, Amount0Desired: &amount})
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for out-of-bounds range, got %v", err)
	}
}

func TestAmountsFromLiquidityRoundTrip(t *testing.T) {
	plan, tick := planAt(t, 3000, -0.05, 0.05, 3000)

	amount0 := decimal.NewFromInt(2)
	quote, err := SolveAmounts(SolveInput{
		CurrentTick:    tick,
		TickLower:      plan.Range.TickLower,
		TickUpper:      plan.Range.TickUpper,
		Amount0Desired: &amount0,
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	got0, got1, err := AmountsFromLiquidity(quote.LiquidityEstimate, tick, plan.Range.TickLower, plan.Range.TickUpper)
	if err != nil {
		t.Fatalf("amounts from liquidity: %v", err)
	}

	if rel(got0, quote.Amount0) > 1e-9 {
		t.Fatalf("amount0 from liquidity %s, want ~%s", got0, quote.Amount0)
	}
	if rel(got1, quote.Amount1) > 1e-6 {
		t.Fatalf("amount1 from liquidity %s, want ~%s", got1, quote.Amount1)
	}
}

func TestAmountsFromLiquiditySingleSided(t *testing.T) {
	liquidity := decimal.NewFromInt(1000)

	below0, below1, err := AmountsFromLiquidity(liquidity, -600, -60, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if below0.Sign() <= 0 || !below1.IsZero() {
		t.Fatalf("below range should be all token0, got %s / %s", below0, below1)
	}

	above0, above1, err := AmountsFromLiquidity(liquidity, 600, -60, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !above0.IsZero() || above1.Sign() <= 0 {
		t.Fatalf("above range should be all token1, got %s / %s", above0, above1)
	}
}

func rel(got, want decimal.Decimal) float64 {
	if want.IsZero() {
		return math.Abs(got.InexactFloat64())
	}
	return math.Abs(got.Sub(want).Div(want).InexactFloat64())
}
