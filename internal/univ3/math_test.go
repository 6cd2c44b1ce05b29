package univ3

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

func TestTickPriceRoundTrip(t *testing.T) {
	ticks := []int{MinTick, -100000, -60, -1, 0, 1, 60, 100000, MaxTick}

	for _, tick := range ticks {
		price, err := TickToPrice(tick)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}

		back, err := PriceToTick(price)
		if err != nil {
			t.Fatalf("tick %d: price_to_tick failed: %v", tick, err)
		}
		if back != tick {
			t.Fatalf("tick %d: round trip gave %d", tick, back)
		}

		again, err := TickToPrice(back)
		if err != nil {
			t.Fatalf("tick %d: second conversion failed: %v", tick, err)
		}
		if !again.Equal(price) {
			t.Fatalf("tick %d: price drifted: %s != %s", tick, again, price)
		}
	}
}

func TestPriceToTickFloor(t *testing.T) {
	// Just above a grid point still floors to it.
	base, err := TickToPrice(120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nudged := base.Mul(decimal.RequireFromString("1.00004"))

	tick, err := PriceToTick(nudged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != 120 {
		t.Fatalf("expected floor tick 120, got %d", tick)
	}
}

func TestPriceToTickKnownValue(t *testing.T) {
	tick, err := PriceToTick(decimal.NewFromInt(3000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := int(math.Floor(math.Log(3000) / math.Log(1.0001)))
	if tick != want {
		t.Fatalf("tick for 3000: got %d, want %d", tick, want)
	}
}

func TestPriceToTickInvalid(t *testing.T) {
	var domainErr *model.DomainError

	if _, err := PriceToTick(decimal.Zero); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for zero price, got %v", err)
	}
	if _, err := PriceToTick(decimal.NewFromInt(-1)); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for negative price, got %v", err)
	}
}

func TestTickToPriceBounds(t *testing.T) {
	var domainErr *model.DomainError

	if _, err := TickToPrice(MaxTick + 1); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError above MaxTick, got %v", err)
	}
	if _, err := TickToPrice(MinTick - 1); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError below MinTick, got %v", err)
	}
}

func TestRoundToSpacing(t *testing.T) {
	cases := []struct {
		tick      int
		spacing   int
		roundDown bool
		want      int
	}{
		{85, 60, true, 60},
		{85, 60, false, 120},
		{-85, 60, true, -120},
		{-85, 60, false, -60},
		{200, 10, true, 200},
		{200, 10, false, 200},
		{-200, 200, true, -200},
		{-200, 200, false, -200},
		{0, 60, true, 0},
		{0, 60, false, 0},
	}

	for _, tc := range cases {
		got, err := RoundToSpacing(tc.tick, tc.spacing, tc.roundDown)
		if err != nil {
			t.Fatalf("round(%d, %d, %v): unexpected error: %v", tc.tick, tc.spacing, tc.roundDown, err)
		}
		if got != tc.want {
			t.Fatalf("round(%d, %d, %v) = %d, want %d", tc.tick, tc.spacing, tc.roundDown, got, tc.want)
		}
	}
}

func TestRoundToSpacingIdempotent(t *testing.T) {
	for _, spacing := range []int{1, 10, 60, 200} {
		for _, tick := range []int{-887220, -600, 0, 600, 887200} {
			aligned, err := RoundToSpacing(tick, spacing, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			down, _ := RoundToSpacing(aligned, spacing, true)
			up, _ := RoundToSpacing(aligned, spacing, false)
			if down != aligned || up != aligned {
				t.Fatalf("spacing %d: rounding aligned tick %d moved it (%d, %d)", spacing, aligned, down, up)
			}
		}
	}
}

func TestRoundToSpacingInvalid(t *testing.T) {
	var spacingErr *model.InvalidSpacingError

	if _, err := RoundToSpacing(100, 0, true); !errors.As(err, &spacingErr) {
		t.Fatalf("expected InvalidSpacingError for zero spacing, got %v", err)
	}
	if _, err := RoundToSpacing(100, -10, false); !errors.As(err, &spacingErr) {
		t.Fatalf("expected InvalidSpacingError for negative spacing, got %v", err)
	}
}

func TestSpacingForFee(t *testing.T) {
	want := map[uint32]int{100: 1, 500: 10, 3000: 60, 10000: 200}
	for fee, spacing := range want {
		got, err := SpacingForFee(fee)
		if err != nil {
			t.Fatalf("fee %d: unexpected error: %v", fee, err)
		}
		if got != spacing {
			t.Fatalf("fee %d: got spacing %d, want %d", fee, got, spacing)
		}
	}

	var domainErr *model.DomainError
	if _, err := SpacingForFee(1234); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for unsupported fee, got %v", err)
	}
}

func TestNormalizeAmount(t *testing.T) {
	raw, err := NormalizeAmount(decimal.RequireFromString("1.5"), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("got %s, want 1500000", raw)
	}

	back := DenormalizeAmount(raw, 6)
	if !back.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("denormalize gave %s, want 1.5", back)
	}
}

func TestNormalizeAmountPrecisionLoss(t *testing.T) {
	var precisionErr *model.PrecisionLossError

	_, err := NormalizeAmount(decimal.RequireFromString("0.0000005"), 6)
	if !errors.As(err, &precisionErr) {
		t.Fatalf("expected PrecisionLossError, got %v", err)
	}
	if precisionErr.Decimals != 6 {
		t.Fatalf("error carries decimals %d, want 6", precisionErr.Decimals)
	}
}

func TestNormalizeAmountNegative(t *testing.T) {
	var domainErr *model.DomainError

	if _, err := NormalizeAmount(decimal.NewFromInt(-1), 18); !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for negative amount, got %v", err)
	}
}

func TestSqrtPriceX96ToPrice(t *testing.T) {
	// WETH/USDT style pool: decimals 18/6, human price 3000.
	// Raw price = 3000 * 10^(6-18) = 3e-9, sqrt = sqrt(3e-9).
	sqrtRaw := new(big.Float).SetPrec(192).Sqrt(big.NewFloat(3e-9))
	q96 := new(big.Float).SetPrec(192).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	sqrtX96, _ := new(big.Float).Mul(sqrtRaw, q96).Int(nil)

	price := SqrtPriceX96ToPrice(sqrtX96, 18, 6)

	got := price.InexactFloat64()
	if math.Abs(got-3000)/3000 > 1e-9 {
		t.Fatalf("price = %v, want ~3000", got)
	}
}

func TestSqrtPriceX96ToPriceDegenerate(t *testing.T) {
	if !SqrtPriceX96ToPrice(nil, 18, 6).IsZero() {
		t.Fatalf("nil sqrt price should convert to zero")
	}
	if !SqrtPriceX96ToPrice(big.NewInt(0), 18, 6).IsZero() {
		t.Fatalf("zero sqrt price should convert to zero")
	}
}
