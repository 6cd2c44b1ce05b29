package univ3

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

func TestPlanRangeSymmetric(t *testing.T) {
	current := decimal.NewFromInt(3000)
	plan, err := PlanRange(RangeRequest{
		CurrentPrice: current,
		PctLower:     decimal.NewFromFloat(-0.05),
		PctUpper:     decimal.NewFromFloat(0.05),
		FeeTier:      3000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.Range.TickLower%60 != 0 || plan.Range.TickUpper%60 != 0 {
		t.Fatalf("ticks not aligned to spacing 60: [%d, %d]", plan.Range.TickLower, plan.Range.TickUpper)
	}
	if plan.Range.TickLower >= plan.Range.TickUpper {
		t.Fatalf("invalid range [%d, %d]", plan.Range.TickLower, plan.Range.TickUpper)
	}

	// The realized range must cover the requested prices.
	if plan.PriceLower.GreaterThan(decimal.NewFromInt(2850)) {
		t.Fatalf("realized lower %s is above requested 2850", plan.PriceLower)
	}
	if plan.PriceUpper.LessThan(decimal.NewFromInt(3150)) {
		t.Fatalf("realized upper %s is below requested 3150", plan.PriceUpper)
	}

	// Realized percentages are surfaced and at least as wide as requested.
	if plan.RealizedPctLower.GreaterThan(plan.RequestedPctLower) {
		t.Fatalf("realized lower pct %s narrower than requested %s", plan.RealizedPctLower, plan.RequestedPctLower)
	}
	if plan.RealizedPctUpper.LessThan(plan.RequestedPctUpper) {
		t.Fatalf("realized upper pct %s narrower than requested %s", plan.RealizedPctUpper, plan.RequestedPctUpper)
	}
}

func TestPlanRangeRealizedMatchesTicks(t *testing.T) {
	plan, err := PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(3000),
		PctLower:     decimal.NewFromFloat(-0.10),
		PctUpper:     decimal.NewFromFloat(-0.01),
		FeeTier:      500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantLower, err := TickToPrice(plan.Range.TickLower)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.PriceLower.Equal(wantLower) {
		t.Fatalf("realized lower price %s does not match tick %d", plan.PriceLower, plan.Range.TickLower)
	}
}

func TestPlanRangeInvalid(t *testing.T) {
	var rangeErr *model.InvalidRangeError

	_, err := PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(3000),
		PctLower:     decimal.NewFromFloat(0.05),
		PctUpper:     decimal.NewFromFloat(-0.05),
		FeeTier:      3000,
	})
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError for inverted pcts, got %v", err)
	}

	_, err = PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(3000),
		PctLower:     decimal.NewFromFloat(-1.5),
		PctUpper:     decimal.NewFromFloat(0.05),
		FeeTier:      3000,
	})
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError for non-positive lower price, got %v", err)
	}

	var domainErr *model.DomainError
	_, err = PlanRange(RangeRequest{
		CurrentPrice: decimal.Zero,
		PctLower:     decimal.NewFromFloat(-0.05),
		PctUpper:     decimal.NewFromFloat(0.05),
		FeeTier:      3000,
	})
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for zero price, got %v", err)
	}

	_, err = PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(3000),
		PctLower:     decimal.NewFromFloat(-0.05),
		PctUpper:     decimal.NewFromFloat(0.05),
		FeeTier:      1234,
	})
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError for unsupported fee tier, got %v", err)
	}
}

func TestPlanRangeCollapseWidens(t *testing.T) {
	// Both percentage bounds land on the same aligned tick; the planner
	// widens upward rather than producing an empty range.
	gridPrice, err := TickToPrice(60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pctLower := gridPrice.Sub(decimal.NewFromInt(1))
	pctUpper := gridPrice.Mul(decimal.RequireFromString("1.00004")).Sub(decimal.NewFromInt(1))

	plan, err := PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(1),
		PctLower:     pctLower,
		PctUpper:     pctUpper,
		FeeTier:      3000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Range.TickLower != 60 || plan.Range.TickUpper != 120 {
		t.Fatalf("expected widened range [60, 120], got [%d, %d]", plan.Range.TickLower, plan.Range.TickUpper)
	}
}

func TestPlanRangeTightRange(t *testing.T) {
	// A -1%..+1% band on the 60-spacing tier still gives a valid range.
	plan, err := PlanRange(RangeRequest{
		CurrentPrice: decimal.NewFromInt(3000),
		PctLower:     decimal.NewFromFloat(-0.01),
		PctUpper:     decimal.NewFromFloat(0.01),
		FeeTier:      3000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Range.TickUpper-plan.Range.TickLower < 60 {
		t.Fatalf("range narrower than one spacing: [%d, %d]", plan.Range.TickLower, plan.Range.TickUpper)
	}
}
