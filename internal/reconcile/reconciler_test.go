package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

var testPair = model.TokenPair{
	Token0: model.Token{
		Symbol:   "WETH",
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Decimals: 18,
	},
	Token1: model.Token{
		Symbol:   "USDT",
		Address:  common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		Decimals: 6,
	},
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcileFullyFunded(t *testing.T) {
	proposal, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("1.02"),
		Available1: dec("3060"),
		Price:      dec("3000"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.Swap != nil {
		t.Fatalf("expected no swap, got %+v", proposal.Swap)
	}
	if proposal.Shortfall0.Sign() != 0 || proposal.Shortfall1.Sign() != 0 {
		t.Fatalf("expected zero shortfalls, got %s / %s", proposal.Shortfall0, proposal.Shortfall1)
	}
	if proposal.NeedsConfirmation {
		t.Fatalf("funded wallet should not need confirmation")
	}
}

func TestReconcileExactBufferBoundary(t *testing.T) {
	// available == required*(1+buffer): no swap proposed.
	proposal, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("1.01"),
		Available1: dec("3030"),
		Price:      dec("3000"),
		Buffer:     dec("0.01"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.Swap != nil {
		t.Fatalf("expected no swap at the exact buffer boundary, got %+v", proposal.Swap)
	}
}

func TestReconcileToken0Short(t *testing.T) {
	proposal, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("0.8"),
		Available1: dec("10000"),
		Price:      dec("3000"),
		Buffer:     dec("0.01"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.Swap == nil {
		t.Fatalf("expected a swap proposal")
	}
	if proposal.Swap.TokenIn.Symbol != "USDT" || proposal.Swap.TokenOut.Symbol != "WETH" {
		t.Fatalf("swap direction wrong: %s -> %s", proposal.Swap.TokenIn.Symbol, proposal.Swap.TokenOut.Symbol)
	}

	// shortfall = 1*1.01 - 0.8 = 0.21; amountIn = 0.21 * 3000 * 1.01.
	wantShort := dec("0.21")
	if !proposal.Shortfall0.Equal(wantShort) {
		t.Fatalf("shortfall0 = %s, want %s", proposal.Shortfall0, wantShort)
	}
	wantIn := wantShort.Mul(dec("3000")).Mul(dec("1.01"))
	if !proposal.Swap.AmountIn.Equal(wantIn) {
		t.Fatalf("amountIn = %s, want %s", proposal.Swap.AmountIn, wantIn)
	}
	if !proposal.Swap.ExpectedOut.Equal(wantShort) {
		t.Fatalf("expectedOut = %s, want %s", proposal.Swap.ExpectedOut, wantShort)
	}
	if proposal.NeedsConfirmation {
		t.Fatalf("21%% shortfall should not need confirmation")
	}
}

func TestReconcileToken1Short(t *testing.T) {
	proposal, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("3"),
		Available1: dec("2000"),
		Price:      dec("3000"),
		Buffer:     dec("0.01"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.Swap == nil {
		t.Fatalf("expected a swap proposal")
	}
	if proposal.Swap.TokenIn.Symbol != "WETH" || proposal.Swap.TokenOut.Symbol != "USDT" {
		t.Fatalf("swap direction wrong: %s -> %s", proposal.Swap.TokenIn.Symbol, proposal.Swap.TokenOut.Symbol)
	}

	// shortfall = 3000*1.01 - 2000 = 1030; amountIn ~ 1030/3000 * 1.01.
	if !proposal.Shortfall1.Equal(dec("1030")) {
		t.Fatalf("shortfall1 = %s, want 1030", proposal.Shortfall1)
	}
	wantIn := dec("1030").DivRound(dec("3000"), 40).Mul(dec("1.01"))
	if !proposal.Swap.AmountIn.Equal(wantIn) {
		t.Fatalf("amountIn = %s, want %s", proposal.Swap.AmountIn, wantIn)
	}
}

func TestReconcileLargeDeficiency(t *testing.T) {
	proposal, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("0.2"),
		Available1: dec("100000"),
		Price:      dec("3000"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !proposal.NeedsConfirmation {
		t.Fatalf("81%% shortfall must need confirmation")
	}
	if proposal.Warning == nil {
		t.Fatalf("expected warning details")
	}
	if proposal.Warning.Token.Symbol != "WETH" {
		t.Fatalf("warning token %s, want WETH", proposal.Warning.Token.Symbol)
	}
	if proposal.Swap == nil {
		t.Fatalf("proposal should still carry the sized swap")
	}
}

func TestReconcileBothShort(t *testing.T) {
	var insufficient *model.InsufficientBalanceError

	_, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("0.1"),
		Available1: dec("100"),
		Price:      dec("3000"),
	})
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
}

func TestReconcileSurplusCannotCover(t *testing.T) {
	var insufficient *model.InsufficientBalanceError

	_, err := Reconcile(Input{
		Pair:       testPair,
		Required0:  dec("1"),
		Required1:  dec("3000"),
		Available0: dec("0.5"),
		Available1: dec("3100"), // barely above buffered requirement
		Price:      dec("3000"),
	})
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError when surplus cannot fund the swap, got %v", err)
	}
}

func TestReconcileStaleQuote(t *testing.T) {
	now := time.Now()
	var stale *model.StaleQuoteError

	_, err := Reconcile(Input{
		Pair:        testPair,
		Required0:   dec("1"),
		Required1:   dec("3000"),
		Available0:  dec("0.5"),
		Available1:  dec("10000"),
		Price:       dec("3000"),
		SampledAt:   now.Add(-2 * time.Minute),
		Now:         now,
		MaxQuoteAge: time.Minute,
	})
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleQuoteError, got %v", err)
	}
	if stale.MaxAge != time.Minute {
		t.Fatalf("error carries max age %s, want 1m", stale.MaxAge)
	}
}

func TestReconcileFreshQuote(t *testing.T) {
	now := time.Now()

	proposal, err := Reconcile(Input{
		Pair:        testPair,
		Required0:   dec("1"),
		Required1:   dec("3000"),
		Available0:  dec("2"),
		Available1:  dec("4000"),
		Price:       dec("3000"),
		SampledAt:   now.Add(-10 * time.Second),
		Now:         now,
		MaxQuoteAge: time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.Swap != nil {
		t.Fatalf("expected no swap, got %+v", proposal.Swap)
	}
}
