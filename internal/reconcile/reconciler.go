// Package reconcile compares required deposit amounts against wallet
// balances and proposes the rebalancing swap that closes the gap.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

var (
	// DefaultBuffer and DefaultDeficiencyLimit apply when the caller
	// leaves the corresponding Input field zero.
	DefaultBuffer          = decimal.RequireFromString("0.01")
	DefaultDeficiencyLimit = decimal.RequireFromString("0.5")
	one                    = decimal.NewFromInt(1)
)

// Input is one reconciliation request. All amounts are human units; Price
// is token1 per token0 and must be fresher than MaxQuoteAge.
type Input struct {
	Pair      model.TokenPair
	Required0 decimal.Decimal
	Required1 decimal.Decimal

	Available0 decimal.Decimal
	Available1 decimal.Decimal

	Price     decimal.Decimal
	SampledAt time.Time
	Now       time.Time

	// Buffer is the safety margin on required amounts (default 1%).
	Buffer decimal.Decimal
	// DeficiencyLimit is the shortfall fraction above which the proposal
	// needs explicit confirmation (default 0.5).
	DeficiencyLimit decimal.Decimal
	// MaxQuoteAge is the price freshness window; zero disables the check.
	MaxQuoteAge time.Duration
}

// SwapIntent sizes the surplus-side swap covering the deficient token.
type SwapIntent struct {
	TokenIn     model.Token
	TokenOut    model.Token
	AmountIn    decimal.Decimal
	ExpectedOut decimal.Decimal
}

// Proposal is the reconciliation outcome. Swap is nil when balances already
// cover both buffered requirements.
type Proposal struct {
	Shortfall0 decimal.Decimal
	Shortfall1 decimal.Decimal
	Swap       *SwapIntent

	// NeedsConfirmation is set when the shortfall crosses the deficiency
	// limit; Warning carries the details for the caller to surface.
	NeedsConfirmation bool
	Warning           *model.LargeDeficiencyWarning
}

// Reconcile computes buffered shortfalls and, when exactly one side is
// short, sizes a swap from the surplus token. Both sides short means no
// swap can help and is reported as an insufficient balance.
func Reconcile(in Input) (Proposal, error) {
	buffer := in.Buffer
	if buffer.Sign() <= 0 {
		buffer = DefaultBuffer
	}
	limit := in.DeficiencyLimit
	if limit.Sign() <= 0 {
		limit = DefaultDeficiencyLimit
	}

	if in.MaxQuoteAge > 0 {
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		age := now.Sub(in.SampledAt)
		if in.SampledAt.IsZero() || age > in.MaxQuoteAge {
			return Proposal{}, &model.StaleQuoteError{
				SampledAt: in.SampledAt,
				Age:       age,
				MaxAge:    in.MaxQuoteAge,
			}
		}
	}

	buffered0 := in.Required0.Mul(one.Add(buffer))
	buffered1 := in.Required1.Mul(one.Add(buffer))

	proposal := Proposal{
		Shortfall0: shortfall(buffered0, in.Available0),
		Shortfall1: shortfall(buffered1, in.Available1),
	}

	short0 := proposal.Shortfall0.Sign() > 0
	short1 := proposal.Shortfall1.Sign() > 0

	if !short0 && !short1 {
		return proposal, nil
	}

	if short0 && short1 {
		// Pick the larger relative deficit for the report; a swap only
		// moves value between the two sides.
		token, required, available := in.Pair.Token0, buffered0, in.Available0
		if proposal.Shortfall1.GreaterThan(proposal.Shortfall0) {
			token, required, available = in.Pair.Token1, buffered1, in.Available1
		}
		return proposal, &model.InsufficientBalanceError{
			Token:     token,
			Required:  required,
			Available: available,
		}
	}

	if in.Price.Sign() <= 0 {
		return proposal, &model.DomainError{
			Quantity: "price",
			Value:    in.Price.String(),
			Reason:   "must be positive to size a rebalancing swap",
		}
	}

	if short0 {
		// Sell surplus token1 for the missing token0.
		amountIn := proposal.Shortfall0.Mul(in.Price).Mul(one.Add(buffer))
		surplus := in.Available1.Sub(buffered1)
		if surplus.LessThan(amountIn) {
			return proposal, &model.InsufficientBalanceError{
				Token:     in.Pair.Token1,
				Required:  buffered1.Add(amountIn),
				Available: in.Available1,
			}
		}
		proposal.Swap = &SwapIntent{
			TokenIn:     in.Pair.Token1,
			TokenOut:    in.Pair.Token0,
			AmountIn:    amountIn,
			ExpectedOut: proposal.Shortfall0,
		}
		flagLargeDeficiency(&proposal, in.Pair.Token0, proposal.Shortfall0, in.Required0, limit)
		return proposal, nil
	}

	// Sell surplus token0 for the missing token1.
	amountIn := proposal.Shortfall1.DivRound(in.Price, 40).Mul(one.Add(buffer))
	surplus := in.Available0.Sub(buffered0)
	if surplus.LessThan(amountIn) {
		return proposal, &model.InsufficientBalanceError{
			Token:     in.Pair.Token0,
			Required:  buffered0.Add(amountIn),
			Available: in.Available0,
		}
	}
	proposal.Swap = &SwapIntent{
		TokenIn:     in.Pair.Token0,
		TokenOut:    in.Pair.Token1,
		AmountIn:    amountIn,
		ExpectedOut: proposal.Shortfall1,
	}
	flagLargeDeficiency(&proposal, in.Pair.Token1, proposal.Shortfall1, in.Required1, limit)
	return proposal, nil
}

func shortfall(required, available decimal.Decimal) decimal.Decimal {
	gap := required.Sub(available)
	if gap.Sign() < 0 {
		return decimal.Zero
	}
	return gap
}

func flagLargeDeficiency(p *Proposal, token model.Token, short, required, limit decimal.Decimal) {
	if required.Sign() <= 0 {
		return
	}
	if short.GreaterThan(required.Mul(limit)) {
		p.NeedsConfirmation = true
		p.Warning = &model.LargeDeficiencyWarning{
			Token:     token,
			Shortfall: short,
			Required:  required,
			Fraction:  limit,
		}
	}
}
