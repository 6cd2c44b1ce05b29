package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// DomainError reports invalid math input (bad price, out-of-bounds tick).
type DomainError struct {
	Quantity string
	Value    string
	Reason   string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Quantity, e.Value, e.Reason)
}

// InvalidSpacingError reports a non-positive tick spacing.
type InvalidSpacingError struct {
	Spacing int
}

func (e *InvalidSpacingError) Error() string {
	return fmt.Sprintf("tick spacing %d must be greater than zero", e.Spacing)
}

// PrecisionLossError reports a human amount with more fractional digits than
// the token supports.
type PrecisionLossError struct {
	Amount   decimal.Decimal
	Decimals uint8
}

func (e *PrecisionLossError) Error() string {
	return fmt.Sprintf("amount %s does not fit in %d decimals without truncation", e.Amount, e.Decimals)
}

// AmbiguousInputError reports that not exactly one desired amount was given.
type AmbiguousInputError struct {
	Amount0Given bool
	Amount1Given bool
}

func (e *AmbiguousInputError) Error() string {
	if e.Amount0Given && e.Amount1Given {
		return "exactly one desired amount must be given, got both"
	}
	return "exactly one desired amount must be given, got neither"
}

// InvalidRangeError reports a percentage or tick range with lower >= upper.
type InvalidRangeError struct {
	Lower  decimal.Decimal
	Upper  decimal.Decimal
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%s, %s]: %s", e.Lower, e.Upper, e.Reason)
}

// PositionOutOfRangeMismatchError reports a desired amount on the side the
// range cannot hold (single-sided position, wrong token supplied).
type PositionOutOfRangeMismatchError struct {
	PositionType PositionType
	CurrentTick  int
	TickLower    int
	TickUpper    int
	GivenSide    int // 0 or 1
}

func (e *PositionOutOfRangeMismatchError) Error() string {
	return fmt.Sprintf("position is %s at tick %d for range [%d, %d): a token%d-only input cannot be paired",
		e.PositionType, e.CurrentTick, e.TickLower, e.TickUpper, e.GivenSide)
}

// StaleQuoteError reports a price sample older than the freshness window.
type StaleQuoteError struct {
	SampledAt time.Time
	Age       time.Duration
	MaxAge    time.Duration
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("price sample from %s is %s old, freshness window is %s",
		e.SampledAt.Format(time.RFC3339), e.Age.Round(time.Millisecond), e.MaxAge)
}

// LargeDeficiencyWarning is recoverable: the proposed rebalancing swap is
// large enough to require explicit caller confirmation.
type LargeDeficiencyWarning struct {
	Token     Token
	Shortfall decimal.Decimal
	Required  decimal.Decimal
	Fraction  decimal.Decimal
}

func (e *LargeDeficiencyWarning) Error() string {
	return fmt.Sprintf("%s shortfall %s exceeds %s of required %s, confirmation required",
		e.Token.Symbol, e.Shortfall, e.Fraction, e.Required)
}

// InsufficientBalanceError reports a deficit no rebalancing swap can cover.
type InsufficientBalanceError struct {
	Token     Token
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, have %s",
		e.Token.Symbol, e.Required, e.Available)
}

// SlippageExceededError reports a quoted or settled amount outside the
// caller's tolerance. Phase is "quote" (pre-submission) or "settlement".
type SlippageExceededError struct {
	Phase          string
	Quoted         decimal.Decimal
	Actual         decimal.Decimal
	MaxSlippageBps uint32
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("swap %s %s below quoted %s with %d bps tolerance",
		e.Phase, e.Actual, e.Quoted, e.MaxSlippageBps)
}

// GasPriceExceededError is raised before any submission; no funds at risk.
type GasPriceExceededError struct {
	Current *big.Int
	Max     *big.Int
}

func (e *GasPriceExceededError) Error() string {
	return fmt.Sprintf("gas price %s wei exceeds cap %s wei", e.Current, e.Max)
}

// VerificationMismatchError reports post-execution on-chain state that does
// not match the plan. It is reported, never auto-corrected.
type VerificationMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("verification mismatch on %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// TimeoutError reports a deadline hit during a mutating step. The caller
// must reconcile on-chain truth: the transaction may still have landed.
type TimeoutError struct {
	State  ExecutionState
	TxHash string
}

func (e *TimeoutError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("timed out in state %s before submission", e.State)
	}
	return fmt.Sprintf("timed out in state %s waiting for tx %s", e.State, e.TxHash)
}

// OnChainRevertError wraps a chain-reported transaction failure.
type OnChainRevertError struct {
	Op     string
	TxHash string
	Reason string
}

func (e *OnChainRevertError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("%s reverted: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s reverted (tx %s): %s", e.Op, e.TxHash, e.Reason)
}
