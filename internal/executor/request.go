package executor

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// Op selects the position operation.
type Op int

const (
	OpAdd Op = iota
	OpRemove
	OpMigrate
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpMigrate:
		return "migrate"
	default:
		return "unknown"
	}
}

// Request describes one position operation. Percentages are fractions
// (-0.05 = -5%); amounts are human units.
type Request struct {
	Op      Op
	Pair    model.TokenPair
	FeeTier uint32

	// Range selection: either explicit pool-native ticks or a percentage
	// band around the sampled current price.
	Range    *model.PriceRange
	PctLower decimal.Decimal
	PctUpper decimal.Decimal

	// Add: exactly one desired amount, the other side is solved.
	Amount0Desired *decimal.Decimal
	Amount1Desired *decimal.Decimal

	// Remove and migrate.
	PositionID  *big.Int
	Percentage  decimal.Decimal // (0, 100], zero means 100
	CollectFees bool
	Burn        bool

	// ConfirmLargeSwap acknowledges a LargeDeficiencyWarning ahead of time.
	ConfirmLargeSwap bool
}

func (r Request) validate() error {
	switch r.Op {
	case OpAdd:
		if r.Pair.Token0.Address == r.Pair.Token1.Address {
			return fmt.Errorf("token pair must hold two distinct tokens")
		}
	case OpRemove, OpMigrate:
		if r.PositionID == nil {
			return fmt.Errorf("position id is required for %s", r.Op)
		}
	default:
		return fmt.Errorf("unsupported operation %d", r.Op)
	}

	if !r.Percentage.IsZero() {
		if r.Percentage.Sign() <= 0 || r.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage %s must be in (0, 100]", r.Percentage)
		}
	}
	return nil
}

// percentageOrFull returns the removal percentage, defaulting to 100.
func (r Request) percentageOrFull() decimal.Decimal {
	if r.Percentage.IsZero() {
		return decimal.NewFromInt(100)
	}
	return r.Percentage
}
