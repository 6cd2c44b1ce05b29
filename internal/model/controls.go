package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// SafetyControls bound a single orchestration run. Validated once and then
// threaded through unchanged.
type SafetyControls struct {
	MaxSlippageBps  uint32   `json:"max_slippage_bps"`
	MaxGasPrice     *big.Int `json:"max_gas_price,omitempty"` // wei, nil = no cap
	DeadlineMinutes uint32   `json:"deadline_minutes"`
	DryRun          bool     `json:"dry_run"`
}

func (c SafetyControls) Validate() error {
	if c.MaxSlippageBps >= bpsDenominator {
		return fmt.Errorf("max slippage %d bps must be below %d", c.MaxSlippageBps, bpsDenominator)
	}
	if c.DeadlineMinutes == 0 {
		return fmt.Errorf("deadline minutes must be greater than zero")
	}
	if c.MaxGasPrice != nil && c.MaxGasPrice.Sign() <= 0 {
		return fmt.Errorf("max gas price must be positive")
	}
	return nil
}

// MinAmounts applies the slippage floor to raw deposit amounts.
func (c SafetyControls) MinAmounts(amount0, amount1 *big.Int) (*big.Int, *big.Int) {
	return applySlippageFloor(amount0, c.MaxSlippageBps), applySlippageFloor(amount1, c.MaxSlippageBps)
}

// MinOut applies the slippage floor to a quoted human-unit amount.
func (c SafetyControls) MinOut(quoted decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(bpsDenominator - int64(c.MaxSlippageBps)).
		Div(decimal.NewFromInt(bpsDenominator))
	return quoted.Mul(factor)
}

func applySlippageFloor(amount *big.Int, slippageBps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(bpsDenominator-int64(slippageBps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}
