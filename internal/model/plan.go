package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LiquidityAction is the kind of liquidity step inside an execution plan.
type LiquidityAction int

const (
	ActionAdd LiquidityAction = iota
	ActionRemove
)

func (a LiquidityAction) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// SwapStep rebalances wallet holdings before the liquidity step.
type SwapStep struct {
	TokenIn   Token           `json:"token_in"`
	TokenOut  Token           `json:"token_out"`
	FeeTier   uint32          `json:"fee_tier"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	QuotedOut decimal.Decimal `json:"quoted_out"`
	MinOut    decimal.Decimal `json:"min_out"`
}

// LiquidityStep is one add or remove action against the position manager.
type LiquidityStep struct {
	Action      LiquidityAction `json:"action"`
	Pair        TokenPair       `json:"pair"`
	Range       PriceRange      `json:"range"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	PositionID  *big.Int        `json:"position_id,omitempty"`
	Percentage  decimal.Decimal `json:"percentage,omitempty"`
	CollectFees bool            `json:"collect_fees,omitempty"`
	Burn        bool            `json:"burn,omitempty"`
}

// ExecutionPlan is built once per run and never re-planned after a step
// starts. Migrate carries two liquidity steps (remove, then add).
type ExecutionPlan struct {
	Swap      *SwapStep       `json:"swap,omitempty"`
	Liquidity []LiquidityStep `json:"liquidity"`
}

// ExecutionState is the orchestration state machine position.
type ExecutionState int

const (
	StatePlanned ExecutionState = iota
	StateBalanceChecked
	StateSwapping
	StateLiquidityPending
	StateVerified
	StateCompleted
	StateFailed
	StateDryRunCompleted
)

func (s ExecutionState) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateBalanceChecked:
		return "balance_checked"
	case StateSwapping:
		return "swapping"
	case StateLiquidityPending:
		return "liquidity_pending"
	case StateVerified:
		return "verified"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDryRunCompleted:
		return "dry_run_completed"
	default:
		return "unknown"
	}
}

// TxResult is what the chain writer reports for one submitted transaction.
type TxResult struct {
	Hash       string
	PositionID *big.Int
	Liquidity  *big.Int
	Amount0    decimal.Decimal
	Amount1    decimal.Decimal
	AmountOut  decimal.Decimal
	GasUsed    uint64
}

// ExecutionResult is the structured outcome of one orchestration run.
type ExecutionResult struct {
	State            ExecutionState  `json:"state"`
	Plan             ExecutionPlan   `json:"plan"`
	Quote            AmountQuote     `json:"quote"`
	Range            PriceRange      `json:"range"`
	RealizedPctLower decimal.Decimal `json:"realized_pct_lower"`
	RealizedPctUpper decimal.Decimal `json:"realized_pct_upper"`
	PositionID       *big.Int        `json:"position_id,omitempty"`
	TxHashes         []string        `json:"tx_hashes,omitempty"`
	Amount0          decimal.Decimal `json:"amount0"`
	Amount1          decimal.Decimal `json:"amount1"`
}
