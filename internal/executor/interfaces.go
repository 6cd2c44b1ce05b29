package executor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"liquidityPilot/internal/model"
)

// PoolState is one sampled pool snapshot. Tick and NativePrice are in the
// pool's own raw-unit space (the space planned ticks are submitted in);
// HumanPrice is the decimal-adjusted token1/token0 price.
type PoolState struct {
	Pool        common.Address
	Pair        model.TokenPair
	FeeTier     uint32
	TickSpacing int
	Tick        int
	NativePrice decimal.Decimal
	HumanPrice  decimal.Decimal
	SampledAt   time.Time
}

// ChainReader is the read-only chain collaborator. Balances are reported in
// human units.
type ChainReader interface {
	PoolState(ctx context.Context, pair model.TokenPair, feeTier uint32) (PoolState, error)
	BalanceOf(ctx context.Context, token model.Token, owner common.Address) (decimal.Decimal, error)
	PositionInfo(ctx context.Context, id *big.Int) (model.PositionInfo, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	// QuoteExactInput returns the live quoter output for an exact-input
	// swap, in human units.
	QuoteExactInput(ctx context.Context, tokenIn, tokenOut model.Token, feeTier uint32, amountIn decimal.Decimal) (decimal.Decimal, error)
}

// SwapOrder is a bounded exact-input swap. Amounts are raw units.
type SwapOrder struct {
	TokenIn      model.Token
	TokenOut     model.Token
	FeeTier      uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     time.Time
}

// AddOrder mints a new position. Amounts are raw units; Range carries
// pool-native ticks.
type AddOrder struct {
	Pair           model.TokenPair
	Range          model.PriceRange
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       time.Time
}

// RemoveOrder burns liquidity out of an existing position.
type RemoveOrder struct {
	PositionID  *big.Int
	Liquidity   *big.Int
	CollectFees bool
	Burn        bool
	Deadline    time.Time
}

// ChainWriter submits mutating transactions. Implementations return typed
// failures (OnChainRevertError, context deadline) and fill TxResult.Hash as
// soon as a transaction is accepted, even when the wait afterwards fails.
type ChainWriter interface {
	SubmitSwap(ctx context.Context, order SwapOrder) (model.TxResult, error)
	SubmitAddLiquidity(ctx context.Context, order AddOrder) (model.TxResult, error)
	SubmitRemoveLiquidity(ctx context.Context, order RemoveOrder) (model.TxResult, error)
}
