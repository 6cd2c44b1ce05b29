package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPilot/internal/chain"
	"liquidityPilot/internal/executor"
	"liquidityPilot/internal/model"
	"liquidityPilot/internal/univ3"
)

// ReaderConfig wires a Reader to the V3 deployment it talks to.
type ReaderConfig struct {
	Factory         common.Address
	PositionManager common.Address
	Quoter          common.Address
	MaxRetries      int
	RetryBackoff    time.Duration
}

// Reader serves read-only chain state for the orchestrator. All RPC reads
// go through a bounded exponential backoff; metadata lookups are cached.
type Reader struct {
	client *chain.Client
	cfg    ReaderConfig
	tokens *TokenMetaCache
	pools  *PoolCache
	logger *zap.Logger
	now    func() time.Time
}

func NewReader(client *chain.Client, cfg ReaderConfig, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		client: client,
		cfg:    cfg,
		tokens: NewTokenMetaCache(),
		pools:  NewPoolCache(),
		logger: logger,
		now:    time.Now,
	}
}

// ResolveToken returns token metadata, fetching and caching it on first use.
func (r *Reader) ResolveToken(ctx context.Context, address common.Address) (model.Token, error) {
	if token, ok := r.tokens.Get(address); ok {
		return token, nil
	}

	var token model.Token
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		token, err = FetchToken(ctx, r.client, address, r.logger)
		return err
	})
	if err != nil {
		return model.Token{}, fmt.Errorf("fetch token %s: %w", address.Hex(), err)
	}
	r.tokens.Set(address, token)
	return token, nil
}

// PoolState samples slot0 of the pair's pool. The returned pair follows the
// pool's canonical token ordering.
func (r *Reader) PoolState(ctx context.Context, pair model.TokenPair, feeTier uint32) (executor.PoolState, error) {
	canon, _ := pair.Canonical()

	entry, err := r.resolvePool(ctx, canon, feeTier)
	if err != nil {
		return executor.PoolState{}, err
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return executor.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var values []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, entry.Address, poolABI, "slot0", nil)
		return err
	})
	if err != nil {
		return executor.PoolState{}, fmt.Errorf("pool %s slot0: %w", entry.Address.Hex(), err)
	}
	if len(values) < 2 {
		return executor.PoolState{}, fmt.Errorf("pool %s slot0: short response", entry.Address.Hex())
	}

	sqrtPriceX96, err := asBigInt(values[0])
	if err != nil {
		return executor.PoolState{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return executor.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return executor.PoolState{}, fmt.Errorf("tick: %w", err)
	}

	return executor.PoolState{
		Pool:        entry.Address,
		Pair:        canon,
		FeeTier:     feeTier,
		TickSpacing: entry.TickSpacing,
		Tick:        int(tick),
		NativePrice: univ3.SqrtPriceX96ToPrice(sqrtPriceX96, 0, 0),
		HumanPrice:  univ3.SqrtPriceX96ToPrice(sqrtPriceX96, canon.Token0.Decimals, canon.Token1.Decimals),
		SampledAt:   r.now(),
	}, nil
}

// BalanceOf returns the owner's ERC20 balance in human units.
func (r *Reader) BalanceOf(ctx context.Context, token model.Token, owner common.Address) (decimal.Decimal, error) {
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse erc20 abi: %w", err)
	}

	var values []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, token.Address, erc20, "balanceOf", nil, owner)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", token.Symbol, err)
	}

	raw, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", token.Symbol, err)
	}
	return univ3.DenormalizeAmount(raw, token.Decimals), nil
}

// PositionInfo reads the position manager record for a token id.
func (r *Reader) PositionInfo(ctx context.Context, id *big.Int) (model.PositionInfo, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	var values []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, r.cfg.PositionManager, managerABI, "positions", nil, id)
		return err
	})
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("positions(%s): %w", id, err)
	}
	if len(values) < 12 {
		return model.PositionInfo{}, fmt.Errorf("positions(%s): short response", id)
	}

	token0Addr, err := asAddress(values[2])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("token0: %w", err)
	}
	token1Addr, err := asAddress(values[3])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(values[4])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("fee: %w", err)
	}
	tickLowerInt, err := asBigInt(values[5])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tickLower: %w", err)
	}
	tickLower, err := int24FromBig(tickLowerInt)
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tickLower: %w", err)
	}
	tickUpperInt, err := asBigInt(values[6])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tickUpper: %w", err)
	}
	tickUpper, err := int24FromBig(tickUpperInt)
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tickUpper: %w", err)
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	token0, err := r.ResolveToken(ctx, token0Addr)
	if err != nil {
		return model.PositionInfo{}, err
	}
	token1, err := r.ResolveToken(ctx, token1Addr)
	if err != nil {
		return model.PositionInfo{}, err
	}

	return model.PositionInfo{
		ID:        new(big.Int).Set(id),
		Token0:    token0,
		Token1:    token1,
		FeeTier:   uint32(feeInt.Uint64()),
		TickLower: int(tickLower),
		TickUpper: int(tickUpper),
		Liquidity: liquidity,
		OwedFees0: univ3.DenormalizeAmount(owed0, token0.Decimals),
		OwedFees1: univ3.DenormalizeAmount(owed1, token1.Decimals),
	}, nil
}

// QuoteExactInput simulates an exact-input swap through the QuoterV2
// contract and returns the live output in human units.
func (r *Reader) QuoteExactInput(ctx context.Context, tokenIn, tokenOut model.Token, feeTier uint32, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if r.cfg.Quoter == (common.Address{}) {
		return decimal.Zero, fmt.Errorf("quoter address is not configured")
	}

	rawIn, err := univ3.NormalizeAmount(amountIn, tokenIn.Decimals)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote amount in: %w", err)
	}

	parsed, err := QuoterABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quoter abi: %w", err)
	}
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		AmountIn:          rawIn,
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	var values []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, r.cfg.Quoter, parsed, "quoteExactInputSingle", nil, params)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote %s -> %s: %w", tokenIn.Symbol, tokenOut.Symbol, err)
	}
	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("quote %s -> %s: empty response", tokenIn.Symbol, tokenOut.Symbol)
	}

	rawOut, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("amountOut: %w", err)
	}
	return univ3.DenormalizeAmount(rawOut, tokenOut.Decimals), nil
}

// GasPrice returns the node's gas price suggestion in wei.
func (r *Reader) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		price, err = r.client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (r *Reader) resolvePool(ctx context.Context, pair model.TokenPair, feeTier uint32) (PoolEntry, error) {
	if entry, ok := r.pools.Get(pair.Token0.Address, pair.Token1.Address, feeTier); ok {
		return entry, nil
	}

	factoryABI, err := V3FactoryABI()
	if err != nil {
		return PoolEntry{}, fmt.Errorf("parse factory abi: %w", err)
	}

	var values []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, r.cfg.Factory, factoryABI, "getPool", nil,
			pair.Token0.Address, pair.Token1.Address, big.NewInt(int64(feeTier)))
		return err
	})
	if err != nil {
		return PoolEntry{}, fmt.Errorf("getPool(%s, %s, %d): %w",
			pair.Token0.Symbol, pair.Token1.Symbol, feeTier, err)
	}

	pool, err := asAddress(values[0])
	if err != nil {
		return PoolEntry{}, fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return PoolEntry{}, fmt.Errorf("no %s/%s pool at fee tier %d",
			pair.Token0.Symbol, pair.Token1.Symbol, feeTier)
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolEntry{}, fmt.Errorf("parse pool abi: %w", err)
	}
	var spacingValues []interface{}
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		spacingValues, err = callMethod(ctx, r.client, pool, poolABI, "tickSpacing", nil)
		return err
	})
	if err != nil {
		return PoolEntry{}, fmt.Errorf("pool %s tickSpacing: %w", pool.Hex(), err)
	}
	spacingInt, err := asBigInt(spacingValues[0])
	if err != nil {
		return PoolEntry{}, fmt.Errorf("tickSpacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return PoolEntry{}, fmt.Errorf("tickSpacing: %w", err)
	}

	entry := PoolEntry{Address: pool, TickSpacing: int(spacing)}
	r.pools.Set(pair.Token0.Address, pair.Token1.Address, feeTier, entry)
	r.logger.Debug("pool resolved",
		zap.String("pool", pool.Hex()),
		zap.String("token0", pair.Token0.Symbol),
		zap.String("token1", pair.Token1.Symbol),
		zap.Uint32("fee", feeTier),
	)
	return entry, nil
}

func (r *Reader) retry(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := r.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := r.cfg.RetryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
