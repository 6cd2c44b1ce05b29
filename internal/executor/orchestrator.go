// Package executor drives the position state machine: quote, balance
// check, optional rebalancing swap, liquidity action, verification. Each
// on-chain step completes (or fails) before the next is sized; mutating
// steps are never retried automatically.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPilot/internal/model"
	"liquidityPilot/internal/reconcile"
	"liquidityPilot/internal/univ3"
)

// Options tune one orchestrator instance.
type Options struct {
	Owner common.Address
	// Buffer is the reconciliation safety margin (default 1%).
	Buffer decimal.Decimal
	// DeficiencyLimit is the confirmation threshold (default 0.5).
	DeficiencyLimit decimal.Decimal
	// MaxQuoteAge is the price freshness window; zero disables the check.
	MaxQuoteAge time.Duration
}

// Orchestrator runs one position operation at a time. Independent runs may
// execute concurrently as long as they do not target the same position or
// wallet nonce sequence.
type Orchestrator struct {
	reader ChainReader
	writer ChainWriter
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func New(reader ChainReader, writer ChainWriter, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		reader: reader,
		writer: writer,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// PlanAndExecute validates the request, builds an execution plan and runs
// it under the supplied safety controls. The plan is never rebuilt after a
// step starts; a failed run requires a fresh call.
func (o *Orchestrator) PlanAndExecute(ctx context.Context, req Request, controls model.SafetyControls) (*model.ExecutionResult, error) {
	if err := controls.Validate(); err != nil {
		return nil, fmt.Errorf("safety controls: %w", err)
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	switch req.Op {
	case OpAdd:
		return o.runAdd(ctx, req, controls)
	case OpRemove:
		return o.runRemove(ctx, req, controls)
	case OpMigrate:
		return o.runMigrate(ctx, req, controls)
	default:
		return nil, fmt.Errorf("unsupported operation %d", req.Op)
	}
}

// Quote runs the pure planning path only: pool sample, range plan, amount
// solve. Nothing is submitted and no balances are read.
func (o *Orchestrator) Quote(ctx context.Context, req Request) (model.AmountQuote, univ3.RangePlan, PoolState, error) {
	pool, err := o.reader.PoolState(ctx, req.Pair, req.FeeTier)
	if err != nil {
		return model.AmountQuote{}, univ3.RangePlan{}, PoolState{}, fmt.Errorf("read pool state: %w", err)
	}

	rangePlan, err := o.resolveRange(pool, req)
	if err != nil {
		return model.AmountQuote{}, univ3.RangePlan{}, pool, err
	}

	quote, err := o.solveHuman(pool, rangePlan.Range, req.Amount0Desired, req.Amount1Desired)
	if err != nil {
		return model.AmountQuote{}, univ3.RangePlan{}, pool, err
	}
	return quote, rangePlan, pool, nil
}

func (o *Orchestrator) runAdd(ctx context.Context, req Request, controls model.SafetyControls) (*model.ExecutionResult, error) {
	res := &model.ExecutionResult{State: model.StatePlanned}
	fail := func(err error) (*model.ExecutionResult, error) {
		res.State = model.StateFailed
		return res, err
	}

	pool, err := o.reader.PoolState(ctx, req.Pair, req.FeeTier)
	if err != nil {
		return fail(fmt.Errorf("read pool state: %w", err))
	}
	if err := o.checkFreshness(pool); err != nil {
		return fail(err)
	}

	rangePlan, err := o.resolveRange(pool, req)
	if err != nil {
		return fail(err)
	}
	res.Range = rangePlan.Range
	res.RealizedPctLower = rangePlan.RealizedPctLower
	res.RealizedPctUpper = rangePlan.RealizedPctUpper

	quote, err := o.solveHuman(pool, rangePlan.Range, req.Amount0Desired, req.Amount1Desired)
	if err != nil {
		return fail(err)
	}
	res.Quote = quote

	bal0, bal1, err := o.readBalances(ctx, pool.Pair)
	if err != nil {
		return fail(err)
	}

	proposal, err := reconcile.Reconcile(reconcile.Input{
		Pair:            pool.Pair,
		Required0:       quote.Amount0,
		Required1:       quote.Amount1,
		Available0:      bal0,
		Available1:      bal1,
		Price:           pool.HumanPrice,
		SampledAt:       pool.SampledAt,
		Now:             o.now(),
		Buffer:          o.opts.Buffer,
		DeficiencyLimit: o.opts.DeficiencyLimit,
		MaxQuoteAge:     o.opts.MaxQuoteAge,
	})
	if err != nil {
		return fail(err)
	}
	res.State = model.StateBalanceChecked

	if proposal.NeedsConfirmation && !req.ConfirmLargeSwap {
		return fail(proposal.Warning)
	}

	plan := model.ExecutionPlan{
		Liquidity: []model.LiquidityStep{{
			Action:  model.ActionAdd,
			Pair:    pool.Pair,
			Range:   rangePlan.Range,
			Amount0: quote.Amount0,
			Amount1: quote.Amount1,
		}},
	}
	if proposal.Swap != nil {
		plan.Swap = &model.SwapStep{
			TokenIn:   proposal.Swap.TokenIn,
			TokenOut:  proposal.Swap.TokenOut,
			FeeTier:   req.FeeTier,
			AmountIn:  proposal.Swap.AmountIn,
			QuotedOut: proposal.Swap.ExpectedOut,
			MinOut:    controls.MinOut(proposal.Swap.ExpectedOut),
		}
	}
	res.Plan = plan

	if controls.DryRun {
		res.State = model.StateDryRunCompleted
		o.logger.Info("dry run completed",
			zap.String("op", req.Op.String()),
			zap.Int("tick_lower", rangePlan.Range.TickLower),
			zap.Int("tick_upper", rangePlan.Range.TickUpper),
			zap.Bool("swap_planned", plan.Swap != nil),
		)
		return res, nil
	}

	if err := o.checkGas(ctx, controls); err != nil {
		return fail(err)
	}
	deadline := o.now().Add(time.Duration(controls.DeadlineMinutes) * time.Minute)
	// The same deadline bounds both the contract parameter and the local
	// receipt wait, so a stuck transaction cannot block forever.
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	required0, required1 := quote.Amount0, quote.Amount1
	if plan.Swap != nil {
		var swapErr error
		res.State = model.StateSwapping
		required0, required1, swapErr = o.executeSwap(execCtx, res, plan.Swap, pool.Pair, controls, deadline, required0, required1)
		if swapErr != nil {
			res.State = model.StateFailed
			return res, swapErr
		}
	}

	if err := o.checkGas(ctx, controls); err != nil {
		return fail(err)
	}
	res.State = model.StateLiquidityPending

	order, err := buildAddOrder(pool.Pair, rangePlan.Range, required0, required1, controls, deadline)
	if err != nil {
		return fail(err)
	}
	txr, err := o.writer.SubmitAddLiquidity(execCtx, order)
	if txr.Hash != "" {
		res.TxHashes = append(res.TxHashes, txr.Hash)
	}
	if err != nil {
		return fail(submitFailure(model.StateLiquidityPending, txr.Hash, err))
	}
	o.logger.Info("liquidity added",
		zap.String("tx", txr.Hash),
		zap.String("position_id", txr.PositionID.String()),
		zap.String("amount0", txr.Amount0.String()),
		zap.String("amount1", txr.Amount1.String()),
	)

	if err := o.verifyPosition(ctx, txr.PositionID, rangePlan.Range); err != nil {
		return fail(err)
	}
	res.State = model.StateVerified

	res.PositionID = txr.PositionID
	res.Amount0 = txr.Amount0
	res.Amount1 = txr.Amount1
	res.State = model.StateCompleted
	return res, nil
}

// executeSwap quotes the swap live, submits it with a minimum derived from
// that quote, validates settlement slippage and re-sizes the liquidity
// amounts from the post-swap balances.
func (o *Orchestrator) executeSwap(
	ctx context.Context,
	res *model.ExecutionResult,
	step *model.SwapStep,
	pair model.TokenPair,
	controls model.SafetyControls,
	deadline time.Time,
	required0, required1 decimal.Decimal,
) (decimal.Decimal, decimal.Decimal, error) {
	amountIn := step.AmountIn.RoundDown(int32(step.TokenIn.Decimals))

	// The planned output is a price-derived estimate; the quoter walks the
	// pool's actual tick state. A live quote below the planned floor means
	// the price moved past the tolerance since planning.
	liveOut, err := o.reader.QuoteExactInput(ctx, step.TokenIn, step.TokenOut, step.FeeTier, amountIn)
	if err != nil {
		return required0, required1, fmt.Errorf("quote swap: %w", err)
	}
	if liveOut.LessThan(step.MinOut) {
		return required0, required1, &model.SlippageExceededError{
			Phase:          "quote",
			Quoted:         step.QuotedOut,
			Actual:         liveOut,
			MaxSlippageBps: controls.MaxSlippageBps,
		}
	}

	rawIn, err := univ3.NormalizeAmount(amountIn, step.TokenIn.Decimals)
	if err != nil {
		return required0, required1, err
	}
	minOut := controls.MinOut(liveOut).RoundDown(int32(step.TokenOut.Decimals))
	rawMinOut, err := univ3.NormalizeAmount(minOut, step.TokenOut.Decimals)
	if err != nil {
		return required0, required1, err
	}

	txr, err := o.writer.SubmitSwap(ctx, SwapOrder{
		TokenIn:      step.TokenIn,
		TokenOut:     step.TokenOut,
		FeeTier:      step.FeeTier,
		AmountIn:     rawIn,
		MinAmountOut: rawMinOut,
		Deadline:     deadline,
	})
	if txr.Hash != "" {
		res.TxHashes = append(res.TxHashes, txr.Hash)
	}
	if err != nil {
		return required0, required1, submitFailure(model.StateSwapping, txr.Hash, err)
	}

	if txr.AmountOut.LessThan(minOut) {
		return required0, required1, &model.SlippageExceededError{
			Phase:          "settlement",
			Quoted:         step.QuotedOut,
			Actual:         txr.AmountOut,
			MaxSlippageBps: controls.MaxSlippageBps,
		}
	}
	o.logger.Info("rebalancing swap settled",
		zap.String("tx", txr.Hash),
		zap.String("amount_in", amountIn.String()),
		zap.String("quoted_out", liveOut.String()),
		zap.String("amount_out", txr.AmountOut.String()),
	)

	// The balance snapshot is advisory; re-read before sizing the deposit
	// so external mutations and swap rounding are both absorbed.
	bal0, bal1, err := o.readBalances(ctx, pair)
	if err != nil {
		return required0, required1, err
	}
	return decimal.Min(required0, bal0), decimal.Min(required1, bal1), nil
}

func (o *Orchestrator) verifyPosition(ctx context.Context, id *big.Int, want model.PriceRange) error {
	info, err := o.reader.PositionInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("verify position %s: %w", id, err)
	}
	if info.TickLower != want.TickLower {
		return &model.VerificationMismatchError{
			Field: "tick_lower",
			Want:  fmt.Sprint(want.TickLower),
			Got:   fmt.Sprint(info.TickLower),
		}
	}
	if info.TickUpper != want.TickUpper {
		return &model.VerificationMismatchError{
			Field: "tick_upper",
			Want:  fmt.Sprint(want.TickUpper),
			Got:   fmt.Sprint(info.TickUpper),
		}
	}
	if info.Liquidity == nil || info.Liquidity.Sign() <= 0 {
		return &model.VerificationMismatchError{
			Field: "liquidity",
			Want:  "> 0",
			Got:   fmt.Sprint(info.Liquidity),
		}
	}
	return nil
}

// resolveRange turns the request's range selection into a realized plan.
// Explicit ticks are rounded outward onto the fee tier's grid.
func (o *Orchestrator) resolveRange(pool PoolState, req Request) (univ3.RangePlan, error) {
	if req.Range == nil {
		return univ3.PlanRange(univ3.RangeRequest{
			CurrentPrice: pool.NativePrice,
			PctLower:     req.PctLower,
			PctUpper:     req.PctUpper,
			FeeTier:      req.FeeTier,
		})
	}

	spacing, err := univ3.SpacingForFee(req.FeeTier)
	if err != nil {
		return univ3.RangePlan{}, err
	}
	tickLower, err := univ3.RoundToSpacing(req.Range.TickLower, spacing, true)
	if err != nil {
		return univ3.RangePlan{}, err
	}
	tickUpper, err := univ3.RoundToSpacing(req.Range.TickUpper, spacing, false)
	if err != nil {
		return univ3.RangePlan{}, err
	}
	if tickLower >= tickUpper {
		return univ3.RangePlan{}, &model.InvalidRangeError{
			Lower:  decimal.NewFromInt(int64(req.Range.TickLower)),
			Upper:  decimal.NewFromInt(int64(req.Range.TickUpper)),
			Reason: "tick range is empty after spacing alignment",
		}
	}

	priceLower, err := univ3.TickToPrice(tickLower)
	if err != nil {
		return univ3.RangePlan{}, err
	}
	priceUpper, err := univ3.TickToPrice(tickUpper)
	if err != nil {
		return univ3.RangePlan{}, err
	}

	plan := univ3.RangePlan{
		Range: model.PriceRange{
			TickLower: tickLower,
			TickUpper: tickUpper,
			FeeTier:   req.FeeTier,
		},
		PriceLower: priceLower,
		PriceUpper: priceUpper,
	}
	if pool.NativePrice.Sign() > 0 {
		one := decimal.NewFromInt(1)
		plan.RealizedPctLower = priceLower.DivRound(pool.NativePrice, 40).Sub(one)
		plan.RealizedPctUpper = priceUpper.DivRound(pool.NativePrice, 40).Sub(one)
		plan.RequestedPctLower = plan.RealizedPctLower
		plan.RequestedPctUpper = plan.RealizedPctUpper
	}
	return plan, nil
}

// solveHuman runs the solver in pool-native space and converts the result
// back to human units. Decimals touch only the unit conversion, never the
// price math.
func (o *Orchestrator) solveHuman(pool PoolState, r model.PriceRange, desired0, desired1 *decimal.Decimal) (model.AmountQuote, error) {
	raw0, err := rawAmount(desired0, pool.Pair.Token0.Decimals)
	if err != nil {
		return model.AmountQuote{}, err
	}
	raw1, err := rawAmount(desired1, pool.Pair.Token1.Decimals)
	if err != nil {
		return model.AmountQuote{}, err
	}

	rawQuote, err := univ3.SolveAmounts(univ3.SolveInput{
		CurrentTick:    pool.Tick,
		TickLower:      r.TickLower,
		TickUpper:      r.TickUpper,
		Amount0Desired: raw0,
		Amount1Desired: raw1,
	})
	if err != nil {
		return model.AmountQuote{}, err
	}

	return model.AmountQuote{
		Amount0:           rawQuote.Amount0.Floor().Shift(-int32(pool.Pair.Token0.Decimals)),
		Amount1:           rawQuote.Amount1.Floor().Shift(-int32(pool.Pair.Token1.Decimals)),
		PositionType:      rawQuote.PositionType,
		LiquidityEstimate: rawQuote.LiquidityEstimate,
	}, nil
}

func (o *Orchestrator) readBalances(ctx context.Context, pair model.TokenPair) (decimal.Decimal, decimal.Decimal, error) {
	bal0, err := o.reader.BalanceOf(ctx, pair.Token0, o.opts.Owner)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("read %s balance: %w", pair.Token0.Symbol, err)
	}
	bal1, err := o.reader.BalanceOf(ctx, pair.Token1, o.opts.Owner)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("read %s balance: %w", pair.Token1.Symbol, err)
	}
	return bal0, bal1, nil
}

// checkGas gates mutating submissions. It runs before funds move, so a
// breach costs nothing.
func (o *Orchestrator) checkGas(ctx context.Context, controls model.SafetyControls) error {
	if controls.MaxGasPrice == nil {
		return nil
	}
	gasPrice, err := o.reader.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("sample gas price: %w", err)
	}
	if gasPrice.Cmp(controls.MaxGasPrice) > 0 {
		return &model.GasPriceExceededError{Current: gasPrice, Max: controls.MaxGasPrice}
	}
	return nil
}

func (o *Orchestrator) checkFreshness(pool PoolState) error {
	if o.opts.MaxQuoteAge <= 0 {
		return nil
	}
	age := o.now().Sub(pool.SampledAt)
	if pool.SampledAt.IsZero() || age > o.opts.MaxQuoteAge {
		return &model.StaleQuoteError{
			SampledAt: pool.SampledAt,
			Age:       age,
			MaxAge:    o.opts.MaxQuoteAge,
		}
	}
	return nil
}

func buildAddOrder(
	pair model.TokenPair,
	r model.PriceRange,
	amount0, amount1 decimal.Decimal,
	controls model.SafetyControls,
	deadline time.Time,
) (AddOrder, error) {
	raw0, err := univ3.NormalizeAmount(amount0.RoundDown(int32(pair.Token0.Decimals)), pair.Token0.Decimals)
	if err != nil {
		return AddOrder{}, err
	}
	raw1, err := univ3.NormalizeAmount(amount1.RoundDown(int32(pair.Token1.Decimals)), pair.Token1.Decimals)
	if err != nil {
		return AddOrder{}, err
	}
	min0, min1 := controls.MinAmounts(raw0, raw1)

	return AddOrder{
		Pair:           pair,
		Range:          r,
		Amount0Desired: raw0,
		Amount1Desired: raw1,
		Amount0Min:     min0,
		Amount1Min:     min1,
		Deadline:       deadline,
	}, nil
}

func rawAmount(human *decimal.Decimal, decimals uint8) (*decimal.Decimal, error) {
	if human == nil {
		return nil, nil
	}
	raw, err := univ3.NormalizeAmount(*human, decimals)
	if err != nil {
		return nil, err
	}
	rd := decimal.NewFromBigInt(raw, 0)
	return &rd, nil
}

// submitFailure maps an interrupted submission wait to a TimeoutError. A
// canceled wait counts too: the transaction may still land, so the caller
// gets the last-known state and hash instead of a bare context error.
func submitFailure(state model.ExecutionState, txHash string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &model.TimeoutError{State: state, TxHash: txHash}
	}
	return err
}
