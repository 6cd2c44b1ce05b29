package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPilot/internal/model"
	"liquidityPilot/internal/reconcile"
	"liquidityPilot/internal/univ3"
)

// runMigrate moves a position to a new range as two sequenced liquidity
// steps: remove the old range, then mint the new one from the proceeds.
// The add amounts are planned from projected proceeds and re-sized from
// actual balances once the removal settles.
func (o *Orchestrator) runMigrate(ctx context.Context, req Request, controls model.SafetyControls) (*model.ExecutionResult, error) {
	res := &model.ExecutionResult{State: model.StatePlanned}
	fail := func(err error) (*model.ExecutionResult, error) {
		res.State = model.StateFailed
		return res, err
	}

	info, err := o.reader.PositionInfo(ctx, req.PositionID)
	if err != nil {
		return fail(fmt.Errorf("read position %s: %w", req.PositionID, err))
	}
	if info.Liquidity == nil || info.Liquidity.Sign() <= 0 {
		return fail(&model.DomainError{
			Quantity: "position liquidity",
			Value:    fmt.Sprint(info.Liquidity),
			Reason:   "position holds no liquidity",
		})
	}
	pair := model.TokenPair{Token0: info.Token0, Token1: info.Token1}
	feeTier := req.FeeTier
	if feeTier == 0 {
		feeTier = info.FeeTier
	}

	pool, err := o.reader.PoolState(ctx, pair, feeTier)
	if err != nil {
		return fail(fmt.Errorf("read pool state: %w", err))
	}
	if err := o.checkFreshness(pool); err != nil {
		return fail(err)
	}

	pct := req.percentageOrFull()
	toRemove := liquidityShare(info.Liquidity, pct)
	if toRemove.Sign() <= 0 {
		return fail(&model.DomainError{
			Quantity: "liquidity to remove",
			Value:    toRemove.String(),
			Reason:   fmt.Sprintf("%s%% of %s rounds to zero", pct, info.Liquidity),
		})
	}
	burn := req.Burn && pct.Equal(hundred)

	proceeds0, proceeds1, err := o.projectProceeds(pool, info, toRemove, req.CollectFees)
	if err != nil {
		return fail(err)
	}

	migrateReq := req
	migrateReq.Pair = pair
	migrateReq.FeeTier = feeTier
	rangePlan, err := o.resolveRange(pool, migrateReq)
	if err != nil {
		return fail(err)
	}
	res.Range = rangePlan.Range
	res.RealizedPctLower = rangePlan.RealizedPctLower
	res.RealizedPctUpper = rangePlan.RealizedPctUpper

	quote, err := o.sizeFromProceeds(pool, rangePlan.Range, proceeds0, proceeds1)
	if err != nil {
		return fail(err)
	}
	res.Quote = quote

	bal0, bal1, err := o.readBalances(ctx, pair)
	if err != nil {
		return fail(err)
	}

	// Reconcile against projected post-removal balances. The proceeds are
	// an estimate; the deposit is re-sized from real balances later.
	proposal, err := reconcile.Reconcile(reconcile.Input{
		Pair:            pair,
		Required0:       quote.Amount0,
		Required1:       quote.Amount1,
		Available0:      bal0.Add(proceeds0),
		Available1:      bal1.Add(proceeds1),
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

	oldRange := model.PriceRange{
		TickLower: info.TickLower,
		TickUpper: info.TickUpper,
		FeeTier:   info.FeeTier,
	}
	plan := model.ExecutionPlan{
		Liquidity: []model.LiquidityStep{
			{
				Action:      model.ActionRemove,
				Pair:        pair,
				Range:       oldRange,
				PositionID:  req.PositionID,
				Percentage:  pct,
				CollectFees: req.CollectFees,
				Burn:        burn,
			},
			{
				Action:  model.ActionAdd,
				Pair:    pair,
				Range:   rangePlan.Range,
				Amount0: quote.Amount0,
				Amount1: quote.Amount1,
			},
		},
	}
	if proposal.Swap != nil {
		plan.Swap = &model.SwapStep{
			TokenIn:   proposal.Swap.TokenIn,
			TokenOut:  proposal.Swap.TokenOut,
			FeeTier:   feeTier,
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
			zap.String("position_id", req.PositionID.String()),
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
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	res.State = model.StateLiquidityPending
	removeTx, err := o.writer.SubmitRemoveLiquidity(execCtx, RemoveOrder{
		PositionID:  req.PositionID,
		Liquidity:   toRemove,
		CollectFees: req.CollectFees,
		Burn:        burn,
		Deadline:    deadline,
	})
	if removeTx.Hash != "" {
		res.TxHashes = append(res.TxHashes, removeTx.Hash)
	}
	if err != nil {
		return fail(submitFailure(model.StateLiquidityPending, removeTx.Hash, err))
	}
	if err := o.verifyRemoval(ctx, req.PositionID, info.Liquidity, toRemove, burn); err != nil {
		return fail(err)
	}
	o.logger.Info("old position unwound",
		zap.String("tx", removeTx.Hash),
		zap.String("position_id", req.PositionID.String()),
		zap.String("amount0", removeTx.Amount0.String()),
		zap.String("amount1", removeTx.Amount1.String()),
	)

	required0, required1 := quote.Amount0, quote.Amount1
	if plan.Swap != nil {
		var swapErr error
		res.State = model.StateSwapping
		required0, required1, swapErr = o.executeSwap(execCtx, res, plan.Swap, pair, controls, deadline, required0, required1)
		if swapErr != nil {
			res.State = model.StateFailed
			return res, swapErr
		}
	} else {
		bal0, bal1, err := o.readBalances(ctx, pair)
		if err != nil {
			return fail(err)
		}
		required0 = decimal.Min(required0, bal0)
		required1 = decimal.Min(required1, bal1)
	}

	if err := o.checkGas(ctx, controls); err != nil {
		return fail(err)
	}
	res.State = model.StateLiquidityPending

	order, err := buildAddOrder(pair, rangePlan.Range, required0, required1, controls, deadline)
	if err != nil {
		return fail(err)
	}
	addTx, err := o.writer.SubmitAddLiquidity(execCtx, order)
	if addTx.Hash != "" {
		res.TxHashes = append(res.TxHashes, addTx.Hash)
	}
	if err != nil {
		return fail(submitFailure(model.StateLiquidityPending, addTx.Hash, err))
	}
	o.logger.Info("position migrated",
		zap.String("tx", addTx.Hash),
		zap.String("old_position_id", req.PositionID.String()),
		zap.String("new_position_id", addTx.PositionID.String()),
	)

	if err := o.verifyPosition(ctx, addTx.PositionID, rangePlan.Range); err != nil {
		return fail(err)
	}
	res.State = model.StateVerified

	res.PositionID = addTx.PositionID
	res.Amount0 = addTx.Amount0
	res.Amount1 = addTx.Amount1
	res.State = model.StateCompleted
	return res, nil
}

// projectProceeds estimates the human-unit token amounts the removal will
// release at the sampled tick, plus owed fees when they are collected.
func (o *Orchestrator) projectProceeds(pool PoolState, info model.PositionInfo, liquidity *big.Int, collectFees bool) (decimal.Decimal, decimal.Decimal, error) {
	liqDec := decimal.NewFromBigInt(liquidity, 0)
	raw0, raw1, err := univ3.AmountsFromLiquidity(liqDec, pool.Tick, info.TickLower, info.TickUpper)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	proceeds0 := raw0.Floor().Shift(-int32(info.Token0.Decimals))
	proceeds1 := raw1.Floor().Shift(-int32(info.Token1.Decimals))
	if collectFees {
		proceeds0 = proceeds0.Add(info.OwedFees0)
		proceeds1 = proceeds1.Add(info.OwedFees1)
	}
	return proceeds0, proceeds1, nil
}

// sizeFromProceeds solves the new deposit from whichever proceeds side
// binds. The buffer is held back so the reconciler does not report a
// spurious shortfall against the projection.
func (o *Orchestrator) sizeFromProceeds(pool PoolState, r model.PriceRange, proceeds0, proceeds1 decimal.Decimal) (model.AmountQuote, error) {
	buffer := o.opts.Buffer
	if buffer.Sign() <= 0 {
		buffer = reconcile.DefaultBuffer
	}
	onePlus := decimal.NewFromInt(1).Add(buffer)
	scaled0 := proceeds0.DivRound(onePlus, 40).RoundDown(int32(pool.Pair.Token0.Decimals))
	scaled1 := proceeds1.DivRound(onePlus, 40).RoundDown(int32(pool.Pair.Token1.Decimals))

	var quote model.AmountQuote
	var err error
	switch univ3.Classify(pool.Tick, r.TickLower, r.TickUpper) {
	case model.BelowRange:
		quote, err = o.solveHuman(pool, r, &scaled0, nil)
	case model.AboveRange:
		quote, err = o.solveHuman(pool, r, nil, &scaled1)
	default:
		if scaled0.Sign() > 0 {
			quote, err = o.solveHuman(pool, r, &scaled0, nil)
			if err == nil && quote.Amount1.LessThanOrEqual(scaled1) {
				break
			}
		}
		quote, err = o.solveHuman(pool, r, nil, &scaled1)
	}
	if err != nil {
		return model.AmountQuote{}, err
	}
	if quote.Amount0.Sign() <= 0 && quote.Amount1.Sign() <= 0 {
		return model.AmountQuote{}, &model.DomainError{
			Quantity: "migration proceeds",
			Value:    fmt.Sprintf("%s / %s", proceeds0, proceeds1),
			Reason:   "proceeds are too small to open the target range",
		}
	}
	return quote, nil
}
