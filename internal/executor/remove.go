package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityPilot/internal/model"
)

var hundred = decimal.NewFromInt(100)

func (o *Orchestrator) runRemove(ctx context.Context, req Request, controls model.SafetyControls) (*model.ExecutionResult, error) {
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
	res.Range = model.PriceRange{
		TickLower: info.TickLower,
		TickUpper: info.TickUpper,
		FeeTier:   info.FeeTier,
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

	pair := model.TokenPair{Token0: info.Token0, Token1: info.Token1}
	res.Plan = model.ExecutionPlan{
		Liquidity: []model.LiquidityStep{{
			Action:      model.ActionRemove,
			Pair:        pair,
			Range:       res.Range,
			PositionID:  req.PositionID,
			Percentage:  pct,
			CollectFees: req.CollectFees,
			Burn:        burn,
		}},
	}
	res.PositionID = req.PositionID
	// Removal spends nothing from the wallet, so the balance stage is a
	// no-op gate.
	res.State = model.StateBalanceChecked

	if controls.DryRun {
		res.State = model.StateDryRunCompleted
		o.logger.Info("dry run completed",
			zap.String("op", req.Op.String()),
			zap.String("position_id", req.PositionID.String()),
			zap.String("percentage", pct.String()),
			zap.Bool("burn", burn),
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
	txr, err := o.writer.SubmitRemoveLiquidity(execCtx, RemoveOrder{
		PositionID:  req.PositionID,
		Liquidity:   toRemove,
		CollectFees: req.CollectFees,
		Burn:        burn,
		Deadline:    deadline,
	})
	if txr.Hash != "" {
		res.TxHashes = append(res.TxHashes, txr.Hash)
	}
	if err != nil {
		return fail(submitFailure(model.StateLiquidityPending, txr.Hash, err))
	}
	o.logger.Info("liquidity removed",
		zap.String("tx", txr.Hash),
		zap.String("position_id", req.PositionID.String()),
		zap.String("amount0", txr.Amount0.String()),
		zap.String("amount1", txr.Amount1.String()),
	)

	if err := o.verifyRemoval(ctx, req.PositionID, info.Liquidity, toRemove, burn); err != nil {
		return fail(err)
	}
	res.State = model.StateVerified

	res.Amount0 = txr.Amount0
	res.Amount1 = txr.Amount1
	res.State = model.StateCompleted
	return res, nil
}

// verifyRemoval re-reads the position and checks the liquidity actually
// dropped by the requested share. A burned token id is allowed to be gone.
func (o *Orchestrator) verifyRemoval(ctx context.Context, id, before, removed *big.Int, burned bool) error {
	info, err := o.reader.PositionInfo(ctx, id)
	if burned {
		if err != nil {
			return nil
		}
		if info.Liquidity == nil || info.Liquidity.Sign() == 0 {
			return nil
		}
		return &model.VerificationMismatchError{
			Field: "liquidity",
			Want:  "0",
			Got:   info.Liquidity.String(),
		}
	}
	if err != nil {
		return fmt.Errorf("verify position %s: %w", id, err)
	}
	want := new(big.Int).Sub(before, removed)
	if info.Liquidity == nil || info.Liquidity.Cmp(want) != 0 {
		return &model.VerificationMismatchError{
			Field: "liquidity",
			Want:  want.String(),
			Got:   fmt.Sprint(info.Liquidity),
		}
	}
	return nil
}

// liquidityShare floors pct% of the position's liquidity.
func liquidityShare(liquidity *big.Int, pct decimal.Decimal) *big.Int {
	share := decimal.NewFromBigInt(liquidity, 0).Mul(pct).Div(hundred).Floor()
	return share.BigInt()
}
