package dex

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityPilot/internal/chain"
	"liquidityPilot/internal/executor"
	"liquidityPilot/internal/model"
	"liquidityPilot/internal/univ3"
)

// GasLimits caps each transaction kind. Contract execution varies little
// per call, so fixed limits are safer than node estimation against
// manipulated pools.
type GasLimits struct {
	Approve  uint64
	Swap     uint64
	Mint     uint64
	Decrease uint64
	Collect  uint64
	Burn     uint64
}

func DefaultGasLimits() GasLimits {
	return GasLimits{
		Approve:  60_000,
		Swap:     300_000,
		Mint:     600_000,
		Decrease: 300_000,
		Collect:  200_000,
		Burn:     150_000,
	}
}

// WriterConfig wires a Writer to the V3 deployment it submits to.
type WriterConfig struct {
	Router          common.Address
	PositionManager common.Address
	GasLimits       GasLimits
}

// Writer signs and submits position transactions sequentially. One Writer
// owns its account's nonce sequence; do not share the key with concurrent
// senders.
type Writer struct {
	client  *chain.Client
	reader  *Reader
	cfg     WriterConfig
	key     *ecdsa.PrivateKey
	owner   common.Address
	chainID *big.Int
	logger  *zap.Logger
}

func NewWriter(ctx context.Context, client *chain.Client, reader *Reader, cfg WriterConfig, key *ecdsa.PrivateKey, logger *zap.Logger) (*Writer, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GasLimits == (GasLimits{}) {
		cfg.GasLimits = DefaultGasLimits()
	}

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	return &Writer{
		client:  client,
		reader:  reader,
		cfg:     cfg,
		key:     key,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger,
	}, nil
}

// Owner returns the signing account address.
func (w *Writer) Owner() common.Address {
	return w.owner
}

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// SubmitSwap executes a bounded exact-input swap through the router. The
// settled output is taken from the tokenOut Transfer to the owner.
func (w *Writer) SubmitSwap(ctx context.Context, order executor.SwapOrder) (model.TxResult, error) {
	routerABI, err := SwapRouterABI()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("parse router abi: %w", err)
	}

	if err := w.ensureAllowance(ctx, order.TokenIn, w.cfg.Router, order.AmountIn); err != nil {
		return model.TxResult{}, err
	}

	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           order.TokenIn.Address,
		TokenOut:          order.TokenOut.Address,
		Fee:               big.NewInt(int64(order.FeeTier)),
		Recipient:         w.owner,
		Deadline:          big.NewInt(order.Deadline.Unix()),
		AmountIn:          order.AmountIn,
		AmountOutMinimum:  order.MinAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	data, err := routerABI.Pack("exactInputSingle", params)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("pack exactInputSingle: %w", err)
	}

	receipt, txHash, err := w.sendTx(ctx, "swap", w.cfg.Router, data, w.cfg.GasLimits.Swap)
	result := model.TxResult{Hash: txHash.Hex()}
	if err != nil {
		return result, err
	}
	result.GasUsed = receipt.GasUsed

	rawOut, err := settledTransferAmount(receipt, order.TokenOut.Address, w.owner)
	if err != nil {
		return result, fmt.Errorf("swap %s: %w", txHash.Hex(), err)
	}
	result.AmountOut = univ3.DenormalizeAmount(rawOut, order.TokenOut.Decimals)
	return result, nil
}

// SubmitAddLiquidity mints a new position through the position manager.
func (w *Writer) SubmitAddLiquidity(ctx context.Context, order executor.AddOrder) (model.TxResult, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	if order.Amount0Desired.Sign() > 0 {
		if err := w.ensureAllowance(ctx, order.Pair.Token0, w.cfg.PositionManager, order.Amount0Desired); err != nil {
			return model.TxResult{}, err
		}
	}
	if order.Amount1Desired.Sign() > 0 {
		if err := w.ensureAllowance(ctx, order.Pair.Token1, w.cfg.PositionManager, order.Amount1Desired); err != nil {
			return model.TxResult{}, err
		}
	}

	params := struct {
		Token0         common.Address
		Token1         common.Address
		Fee            *big.Int
		TickLower      *big.Int
		TickUpper      *big.Int
		Amount0Desired *big.Int
		Amount1Desired *big.Int
		Amount0Min     *big.Int
		Amount1Min     *big.Int
		Recipient      common.Address
		Deadline       *big.Int
	}{
		Token0:         order.Pair.Token0.Address,
		Token1:         order.Pair.Token1.Address,
		Fee:            big.NewInt(int64(order.Range.FeeTier)),
		TickLower:      big.NewInt(int64(order.Range.TickLower)),
		TickUpper:      big.NewInt(int64(order.Range.TickUpper)),
		Amount0Desired: order.Amount0Desired,
		Amount1Desired: order.Amount1Desired,
		Amount0Min:     order.Amount0Min,
		Amount1Min:     order.Amount1Min,
		Recipient:      w.owner,
		Deadline:       big.NewInt(order.Deadline.Unix()),
	}
	data, err := managerABI.Pack("mint", params)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("pack mint: %w", err)
	}

	receipt, txHash, err := w.sendTx(ctx, "mint", w.cfg.PositionManager, data, w.cfg.GasLimits.Mint)
	result := model.TxResult{Hash: txHash.Hex()}
	if err != nil {
		return result, err
	}
	result.GasUsed = receipt.GasUsed

	tokenID, liquidity, raw0, raw1, err := parseLiquidityEvent(managerABI, receipt, "IncreaseLiquidity")
	if err != nil {
		return result, fmt.Errorf("mint %s: %w", txHash.Hex(), err)
	}
	result.PositionID = tokenID
	result.Liquidity = liquidity
	result.Amount0 = univ3.DenormalizeAmount(raw0, order.Pair.Token0.Decimals)
	result.Amount1 = univ3.DenormalizeAmount(raw1, order.Pair.Token1.Decimals)
	return result, nil
}

// SubmitRemoveLiquidity decreases liquidity, collects the released tokens
// and optionally burns the emptied token id. Without CollectFees only the
// decreased principal is collected; owed fees stay on the position.
func (w *Writer) SubmitRemoveLiquidity(ctx context.Context, order executor.RemoveOrder) (model.TxResult, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return model.TxResult{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	info, err := w.reader.PositionInfo(ctx, order.PositionID)
	if err != nil {
		return model.TxResult{}, err
	}

	params := struct {
		TokenId    *big.Int
		Liquidity  *big.Int
		Amount0Min *big.Int
		Amount1Min *big.Int
		Deadline   *big.Int
	}{
		TokenId:    order.PositionID,
		Liquidity:  order.Liquidity,
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   big.NewInt(order.Deadline.Unix()),
	}
	data, err := managerABI.Pack("decreaseLiquidity", params)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}

	receipt, txHash, err := w.sendTx(ctx, "decreaseLiquidity", w.cfg.PositionManager, data, w.cfg.GasLimits.Decrease)
	result := model.TxResult{Hash: txHash.Hex()}
	if err != nil {
		return result, err
	}
	result.GasUsed = receipt.GasUsed

	_, _, principal0, principal1, err := parseLiquidityEvent(managerABI, receipt, "DecreaseLiquidity")
	if err != nil {
		return result, fmt.Errorf("decreaseLiquidity %s: %w", txHash.Hex(), err)
	}
	result.Liquidity = order.Liquidity

	collect0, collect1 := maxUint128, maxUint128
	if !order.CollectFees {
		collect0, collect1 = principal0, principal1
	}
	collectParams := struct {
		TokenId    *big.Int
		Recipient  common.Address
		Amount0Max *big.Int
		Amount1Max *big.Int
	}{
		TokenId:    order.PositionID,
		Recipient:  w.owner,
		Amount0Max: collect0,
		Amount1Max: collect1,
	}
	data, err = managerABI.Pack("collect", collectParams)
	if err != nil {
		return result, fmt.Errorf("pack collect: %w", err)
	}
	collectReceipt, collectHash, err := w.sendTx(ctx, "collect", w.cfg.PositionManager, data, w.cfg.GasLimits.Collect)
	if err != nil {
		return result, err
	}
	w.logger.Info("tokens collected", zap.String("tx", collectHash.Hex()))

	raw0, raw1, err := parseCollectEvent(managerABI, collectReceipt)
	if err != nil {
		return result, fmt.Errorf("collect %s: %w", collectHash.Hex(), err)
	}
	result.Amount0 = univ3.DenormalizeAmount(raw0, info.Token0.Decimals)
	result.Amount1 = univ3.DenormalizeAmount(raw1, info.Token1.Decimals)

	if order.Burn {
		data, err = managerABI.Pack("burn", order.PositionID)
		if err != nil {
			return result, fmt.Errorf("pack burn: %w", err)
		}
		_, burnHash, err := w.sendTx(ctx, "burn", w.cfg.PositionManager, data, w.cfg.GasLimits.Burn)
		if err != nil {
			return result, err
		}
		w.logger.Info("position token burned",
			zap.String("tx", burnHash.Hex()),
			zap.String("position_id", order.PositionID.String()),
		)
	}

	return result, nil
}

// ensureAllowance approves the spender once with an unlimited allowance if
// the current one cannot cover the amount.
func (w *Writer) ensureAllowance(ctx context.Context, token model.Token, spender common.Address, amount *big.Int) error {
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := callMethod(ctx, w.client, token.Address, erc20, "allowance", nil, w.owner, spender)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", token.Symbol, err)
	}
	allowance, err := asBigInt(values[0])
	if err != nil {
		return fmt.Errorf("allowance %s: %w", token.Symbol, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err := erc20.Pack("approve", spender, new(big.Int).Set(maxUint256))
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	_, txHash, err := w.sendTx(ctx, "approve", token.Address, data, w.cfg.GasLimits.Approve)
	if err != nil {
		return err
	}
	w.logger.Info("allowance granted",
		zap.String("tx", txHash.Hex()),
		zap.String("token", token.Symbol),
		zap.String("spender", spender.Hex()),
	)
	return nil
}

// sendTx signs, broadcasts and waits for one transaction. The hash is
// returned even when the wait fails so callers can report it.
func (w *Writer) sendTx(ctx context.Context, op string, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, common.Hash, error) {
	nonce, err := w.client.PendingNonceAt(ctx, w.owner)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("%s nonce: %w", op, err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("%s gas price: %w", op, err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("%s sign: %w", op, err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, common.Hash{}, fmt.Errorf("%s send: %w", op, err)
	}
	txHash := signed.Hash()
	w.logger.Debug("transaction sent",
		zap.String("op", op),
		zap.String("tx", txHash.Hex()),
		zap.Uint64("nonce", nonce),
	)

	receipt, err := w.client.WaitMined(ctx, txHash)
	if err != nil {
		return nil, txHash, fmt.Errorf("%s wait %s: %w", op, txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, txHash, &model.OnChainRevertError{Op: op, TxHash: txHash.Hex()}
	}
	return receipt, txHash, nil
}

// parseLiquidityEvent extracts (tokenId, liquidity, amount0, amount1) from
// an IncreaseLiquidity or DecreaseLiquidity log in the receipt.
func parseLiquidityEvent(managerABI abi.ABI, receipt *types.Receipt, name string) (*big.Int, *big.Int, *big.Int, *big.Int, error) {
	event, ok := managerABI.Events[name]
	if !ok {
		return nil, nil, nil, nil, fmt.Errorf("abi missing %s event", name)
	}

	for _, log := range receipt.Logs {
		if len(log.Topics) < 2 || log.Topics[0] != event.ID {
			continue
		}
		tokenID := new(big.Int).SetBytes(log.Topics[1].Bytes())
		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		if len(values) < 3 {
			return nil, nil, nil, nil, fmt.Errorf("%s: short payload", name)
		}
		liquidity, err := asBigInt(values[0])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s liquidity: %w", name, err)
		}
		amount0, err := asBigInt(values[1])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s amount0: %w", name, err)
		}
		amount1, err := asBigInt(values[2])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s amount1: %w", name, err)
		}
		return tokenID, liquidity, amount0, amount1, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("no %s event in receipt", name)
}

// parseCollectEvent extracts (amount0, amount1) from the manager Collect log.
func parseCollectEvent(managerABI abi.ABI, receipt *types.Receipt) (*big.Int, *big.Int, error) {
	event, ok := managerABI.Events["Collect"]
	if !ok {
		return nil, nil, fmt.Errorf("abi missing Collect event")
	}

	for _, log := range receipt.Logs {
		if len(log.Topics) < 2 || log.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack Collect: %w", err)
		}
		if len(values) < 3 {
			return nil, nil, fmt.Errorf("Collect: short payload")
		}
		amount0, err := asBigInt(values[1])
		if err != nil {
			return nil, nil, fmt.Errorf("Collect amount0: %w", err)
		}
		amount1, err := asBigInt(values[2])
		if err != nil {
			return nil, nil, fmt.Errorf("Collect amount1: %w", err)
		}
		return amount0, amount1, nil
	}
	return nil, nil, fmt.Errorf("no Collect event in receipt")
}

// settledTransferAmount sums tokenOut Transfer logs credited to the
// recipient in a swap receipt.
func settledTransferAmount(receipt *types.Receipt, token, recipient common.Address) (*big.Int, error) {
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	event := erc20.Events["Transfer"]

	total := big.NewInt(0)
	found := false
	for _, log := range receipt.Logs {
		if log.Address != token || len(log.Topics) < 3 || log.Topics[0] != event.ID {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack Transfer: %w", err)
		}
		value, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("Transfer value: %w", err)
		}
		total.Add(total, value)
		found = true
	}
	if !found {
		return nil, fmt.Errorf("no output transfer to %s", recipient.Hex())
	}
	return total, nil
}
