package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityPilot/internal/chain"
	"liquidityPilot/internal/config"
	"liquidityPilot/internal/dex"
	"liquidityPilot/internal/executor"
	"liquidityPilot/internal/model"
	"liquidityPilot/internal/storage"
	"liquidityPilot/internal/storage/postgres"
)

// app bundles the wired runtime for one command invocation.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	client *chain.Client
	reader *dex.Reader
	writer *dex.Writer
	orch   *executor.Orchestrator
	sinks  []storage.ResultSink
	pg     *postgres.Store
}

// newApp loads config and wires the chain stack. The signing key is only
// required when the command submits transactions.
func newApp(ctx context.Context, cmd *cobra.Command, needWriter bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	factory, err := parseAddress(cfg.Factory, "factory")
	if err != nil {
		return nil, err
	}
	manager, err := parseAddress(cfg.PositionManager, "position-manager")
	if err != nil {
		return nil, err
	}
	var quoter common.Address
	if cfg.Quoter != "" {
		quoter, err = parseAddress(cfg.Quoter, "quoter")
		if err != nil {
			return nil, err
		}
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, client: client}
	a.reader = dex.NewReader(client, dex.ReaderConfig{
		Factory:         factory,
		PositionManager: manager,
		Quoter:          quoter,
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    cfg.RetryBackoff,
	}, logger)

	var (
		chainWriter executor.ChainWriter
		owner       common.Address
	)
	if needWriter {
		if cfg.PrivateKey == "" {
			a.Close()
			return nil, fmt.Errorf("private key is required (POSITIONER_PRIVATE_KEY)")
		}
		router, err := parseAddress(cfg.Router, "router")
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.Quoter == "" {
			a.Close()
			return nil, fmt.Errorf("quoter address is required for live execution")
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		a.writer, err = dex.NewWriter(ctx, client, a.reader, dex.WriterConfig{
			Router:          router,
			PositionManager: manager,
		}, key, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		chainWriter = a.writer
		owner = a.writer.Owner()
	} else {
		// Read-only commands still reconcile against real wallet balances
		// when an owner can be determined.
		if f := cmd.Flags().Lookup("owner"); f != nil && f.Value.String() != "" {
			owner, err = parseAddress(f.Value.String(), "owner")
			if err != nil {
				a.Close()
				return nil, err
			}
		} else if cfg.PrivateKey != "" {
			owner, err = deriveOwner(cfg.PrivateKey)
			if err != nil {
				a.Close()
				return nil, err
			}
		}
	}

	buffer, err := parseDecimal(cfg.Buffer, "buffer")
	if err != nil {
		a.Close()
		return nil, err
	}
	deficiencyLimit, err := parseDecimal(cfg.DeficiencyLimit, "deficiency-limit")
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orch = executor.New(a.reader, chainWriter, executor.Options{
		Owner:           owner,
		Buffer:          buffer,
		DeficiencyLimit: deficiencyLimit,
		MaxQuoteAge:     cfg.QuoteMaxAge,
	}, logger)

	if cfg.Out != "" {
		a.sinks = append(a.sinks, storage.NewJsonlJournal(cfg.Out))
	}
	if cfg.PgDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.pg = pg
		a.sinks = append(a.sinks, pg)
	}

	return a, nil
}

func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// journal records a finished run in every configured sink. Journal failures
// are logged, not returned: the on-chain outcome already happened.
func (a *app) journal(ctx context.Context, op string, pair model.TokenPair, feeTier uint32, dryRun bool, result *model.ExecutionResult, runErr error) {
	record := storage.ExecutionRecord{
		Timestamp: time.Now().UTC(),
		Op:        op,
		Pair:      fmt.Sprintf("%s/%s", pair.Token0.Symbol, pair.Token1.Symbol),
		FeeTier:   feeTier,
		DryRun:    dryRun,
		Result:    result,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	for _, sink := range a.sinks {
		if err := sink.AppendResult(ctx, record); err != nil {
			a.logger.Warn("journal write failed", zap.Error(err))
		}
	}
}

// pairFromFlags resolves the --token0/--token1 pair on chain.
func (a *app) pairFromFlags(ctx context.Context, cmd *cobra.Command) (model.TokenPair, uint32, error) {
	token0Hex, _ := cmd.Flags().GetString("token0")
	token1Hex, _ := cmd.Flags().GetString("token1")
	feeTier, _ := cmd.Flags().GetUint32("fee")

	addr0, err := parseAddress(token0Hex, "token0")
	if err != nil {
		return model.TokenPair{}, 0, err
	}
	addr1, err := parseAddress(token1Hex, "token1")
	if err != nil {
		return model.TokenPair{}, 0, err
	}
	if addr0 == addr1 {
		return model.TokenPair{}, 0, fmt.Errorf("token0 and token1 must differ")
	}

	token0, err := a.reader.ResolveToken(ctx, addr0)
	if err != nil {
		return model.TokenPair{}, 0, err
	}
	token1, err := a.reader.ResolveToken(ctx, addr1)
	if err != nil {
		return model.TokenPair{}, 0, err
	}

	pair, _ := model.TokenPair{Token0: token0, Token1: token1}.Canonical()
	return pair, feeTier, nil
}

// rangeFromFlags reads either explicit ticks or percentage bounds.
func rangeFromFlags(cmd *cobra.Command, feeTier uint32, req *executor.Request) error {
	if cmd.Flags().Changed("tick-lower") || cmd.Flags().Changed("tick-upper") {
		if !cmd.Flags().Changed("tick-lower") || !cmd.Flags().Changed("tick-upper") {
			return fmt.Errorf("tick-lower and tick-upper must be set together")
		}
		tickLower, _ := cmd.Flags().GetInt("tick-lower")
		tickUpper, _ := cmd.Flags().GetInt("tick-upper")
		req.Range = &model.PriceRange{TickLower: tickLower, TickUpper: tickUpper, FeeTier: feeTier}
		return nil
	}

	pctLowerStr, _ := cmd.Flags().GetString("pct-lower")
	pctUpperStr, _ := cmd.Flags().GetString("pct-upper")
	pctLower, err := parseDecimal(pctLowerStr, "pct-lower")
	if err != nil {
		return err
	}
	pctUpper, err := parseDecimal(pctUpperStr, "pct-upper")
	if err != nil {
		return err
	}
	req.PctLower = pctLower
	req.PctUpper = pctUpper
	return nil
}

// amountsFromFlags reads the desired deposit amounts; exactly one side is
// expected, the solver pairs the other.
func amountsFromFlags(cmd *cobra.Command, req *executor.Request) error {
	amount0Str, _ := cmd.Flags().GetString("amount0")
	amount1Str, _ := cmd.Flags().GetString("amount1")

	if amount0Str != "" {
		amount0, err := parseDecimal(amount0Str, "amount0")
		if err != nil {
			return err
		}
		req.Amount0Desired = &amount0
	}
	if amount1Str != "" {
		amount1, err := parseDecimal(amount1Str, "amount1")
		if err != nil {
			return err
		}
		req.Amount1Desired = &amount1
	}
	if req.Amount0Desired == nil && req.Amount1Desired == nil {
		return fmt.Errorf("one of amount0 or amount1 is required")
	}
	return nil
}

func controlsFromConfig(cfg config.Config, cmd *cobra.Command) model.SafetyControls {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	controls := model.SafetyControls{
		MaxSlippageBps:  cfg.SlippageBps,
		DeadlineMinutes: cfg.DeadlineMinutes,
		DryRun:          dryRun,
	}
	if cfg.MaxGasPriceGwei > 0 {
		gwei := new(big.Int).SetUint64(cfg.MaxGasPriceGwei)
		controls.MaxGasPrice = gwei.Mul(gwei, big.NewInt(1_000_000_000))
	}
	return controls
}

func positionIDFromFlags(cmd *cobra.Command) (*big.Int, error) {
	idStr, _ := cmd.Flags().GetString("position-id")
	if idStr == "" {
		return nil, fmt.Errorf("position-id is required")
	}
	id, ok := new(big.Int).SetString(idStr, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid position-id %q", idStr)
	}
	return id, nil
}

// deriveOwner recovers the wallet address from the configured signing key.
func deriveOwner(privateKey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func parseAddress(value, name string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func parseDecimal(value, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}
