package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "positioner",
		Short:        "Uniswap V3 liquidity position manager",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Plan a range and solve deposit amounts without touching the wallet",
		RunE:  runQuote,
	}
	addPairFlags(quoteCmd)
	addRangeFlags(quoteCmd)
	addAmountFlags(quoteCmd)
	addConnectionFlags(quoteCmd)
	root.AddCommand(quoteCmd)

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Dry-run an add against real wallet balances without submitting",
		RunE:  runPlan,
	}
	addPairFlags(planCmd)
	addRangeFlags(planCmd)
	addAmountFlags(planCmd)
	addConnectionFlags(planCmd)
	addSafetyFlags(planCmd)
	planCmd.Flags().Bool("confirm-large-swap", false, "acknowledge a large rebalancing swap up front")
	planCmd.Flags().String("owner", "", "wallet address (derived from the signing key when omitted)")
	root.AddCommand(planCmd)

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Open a new liquidity position",
		RunE:  runAdd,
	}
	addPairFlags(addCmd)
	addRangeFlags(addCmd)
	addAmountFlags(addCmd)
	addConnectionFlags(addCmd)
	addSafetyFlags(addCmd)
	addCmd.Flags().Bool("confirm-large-swap", false, "acknowledge a large rebalancing swap up front")
	root.AddCommand(addCmd)

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove liquidity from an existing position",
		RunE:  runRemove,
	}
	removeCmd.Flags().String("position-id", "", "position token id")
	removeCmd.Flags().String("percentage", "100", "share of liquidity to remove, in (0, 100]")
	removeCmd.Flags().Bool("collect-fees", false, "collect accrued fees together with the principal")
	removeCmd.Flags().Bool("burn", false, "burn the position token after a full removal")
	addConnectionFlags(removeCmd)
	addSafetyFlags(removeCmd)
	root.AddCommand(removeCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move a position to a new range around the current price",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("position-id", "", "position token id")
	migrateCmd.Flags().String("percentage", "100", "share of liquidity to migrate, in (0, 100]")
	migrateCmd.Flags().Bool("collect-fees", false, "collect accrued fees during the removal")
	migrateCmd.Flags().Bool("burn", false, "burn the old position token after a full migration")
	migrateCmd.Flags().Bool("confirm-large-swap", false, "acknowledge a large rebalancing swap up front")
	addRangeFlags(migrateCmd)
	addConnectionFlags(migrateCmd)
	addSafetyFlags(migrateCmd)
	root.AddCommand(migrateCmd)

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Show wallet balances for a token pair",
		RunE:  runBalances,
	}
	addPairFlags(balancesCmd)
	addConnectionFlags(balancesCmd)
	balancesCmd.Flags().String("owner", "", "wallet address (derived from the signing key when omitted)")
	root.AddCommand(balancesCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the last journaled execution for a token pair",
		RunE:  runHistory,
	}
	addPairFlags(historyCmd)
	addConnectionFlags(historyCmd)
	root.AddCommand(historyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPairFlags(cmd *cobra.Command) {
	cmd.Flags().String("token0", "", "first token address")
	cmd.Flags().String("token1", "", "second token address")
	cmd.Flags().Uint32("fee", 3000, "pool fee tier (100, 500, 3000, 10000)")
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("pct-lower", "-0.05", "lower bound as a fraction of current price (-0.05 = -5%)")
	cmd.Flags().String("pct-upper", "0.05", "upper bound as a fraction of current price")
	cmd.Flags().Int("tick-lower", 0, "explicit lower tick (overrides pct bounds)")
	cmd.Flags().Int("tick-upper", 0, "explicit upper tick (overrides pct bounds)")
}

func addAmountFlags(cmd *cobra.Command) {
	cmd.Flags().String("amount0", "", "desired token0 amount in human units")
	cmd.Flags().String("amount1", "", "desired token1 amount in human units")
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("factory", "", "V3 factory address")
	cmd.Flags().String("router", "", "swap router address")
	cmd.Flags().String("quoter", "", "QuoterV2 address")
	cmd.Flags().String("position-manager", "", "nonfungible position manager address")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts for reads")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("out", "./data/executions.jsonl", "execution journal JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the execution journal")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSafetyFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32("slippage-bps", 50, "maximum slippage in basis points")
	cmd.Flags().Uint64("max-gas-gwei", 0, "maximum gas price in gwei, 0 disables the cap")
	cmd.Flags().Uint32("deadline-min", 10, "transaction deadline in minutes")
	cmd.Flags().String("buffer", "0.01", "balance check safety margin")
	cmd.Flags().String("deficiency-limit", "0.5", "shortfall fraction requiring confirmation")
	cmd.Flags().Duration("quote-max-age", time.Minute, "price sample freshness window")
	cmd.Flags().Bool("dry-run", false, "plan and validate without submitting transactions")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
