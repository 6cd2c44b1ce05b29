package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"liquidityPilot/internal/executor"
	"liquidityPilot/internal/model"
)

type quoteOutput struct {
	Pool             string            `json:"pool"`
	Tick             int               `json:"tick"`
	Price            decimal.Decimal   `json:"price"`
	Range            model.PriceRange  `json:"range"`
	RealizedPctLower decimal.Decimal   `json:"realized_pct_lower"`
	RealizedPctUpper decimal.Decimal   `json:"realized_pct_upper"`
	Quote            model.AmountQuote `json:"quote"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	pair, feeTier, err := a.pairFromFlags(ctx, cmd)
	if err != nil {
		return err
	}

	req := executor.Request{Op: executor.OpAdd, Pair: pair, FeeTier: feeTier}
	if err := rangeFromFlags(cmd, feeTier, &req); err != nil {
		return err
	}
	if err := amountsFromFlags(cmd, &req); err != nil {
		return err
	}

	quote, rangePlan, pool, err := a.orch.Quote(ctx, req)
	if err != nil {
		return err
	}

	return printJSON(quoteOutput{
		Pool:             pool.Pool.Hex(),
		Tick:             pool.Tick,
		Price:            pool.HumanPrice,
		Range:            rangePlan.Range,
		RealizedPctLower: rangePlan.RealizedPctLower,
		RealizedPctUpper: rangePlan.RealizedPctUpper,
		Quote:            quote,
	})
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
