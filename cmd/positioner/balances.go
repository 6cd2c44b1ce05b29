package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type balanceOutput struct {
	Owner    string          `json:"owner"`
	Token0   string          `json:"token0"`
	Balance0 decimal.Decimal `json:"balance0"`
	Token1   string          `json:"token1"`
	Balance1 decimal.Decimal `json:"balance1"`
}

func runBalances(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := ownerFromFlags(cmd, a)
	if err != nil {
		return err
	}

	pair, _, err := a.pairFromFlags(ctx, cmd)
	if err != nil {
		return err
	}

	balance0, err := a.reader.BalanceOf(ctx, pair.Token0, owner)
	if err != nil {
		return err
	}
	balance1, err := a.reader.BalanceOf(ctx, pair.Token1, owner)
	if err != nil {
		return err
	}

	return printJSON(balanceOutput{
		Owner:    owner.Hex(),
		Token0:   pair.Token0.Symbol,
		Balance0: balance0,
		Token1:   pair.Token1.Symbol,
		Balance1: balance1,
	})
}

func ownerFromFlags(cmd *cobra.Command, a *app) (common.Address, error) {
	ownerHex, _ := cmd.Flags().GetString("owner")
	if ownerHex != "" {
		return parseAddress(ownerHex, "owner")
	}
	if a.cfg.PrivateKey == "" {
		return common.Address{}, fmt.Errorf("owner address or private key is required")
	}
	return deriveOwner(a.cfg.PrivateKey)
}
