package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityPilot/internal/storage"
)

// runHistory prints the most recent journaled execution for a pair,
// preferring the Postgres journal when one is configured.
func runHistory(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	pair, _, err := a.pairFromFlags(ctx, cmd)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s/%s", pair.Token0.Symbol, pair.Token1.Symbol)

	var (
		record storage.ExecutionRecord
		found  bool
	)
	switch {
	case a.pg != nil:
		record, found, err = a.pg.LastExecution(ctx, name)
	case a.cfg.Out != "":
		record, found, err = storage.NewJsonlJournal(a.cfg.Out).LastExecution(ctx, name)
	default:
		return fmt.Errorf("no execution journal configured (--out or --pg-dsn)")
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no executions recorded for %s", name)
	}
	return printJSON(record)
}
