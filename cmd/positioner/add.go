package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityPilot/internal/executor"
)

func runAdd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	a, err := newApp(ctx, cmd, !dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	pair, feeTier, err := a.pairFromFlags(ctx, cmd)
	if err != nil {
		return err
	}

	confirm, _ := cmd.Flags().GetBool("confirm-large-swap")
	req := executor.Request{
		Op:               executor.OpAdd,
		Pair:             pair,
		FeeTier:          feeTier,
		ConfirmLargeSwap: confirm,
	}
	if err := rangeFromFlags(cmd, feeTier, &req); err != nil {
		return err
	}
	if err := amountsFromFlags(cmd, &req); err != nil {
		return err
	}

	controls := controlsFromConfig(a.cfg, cmd)
	result, runErr := a.orch.PlanAndExecute(ctx, req, controls)
	a.journal(ctx, req.Op.String(), pair, feeTier, controls.DryRun, result, runErr)
	if runErr != nil {
		return runErr
	}
	return printJSON(result)
}
