package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityPilot/internal/executor"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	a, err := newApp(ctx, cmd, !dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	positionID, err := positionIDFromFlags(cmd)
	if err != nil {
		return err
	}
	pctStr, _ := cmd.Flags().GetString("percentage")
	percentage, err := parseDecimal(pctStr, "percentage")
	if err != nil {
		return err
	}
	collectFees, _ := cmd.Flags().GetBool("collect-fees")
	burn, _ := cmd.Flags().GetBool("burn")
	confirm, _ := cmd.Flags().GetBool("confirm-large-swap")

	req := executor.Request{
		Op:               executor.OpMigrate,
		PositionID:       positionID,
		Percentage:       percentage,
		CollectFees:      collectFees,
		Burn:             burn,
		ConfirmLargeSwap: confirm,
	}
	if err := rangeFromFlags(cmd, 0, &req); err != nil {
		return err
	}

	controls := controlsFromConfig(a.cfg, cmd)
	result, runErr := a.orch.PlanAndExecute(ctx, req, controls)
	pair, feeTier := pairFromResult(result)
	a.journal(ctx, req.Op.String(), pair, feeTier, controls.DryRun, result, runErr)
	if runErr != nil {
		return runErr
	}
	return printJSON(result)
}
