package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityPilot/internal/executor"
)

// runPlan performs the full add pipeline up to the balance reconciliation
// without submitting anything: range planning, amount solving, wallet
// balance check and the resulting execution plan.
func runPlan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// The balance check is the point of plan; refuse to reconcile against
	// the zero address when no wallet can be determined.
	if _, err := ownerFromFlags(cmd, a); err != nil {
		return err
	}

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
	controls.DryRun = true

	result, runErr := a.orch.PlanAndExecute(ctx, req, controls)
	a.journal(ctx, req.Op.String(), pair, feeTier, true, result, runErr)
	if runErr != nil {
		return runErr
	}
	return printJSON(result)
}
