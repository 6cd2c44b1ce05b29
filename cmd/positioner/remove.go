package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liquidityPilot/internal/executor"
	"liquidityPilot/internal/model"
)

func runRemove(cmd *cobra.Command, _ []string) error {
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

	req := executor.Request{
		Op:          executor.OpRemove,
		PositionID:  positionID,
		Percentage:  percentage,
		CollectFees: collectFees,
		Burn:        burn,
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

// pairFromResult recovers the pair the run acted on for the journal. A run
// that failed before planning has no pair to report.
func pairFromResult(result *model.ExecutionResult) (model.TokenPair, uint32) {
	if result == nil || len(result.Plan.Liquidity) == 0 {
		return model.TokenPair{}, 0
	}
	step := result.Plan.Liquidity[0]
	return step.Pair, step.Range.FeeTier
}
