package storage

import (
	"context"
	"time"

	"liquidityPilot/internal/model"
)

// ExecutionRecord is one journaled orchestration run.
type ExecutionRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Op        string                 `json:"op"`
	Pair      string                 `json:"pair"`
	FeeTier   uint32                 `json:"fee_tier"`
	DryRun    bool                   `json:"dry_run"`
	Result    *model.ExecutionResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ResultSink defines a sink for execution records.
type ResultSink interface {
	AppendResult(ctx context.Context, record ExecutionRecord) error
}
