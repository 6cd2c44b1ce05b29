package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"liquidityPilot/internal/model"
)

func TestJsonlJournalAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "executions.jsonl")
	journal := NewJsonlJournal(path)

	first := ExecutionRecord{
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Op:        "add",
		Pair:      "WETH/USDT",
		FeeTier:   3000,
		Result: &model.ExecutionResult{
			State:      model.StateCompleted,
			PositionID: big.NewInt(42),
			TxHashes:   []string{"0xadd"},
		},
	}
	second := ExecutionRecord{
		Timestamp: time.Unix(1_700_000_060, 0).UTC(),
		Op:        "remove",
		Pair:      "WETH/USDT",
		FeeTier:   3000,
		Error:     "gas price 100 wei exceeds cap 50 wei",
	}

	if err := journal.AppendResult(context.Background(), first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := journal.AppendResult(context.Background(), second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var records []ExecutionRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record ExecutionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("unmarshal line %d: %v", len(records), err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Op != "add" || records[0].Result == nil {
		t.Fatalf("first record = %+v", records[0])
	}
	if records[0].Result.State != model.StateCompleted {
		t.Fatalf("first state = %v, want %v", records[0].Result.State, model.StateCompleted)
	}
	if records[1].Error == "" || records[1].Result != nil {
		t.Fatalf("second record = %+v", records[1])
	}
}

func TestJsonlLastExecution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")
	journal := NewJsonlJournal(path)

	records := []ExecutionRecord{
		{Timestamp: time.Unix(1_700_000_000, 0).UTC(), Op: "add", Pair: "WETH/USDT", FeeTier: 3000},
		{Timestamp: time.Unix(1_700_000_060, 0).UTC(), Op: "add", Pair: "WBTC/USDT", FeeTier: 3000},
		{
			Timestamp: time.Unix(1_700_000_120, 0).UTC(),
			Op:        "remove",
			Pair:      "WETH/USDT",
			FeeTier:   3000,
			Result:    &model.ExecutionResult{State: model.StateCompleted},
		},
	}
	for i, record := range records {
		if err := journal.AppendResult(context.Background(), record); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	last, found, err := journal.LastExecution(context.Background(), "WETH/USDT")
	if err != nil {
		t.Fatalf("LastExecution: %v", err)
	}
	if !found {
		t.Fatal("expected a WETH/USDT record")
	}
	if last.Op != "remove" || !last.Timestamp.Equal(records[2].Timestamp) {
		t.Fatalf("last record = %+v, want the latest WETH/USDT entry", last)
	}

	if _, found, err := journal.LastExecution(context.Background(), "AAA/BBB"); err != nil || found {
		t.Fatalf("unknown pair: found = %v, err = %v", found, err)
	}

	missing := NewJsonlJournal(filepath.Join(t.TempDir(), "absent.jsonl"))
	if _, found, err := missing.LastExecution(context.Background(), "WETH/USDT"); err != nil || found {
		t.Fatalf("missing journal: found = %v, err = %v", found, err)
	}
}
