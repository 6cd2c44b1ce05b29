package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JsonlJournal appends execution records to a JSONL file.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

// AppendResult appends one execution record as a JSON line.
func (j *JsonlJournal) AppendResult(_ context.Context, record ExecutionRecord) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write execution record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	return nil
}

// LastExecution scans the journal for the most recent record of a pair. A
// missing journal file means no history, not an error.
func (j *JsonlJournal) LastExecution(_ context.Context, pair string) (ExecutionRecord, bool, error) {
	if pair == "" {
		return ExecutionRecord{}, false, fmt.Errorf("pair is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ExecutionRecord{}, false, nil
		}
		return ExecutionRecord{}, false, fmt.Errorf("open journal file: %w", err)
	}
	defer file.Close()

	var (
		last  ExecutionRecord
		found bool
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record ExecutionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return ExecutionRecord{}, false, fmt.Errorf("parse journal line: %w", err)
		}
		if record.Pair == pair {
			last, found = record, true
		}
	}
	if err := scanner.Err(); err != nil {
		return ExecutionRecord{}, false, fmt.Errorf("scan journal: %w", err)
	}
	return last, found, nil
}
