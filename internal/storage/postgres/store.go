package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityPilot/internal/storage"
)

// Store provides Postgres persistence for execution records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the executions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS executions (
			id bigserial PRIMARY KEY,
			executed_at timestamptz NOT NULL,
			op text NOT NULL,
			pair text NOT NULL,
			fee_tier integer NOT NULL,
			dry_run boolean NOT NULL,
			state text NOT NULL,
			position_id text,
			tx_hashes text[],
			amount0 numeric,
			amount1 numeric,
			error text,
			payload jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	return err
}

// AppendResult inserts one execution record.
func (s *Store) AppendResult(ctx context.Context, record storage.ExecutionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	var (
		state      string
		positionID *string
		txHashes   []string
		amount0    *string
		amount1    *string
	)
	if record.Result != nil {
		state = record.Result.State.String()
		if record.Result.PositionID != nil {
			id := record.Result.PositionID.String()
			positionID = &id
		}
		txHashes = record.Result.TxHashes
		a0 := record.Result.Amount0.String()
		a1 := record.Result.Amount1.String()
		amount0, amount1 = &a0, &a1
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (
			executed_at, op, pair, fee_tier, dry_run, state,
			position_id, tx_hashes, amount0, amount1, error, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		record.Timestamp,
		record.Op,
		record.Pair,
		int64(record.FeeTier),
		record.DryRun,
		state,
		positionID,
		txHashes,
		amount0,
		amount1,
		nullableString(record.Error),
		payload,
	)
	return err
}

// LastExecution returns the most recent record payload for a pair, if any.
func (s *Store) LastExecution(ctx context.Context, pair string) (storage.ExecutionRecord, bool, error) {
	if pair == "" {
		return storage.ExecutionRecord{}, false, fmt.Errorf("pair is required")
	}

	var payload []byte
	row := s.pool.QueryRow(ctx, `
		SELECT payload FROM executions
		WHERE pair = $1
		ORDER BY executed_at DESC
		LIMIT 1
	`, pair)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ExecutionRecord{}, false, nil
		}
		return storage.ExecutionRecord{}, false, err
	}

	var record storage.ExecutionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return storage.ExecutionRecord{}, false, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return record, true, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
