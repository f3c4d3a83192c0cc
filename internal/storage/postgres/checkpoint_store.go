package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicproof/boundary-registry/internal/ingest/checkpoint"
)

// CheckpointStore persists the single ingestion checkpoint in a one-row
// table. The upsert replaces the previous state in one statement, giving the
// same all-or-nothing replacement the file store gets from rename.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

func NewCheckpointStore(pool *pgxpool.Pool) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("checkpoint store: pool is nil")
	}
	return &CheckpointStore{pool: pool}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, state *checkpoint.State) error {
	if state == nil || state.RunID == "" {
		return fmt.Errorf("save checkpoint: missing run id")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	const query = `
INSERT INTO ingest_checkpoint (singleton, run_id, state, updated_at)
VALUES (true, $1, $2, now())
ON CONFLICT (singleton) DO UPDATE SET run_id = $1, state = $2, updated_at = now()`
	if _, err := s.pool.Exec(ctx, query, state.RunID, payload); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context) (*checkpoint.State, error) {
	const query = `SELECT state FROM ingest_checkpoint WHERE singleton = true`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state checkpoint.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrCorrupt, err)
	}
	if state.RunID == "" || state.Sources == nil {
		return nil, fmt.Errorf("%w: missing run id or sources", checkpoint.ErrCorrupt)
	}
	return &state, nil
}

func (s *CheckpointStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ingest_checkpoint WHERE singleton = true`); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
