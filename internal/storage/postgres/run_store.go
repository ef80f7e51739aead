package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool Pool
}

// NewRunStore creates a RunStore over pool.
func NewRunStore(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// EnsureSchema creates the crawl_runs table when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS crawl_runs (
			id                UUID PRIMARY KEY,
			started_at        TIMESTAMPTZ NOT NULL,
			finished_at       TIMESTAMPTZ,
			status            TEXT NOT NULL,
			reason            TEXT NOT NULL DEFAULT '',
			players_processed INTEGER NOT NULL DEFAULT 0,
			battles_stored    INTEGER NOT NULL DEFAULT 0,
			archive_uri       TEXT NOT NULL DEFAULT '',
			error_message     TEXT
		);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create crawl_runs: %w", err)
	}
	return nil
}

// StartRun inserts a running row for runID.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun records the final status and counters.
func (s *RunStore) FinishRun(ctx context.Context, run store.Run) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, reason = $3, players_processed = $4,
			battles_stored = $5, archive_uri = $6, error_message = $7
		WHERE id = $8;
	`
	res, err := s.pool.Exec(ctx, query,
		run.FinishedAt,
		run.Status,
		run.Reason,
		run.PlayersProcessed,
		run.BattlesStored,
		run.ArchiveURI,
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, reason, players_processed,
			battles_stored, archive_uri, error_message
		FROM crawl_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Reason,
		&run.PlayersProcessed,
		&run.BattlesStored,
		&run.ArchiveURI,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}
