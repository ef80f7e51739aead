package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BattleStore persists canonical battles. Implementations ignore battles
// whose canonical key is already stored and report only new rows.
type BattleStore interface {
	Name() string
	SaveBattles(ctx context.Context, runID uuid.UUID, battles []crawler.Battle) (int, error)
	Close() error
}

// BlobStore uploads finished artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one crawl session.
type Run struct {
	// ID is the run's v7 UUID.
	ID uuid.UUID
	// StartedAt captures when the session opened.
	StartedAt time.Time
	// FinishedAt is nil until the run completes.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Reason is the engine's termination reason.
	Reason string
	// PlayersProcessed and BattlesStored are the final counters.
	PlayersProcessed int
	BattlesStored    int
	// ArchiveURI locates the uploaded battle file, if any.
	ArchiveURI string
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// RunRepository records crawl sessions.
type RunRepository interface {
	// StartRun inserts a running row.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// FinishRun marks the run finished with its final counters.
	FinishRun(ctx context.Context, run Run) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
}
