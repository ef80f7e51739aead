package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

// RunStore records crawl runs in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun stores a running row. Restarting a known run is a no-op.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return nil
	}
	s.runs[runID] = store.Run{ID: runID, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// FinishRun overwrites the final fields of a started run.
func (s *RunStore) FinishRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.FinishedAt = run.FinishedAt
	existing.Status = run.Status
	existing.Reason = run.Reason
	existing.PlayersProcessed = run.PlayersProcessed
	existing.BattlesStored = run.BattlesStored
	existing.ArchiveURI = run.ArchiveURI
	existing.ErrorMessage = run.ErrorMessage
	s.runs[run.ID] = existing
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}
