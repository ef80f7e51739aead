package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// BattleStore keeps canonical battles keyed by their canonical key.
type BattleStore struct {
	mu      sync.RWMutex
	battles map[crawler.Key]crawler.Battle
	order   []crawler.Key
}

// NewBattleStore constructs an empty BattleStore.
func NewBattleStore() *BattleStore {
	return &BattleStore{battles: make(map[crawler.Key]crawler.Battle)}
}

// Name identifies the store in logs and metrics.
func (s *BattleStore) Name() string { return "memory" }

// SaveBattles stores battles not seen before and returns how many were new.
func (s *BattleStore) SaveBattles(_ context.Context, _ uuid.UUID, battles []crawler.Battle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, b := range battles {
		key := crawler.CanonicalKey(b)
		if _, ok := s.battles[key]; ok {
			continue
		}
		s.battles[key] = b.Canonical()
		s.order = append(s.order, key)
		inserted++
	}
	return inserted, nil
}

// Battles returns stored battles in insertion order.
func (s *BattleStore) Battles() []crawler.Battle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Battle, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.battles[k])
	}
	return out
}

// Len returns how many distinct battles are stored.
func (s *BattleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close is a no-op.
func (s *BattleStore) Close() error { return nil }
