package interest

import (
	"context"
	"sync"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Store keeps one InterestRecord per room class. Writes are plain overwrites:
// recomputations are idempotent, so the last one to land wins.
type Store interface {
	Put(ctx context.Context, recs ...models.InterestRecord) error
	List(ctx context.Context) ([]models.InterestRecord, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.InterestRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.InterestRecord)}
}

func (s *MemoryStore) Put(_ context.Context, recs ...models.InterestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.RoomClass] = r
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.InterestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InterestRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}
