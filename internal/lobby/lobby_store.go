// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"sort"
	"sync"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Store persists one LobbyRecord per room class. Implementations must make
// CompareAndSwap atomic: it succeeds only when the stored version equals
// expectedVersion (0 meaning "no row yet"), and then stores rec with
// Version = expectedVersion+1. A lost race returns models.ErrConflict.
type Store interface {
	Get(ctx context.Context, roomClass string) (*models.LobbyRecord, error)
	CompareAndSwap(ctx context.Context, rec *models.LobbyRecord, expectedVersion int64) error
	List(ctx context.Context) ([]*models.LobbyRecord, error)
}

// MemoryStore is a process-local Store, used for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex                     // Protects access to the lobbies map.
	lobbies map[string]*models.LobbyRecord // Map of room class to the last committed record.
}

// NewMemoryStore initializes and returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lobbies: make(map[string]*models.LobbyRecord),
	}
}

// Get returns a copy of the committed record or models.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, roomClass string) (*models.LobbyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[roomClass]
	if !ok {
		return nil, models.ErrNotFound
	}
	return l.Clone(), nil
}

// CompareAndSwap commits rec if nobody else has written since expectedVersion.
func (s *MemoryStore) CompareAndSwap(_ context.Context, rec *models.LobbyRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if l, ok := s.lobbies[rec.RoomClass]; ok {
		current = l.Version
	}
	if current != expectedVersion {
		return models.ErrConflict
	}
	rec.Version = expectedVersion + 1
	s.lobbies[rec.RoomClass] = rec.Clone()
	return nil
}

// List returns copies of every committed record ordered by room class.
func (s *MemoryStore) List(_ context.Context) ([]*models.LobbyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LobbyRecord, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomClass < out[j].RoomClass })
	return out, nil
}
