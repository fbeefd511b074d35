package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Store holds one PresenceRecord per client.
type Store interface {
	// Put upserts rec; the backend may drop it on its own once ttl passes.
	Put(ctx context.Context, rec models.PresenceRecord, ttl time.Duration) error
	// Delete removes the given clients. Absent clients are ignored.
	Delete(ctx context.Context, clientIDs ...string) error
	// DeleteStale removes each record only while its stored LastHeartbeatAt is
	// still the one in seen, and returns the ids that are now gone (including
	// ones already absent). A record refreshed since it was listed is left alone.
	DeleteStale(ctx context.Context, seen ...models.PresenceRecord) ([]string, error)
	// List returns every record the backend still holds.
	List(ctx context.Context) ([]models.PresenceRecord, error)
}

// MemoryStore keeps presence in process memory, honoring expiresAt on read.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.PresenceRecord
	now     func() time.Time
}

// NewMemoryStore returns an empty store. now is used to drop expired records; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]models.PresenceRecord),
		now:     now,
	}
}

func (s *MemoryStore) Put(_ context.Context, rec models.PresenceRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ClientID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, clientIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range clientIDs {
		delete(s.records, id)
	}
	return nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, seen ...models.PresenceRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]string, 0, len(seen))
	for _, rec := range seen {
		cur, ok := s.records[rec.ClientID]
		if ok && !cur.LastHeartbeatAt.Equal(rec.LastHeartbeatAt) {
			continue
		}
		delete(s.records, rec.ClientID)
		removed = append(removed, rec.ClientID)
	}
	return removed, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]models.PresenceRecord, 0, len(s.records))
	for id, rec := range s.records {
		if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
			delete(s.records, id)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}
