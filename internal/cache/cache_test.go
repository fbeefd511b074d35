package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(context.Background(), mr.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestPresenceStoreRoundTrip(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewPresenceStore(rdb)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := models.PresenceRecord{ClientID: "a", RoomClass: "classic", Username: "alice", LastHeartbeatAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	require.NoError(t, s.Put(ctx, rec, 5*time.Minute))
	require.NoError(t, s.Put(ctx, models.PresenceRecord{ClientID: "b", RoomClass: "easy", Username: "bob", LastHeartbeatAt: now}, 5*time.Minute))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, s.Delete(ctx, "b", "missing"))
	recs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "classic", recs[0].RoomClass)
	assert.True(t, recs[0].LastHeartbeatAt.Equal(now))
}

// TestPresenceStoreDeleteStale checks only records whose heartbeat is unchanged are removed.
func TestPresenceStoreDeleteStale(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewPresenceStore(rdb)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	old := models.PresenceRecord{ClientID: "a", RoomClass: "classic", Username: "alice", LastHeartbeatAt: now.Add(-10 * time.Minute)}
	refreshed := models.PresenceRecord{ClientID: "b", RoomClass: "classic", Username: "bob", LastHeartbeatAt: now.Add(-10 * time.Minute)}
	require.NoError(t, s.Put(ctx, old, 5*time.Minute))
	require.NoError(t, s.Put(ctx, refreshed, 5*time.Minute))

	seen, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, seen, 2)

	// b heartbeats after the listing
	refreshed.LastHeartbeatAt = now
	require.NoError(t, s.Put(ctx, refreshed, 5*time.Minute))

	removed, err := s.DeleteStale(ctx, append(seen, models.PresenceRecord{ClientID: "missing"})...)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "missing"}, removed)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ClientID)
	assert.True(t, recs[0].LastHeartbeatAt.Equal(now))
}

// TestPresenceStoreExpiry checks the TTL drops a record and List prunes it from the index.
func TestPresenceStoreExpiry(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := NewPresenceStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.PresenceRecord{ClientID: "a", RoomClass: "classic"}, 5*time.Minute))
	require.NoError(t, s.Put(ctx, models.PresenceRecord{ClientID: "b", RoomClass: "classic"}, 10*time.Minute))
	mr.FastForward(6 * time.Minute)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ClientID)

	members, err := mr.SMembers(presenceIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestPresenceStoreEmpty(t *testing.T) {
	_, rdb := setupRedis(t)
	recs, err := NewPresenceStore(rdb).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInterestStore(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewInterestStore(rdb)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx,
		models.InterestRecord{RoomClass: "classic", InterestCount: 3, LastUpdated: now},
		models.InterestRecord{RoomClass: "easy", InterestCount: 1, LastUpdated: now},
	))
	require.NoError(t, s.Put(ctx, models.InterestRecord{RoomClass: "classic", InterestCount: 2, LastUpdated: now}))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	got := map[string]int{}
	for _, r := range recs {
		got[r.RoomClass] = r.InterestCount
	}
	assert.Equal(t, map[string]int{"classic": 2, "easy": 1}, got)
}

func TestLaunchQueue(t *testing.T) {
	_, rdb := setupRedis(t)
	q := NewLaunchQueue(rdb, "")
	ctx := context.Background()
	assert.Equal(t, DefaultLaunchQueue, q.Name())

	rec := models.LaunchRecord{GameID: "g1", RoomClass: "classic", RandomSeed: 7, StartedAt: 1714564800000}
	require.NoError(t, q.RecordLaunch(ctx, rec))

	items, err := rdb.LRange(ctx, DefaultLaunchQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)
	var got models.LaunchRecord
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, rec, got)
}

func TestConnectRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := ConnectRedis(context.Background(), addr, 0)
	assert.Error(t, err)
}
