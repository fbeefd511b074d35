package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to PFB_TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PFB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PFB_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := ConnectDB(ctx, url)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestLobbyStoreCompareAndSwap(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewLobbyStore(pool)

	room := "test-" + uuid.NewString()
	t.Cleanup(func() { pool.Exec(ctx, `DELETE FROM lobbies WHERE room_class = $1`, room) })

	_, err := store.Get(ctx, room)
	assert.ErrorIs(t, err, models.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := models.NewLobbyRecord(room)
	rec.SeatedPlayers = []models.Player{{Username: "alice", ClientID: "c1", SeatIndex: 0, JoinedAt: now}}
	require.NoError(t, store.CompareAndSwap(ctx, rec, 0))
	assert.EqualValues(t, 1, rec.Version)

	// a second insert for the same room loses
	dup := models.NewLobbyRecord(room)
	assert.ErrorIs(t, store.CompareAndSwap(ctx, dup, 0), models.ErrConflict)

	got, err := store.Get(ctx, room)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
	require.Len(t, got.SeatedPlayers, 1)
	assert.Equal(t, "alice", got.SeatedPlayers[0].Username)
	assert.Nil(t, got.GameSettings)

	settings := models.DefaultSettings("hard")
	seed := int64(42)
	gameID := uuid.NewString()
	got.SeatedPlayers = []models.Player{}
	got.ActiveGameID = &gameID
	got.GameActive = true
	got.GameSettings = &settings
	got.RandomSeed = &seed
	require.NoError(t, store.CompareAndSwap(ctx, got, 1))
	assert.EqualValues(t, 2, got.Version)

	// stale writer
	stale := rec.Clone()
	assert.ErrorIs(t, store.CompareAndSwap(ctx, stale, 1), models.ErrConflict)

	final, err := store.Get(ctx, room)
	require.NoError(t, err)
	assert.True(t, final.GameActive)
	assert.Empty(t, final.SeatedPlayers)
	require.NotNil(t, final.GameSettings)
	assert.Equal(t, settings, *final.GameSettings)
	assert.Equal(t, seed, *final.RandomSeed)
}

func TestInsertLaunches(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	room := "test-" + uuid.NewString()
	t.Cleanup(func() { pool.Exec(ctx, `DELETE FROM game_launches WHERE room_class = $1`, room) })

	rec := models.LaunchRecord{
		GameID:       uuid.NewString(),
		RoomClass:    room,
		Players:      []models.Player{{Username: "alice", ClientID: "c1", SeatIndex: 0}},
		GameSettings: models.DefaultSettings(room),
		RandomSeed:   7,
		StartedAt:    time.Now().UnixMilli(),
	}
	history := NewLaunchHistory(pool)
	require.NoError(t, history.InsertLaunches(ctx, []models.LaunchRecord{rec}))
	// redelivery is a no-op
	require.NoError(t, history.InsertLaunches(ctx, []models.LaunchRecord{rec}))

	got, err := history.RecentLaunches(ctx, room, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.GameID, got[0].GameID)
	assert.Equal(t, rec.RandomSeed, got[0].RandomSeed)
	assert.Equal(t, "alice", got[0].Players[0].Username)
}
