package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/game"
	"github.com/jason-s-yu/picofermibagel/internal/interest"
	"github.com/jason-s-yu/picofermibagel/internal/launch"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/jason-s-yu/picofermibagel/internal/presence"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newDispatcher(t *testing.T) (*Dispatcher, *clock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	svc := lobby.NewService(lobby.NewMemoryStore(), nil, logger, lobby.Options{Now: clk.Now})
	tracker := presence.NewTracker(presence.NewMemoryStore(clk.Now), logger, presence.Options{Now: clk.Now})
	agg := interest.NewAggregator(tracker, interest.NewMemoryStore(), nil, logger, clk.Now)
	coord := launch.NewCoordinator(svc, nil, nil, logger, launch.Options{})
	return NewDispatcher(svc, tracker, agg, coord, logger), clk
}

func run(t *testing.T, d *Dispatcher, op, body string) Result {
	t.Helper()
	cmd, err := Decode(op, []byte(body))
	require.NoError(t, err)
	return d.Dispatch(context.Background(), cmd)
}

func TestDecode(t *testing.T) {
	cmd, err := Decode(OpJoinLobby, []byte(`{"roomClass":"classic","clientId":"c1","username":"alice"}`))
	require.NoError(t, err)
	join, ok := cmd.(*JoinLobby)
	require.True(t, ok)
	assert.Equal(t, JoinLobby{RoomClass: "classic", ClientID: "c1", Username: "alice"}, *join)

	cmd, err = Decode(OpGetInterestCounts, nil)
	require.NoError(t, err)
	assert.Equal(t, OpGetInterestCounts, cmd.Operation())

	_, err = Decode("dropTables", nil)
	assert.ErrorIs(t, err, ErrUnknownOperation)

	_, err = Decode(OpJoinLobby, []byte(`{"roomClass":`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEveryOperationIsDispatched(t *testing.T) {
	d, _ := newDispatcher(t)
	for _, op := range Operations {
		cmd, err := New(op)
		require.NoError(t, err, op)
		assert.Equal(t, op, cmd.Operation())

		res := d.Dispatch(context.Background(), cmd)
		require.NotNil(t, res, op)
		raw, err := json.Marshal(res)
		require.NoError(t, err, op)
		assert.NotContains(t, string(raw), "Unsupported operation", op)
	}
}

func TestJoinLobbyFlow(t *testing.T) {
	d, _ := newDispatcher(t)

	res := run(t, d, OpJoinLobby, `{"roomClass":"classic","clientId":"a","username":"alice"}`).(JoinLobbyResult)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.PlayersWaiting)
	assert.Nil(t, res.Countdown)
	assert.Equal(t, 0, *res.SeatIndex)

	res = run(t, d, OpJoinLobby, `{"roomClass":"classic","clientId":"b","username":"bob"}`).(JoinLobbyResult)
	assert.Equal(t, 2, res.PlayersWaiting)
	require.NotNil(t, res.Countdown)
	assert.Equal(t, 30, *res.Countdown)

	left := run(t, d, OpLeaveLobby, `{"roomClass":"classic","clientId":"a"}`)
	assert.True(t, left.Succeeded())

	status := run(t, d, OpGetLobbyStatus, `{"roomClass":"classic"}`).(LobbyStatusResult)
	assert.True(t, status.Success)
	assert.Equal(t, 1, status.PlayersWaiting)
	assert.Nil(t, status.Countdown)
	require.Len(t, status.Players, 1)
	assert.Equal(t, "bob", status.Players[0].Username)
}

func TestJoinLobbyFull(t *testing.T) {
	d, _ := newDispatcher(t)
	for i := 0; i < models.MaxSeats; i++ {
		res := run(t, d, OpJoinLobby, fmt.Sprintf(`{"roomClass":"easy","clientId":"c%d","username":"u%d"}`, i, i))
		require.True(t, res.Succeeded())
	}
	res := run(t, d, OpJoinLobby, `{"roomClass":"easy","clientId":"c9","username":"late"}`).(JoinLobbyResult)
	assert.False(t, res.Success)
	assert.Equal(t, "Lobby is full", res.Message)
	assert.Equal(t, models.MaxSeats, res.PlayersWaiting)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"Lobby is full","gameId":null,"playersWaiting":4,"countdown":null}`, string(raw))
}

func TestValidationMessage(t *testing.T) {
	d, _ := newDispatcher(t)
	res := run(t, d, OpJoinLobby, `{"roomClass":"classic","clientId":"a"}`).(JoinLobbyResult)
	assert.False(t, res.Success)
	assert.Equal(t, "username is required", res.Message)

	hb := run(t, d, OpSendHeartbeat, `{"roomClass":"classic","username":"x"}`)
	assert.False(t, hb.Succeeded())
}

func TestStartAndFinishGame(t *testing.T) {
	d, _ := newDispatcher(t)
	run(t, d, OpJoinLobby, `{"roomClass":"classic","clientId":"a","username":"alice"}`)

	res := run(t, d, OpStartGame, `{"roomClass":"classic","gameId":"g-1","randomSeed":7}`).(StartGameResult)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "g-1", res.GameID)
	assert.EqualValues(t, 7, *res.RandomSeed)

	status := run(t, d, OpGetLobbyStatus, `{"roomClass":"classic"}`).(LobbyStatusResult)
	assert.True(t, status.GameActive)
	assert.Equal(t, 0, status.PlayersWaiting)
	assert.Equal(t, "g-1", *status.GameID)

	fin := run(t, d, OpFinishGame, `{"roomClass":"classic","gameId":"g-1"}`)
	assert.True(t, fin.Succeeded())
	status = run(t, d, OpGetLobbyStatus, `{"roomClass":"classic"}`).(LobbyStatusResult)
	assert.False(t, status.GameActive)

	empty := run(t, d, OpStartGame, `{"roomClass":"hard"}`).(StartGameResult)
	assert.False(t, empty.Success)
	assert.Equal(t, "No players waiting", empty.Message)

	// an explicit empty roster still launches and resets the room
	forced := run(t, d, OpStartGame, `{"roomClass":"hard","gameId":"g-2","players":[]}`).(StartGameResult)
	assert.True(t, forced.Success, forced.Message)
	assert.Equal(t, "g-2", forced.GameID)
}

// TestStartGamePartialSettings checks gameSettings only overrides the keys it names.
func TestStartGamePartialSettings(t *testing.T) {
	d, _ := newDispatcher(t)
	run(t, d, OpJoinLobby, `{"roomClass":"hard","clientId":"a","username":"alice"}`)

	res := run(t, d, OpStartGame, `{"roomClass":"hard","gameId":"g-h","randomSeed":11,"gameSettings":{"allowRepeats":true}}`).(StartGameResult)
	require.True(t, res.Success, res.Message)

	bad := run(t, d, OpStartGame, `{"roomClass":"easy","players":[],"gameSettings":{"codeLength":42}}`).(StartGameResult)
	assert.False(t, bad.Success)
	assert.Equal(t, "codeLength must be between 1 and 10", bad.Message)
}

func TestCheckGuessOperation(t *testing.T) {
	d, _ := newDispatcher(t)
	run(t, d, OpJoinLobby, `{"roomClass":"classic","clientId":"a","username":"alice"}`)
	start := run(t, d, OpStartGame, `{"roomClass":"classic","gameId":"g-1","randomSeed":7}`).(StartGameResult)
	require.True(t, start.Success, start.Message)

	secret, err := game.SecretFromSeed(7, models.DefaultSettings("classic"))
	require.NoError(t, err)

	res := run(t, d, OpCheckGuess, fmt.Sprintf(`{"roomClass":"classic","gameId":"g-1","guess":%q}`, secret)).(CheckGuessResult)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Solved", res.Message)
	require.NotNil(t, res.Hint)
	assert.True(t, res.Hint.Solved)
	assert.Equal(t, "Fermi Fermi Fermi", res.Feedback)

	wrong := run(t, d, OpCheckGuess, `{"roomClass":"classic","gameId":"g-other","guess":"123"}`).(CheckGuessResult)
	assert.False(t, wrong.Success)
	assert.Equal(t, "No active game", wrong.Message)

	raw, err := json.Marshal(wrong)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"No active game"}`, string(raw))
}

func TestInterestOperations(t *testing.T) {
	d, clk := newDispatcher(t)

	up := run(t, d, OpUpdateInterest, `{"roomClass":"classic","clientId":"a","username":"alice"}`).(UpdateInterestResult)
	assert.True(t, up.Success)
	assert.Equal(t, "classic", up.RoomClass)
	assert.Equal(t, 1, up.NewInterestCount)

	// repeating the signal never inflates the count
	up = run(t, d, OpUpdateInterest, `{"roomClass":"classic","clientId":"a","username":"alice"}`).(UpdateInterestResult)
	assert.Equal(t, 1, up.NewInterestCount)
	up = run(t, d, OpUpdateInterest, `{"roomClass":"classic","clientId":"b","username":"bob"}`).(UpdateInterestResult)
	assert.Equal(t, 2, up.NewInterestCount)

	raw, err := json.Marshal(run(t, d, OpGetInterestCounts, ""))
	require.NoError(t, err)
	var counts []models.InterestRecord
	require.NoError(t, json.Unmarshal(raw, &counts))
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].InterestCount)

	rm := run(t, d, OpRemoveInterest, `{"roomClass":"classic","clientId":"a"}`).(RemoveInterestResult)
	assert.True(t, rm.Success)
	assert.Equal(t, 1, rm.NewInterestCount)

	clk.Advance(4 * time.Minute)
	cleanup := run(t, d, OpCleanupStaleInterests, "").(CleanupResult)
	assert.True(t, cleanup.Success)
	assert.Empty(t, cleanup.ActiveClientIDs)
	raw, err = json.Marshal(cleanup)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"activeClientIds":[]`)
}

func TestInterestCountsFailureShape(t *testing.T) {
	res := InterestCountsResult{Status: Status{Message: "Storage unavailable, please retry"}}
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"message":"Storage unavailable, please retry"}`, string(raw))

	raw, err = json.Marshal(InterestCountsResult{Status: ok("")})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestMessage(t *testing.T) {
	cases := map[string]error{
		"Lobby is full":                     &models.LobbyFullError{RoomClass: "easy", PlayersWaiting: 4},
		"roomClass is required":             &models.ValidationError{Field: "roomClass"},
		"Lobby is busy, please retry":       fmt.Errorf("lobby classic: %w after 5 attempts", models.ErrConflict),
		"Storage unavailable, please retry": models.StorageError("load lobby classic", errors.New("timeout")),
		"Request cancelled":                 context.Canceled,
		"No active game":                    launch.ErrNoActiveGame,
		"Time is up":                        launch.ErrTimeUp,
		"Internal error":                    errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Message(err))
	}
}
