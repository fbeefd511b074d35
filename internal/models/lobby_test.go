package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowestFreeSeat(t *testing.T) {
	l := NewLobbyRecord("classic")
	assert.Equal(t, 0, l.LowestFreeSeat())

	l.SeatedPlayers = []Player{{ClientID: "a", SeatIndex: 0}, {ClientID: "c", SeatIndex: 2}}
	assert.Equal(t, 1, l.LowestFreeSeat())

	l.SeatedPlayers = append(l.SeatedPlayers, Player{ClientID: "b", SeatIndex: 1}, Player{ClientID: "d", SeatIndex: 3})
	assert.Equal(t, -1, l.LowestFreeSeat())
}

func TestRemainingAndExpiry(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	secs := 30
	l := NewLobbyRecord("classic")
	assert.Nil(t, l.Remaining(start))
	assert.False(t, l.CountdownExpired(start))

	l.Countdown = &secs
	l.CountdownStartedAt = &start

	require.NotNil(t, l.Remaining(start.Add(12500*time.Millisecond)))
	assert.Equal(t, 18, *l.Remaining(start.Add(12500*time.Millisecond)))
	assert.False(t, l.CountdownExpired(start.Add(29*time.Second)))
	assert.True(t, l.CountdownExpired(start.Add(30*time.Second)))
	assert.Equal(t, -5, *l.Remaining(start.Add(35*time.Second)))
}

func TestCloneIsDeep(t *testing.T) {
	secs := 30
	id := "g"
	l := &LobbyRecord{
		RoomClass:     "classic",
		SeatedPlayers: []Player{{ClientID: "a"}},
		Countdown:     &secs,
		ActiveGameID:  &id,
	}
	c := l.Clone()
	c.SeatedPlayers[0].ClientID = "b"
	*c.Countdown = 5
	*c.ActiveGameID = "h"

	assert.Equal(t, "a", l.SeatedPlayers[0].ClientID)
	assert.Equal(t, 30, *l.Countdown)
	assert.Equal(t, "g", *l.ActiveGameID)
}

func TestErrorTaxonomy(t *testing.T) {
	err := Require("roomClass", "classic", "clientId", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.EqualError(t, err, "clientId is required")
	assert.NoError(t, Require("a", "1", "b", "2"))

	var full error = &LobbyFullError{RoomClass: "easy", PlayersWaiting: MaxSeats}
	assert.True(t, errors.Is(full, ErrLobbyFull))
	assert.False(t, errors.Is(full, ErrValidation))

	st := StorageError("save lobby", errors.New("timeout"))
	assert.True(t, errors.Is(st, ErrStorage))
	assert.Contains(t, st.Error(), "timeout")
}

func TestDefaultSettings(t *testing.T) {
	assert.Equal(t, 4, DefaultSettings("hard").CodeLength)
	custom := DefaultSettings("weekend")
	assert.Equal(t, "weekend", custom.Difficulty)
	assert.Equal(t, DefaultSettings("classic").MaxGuesses, custom.MaxGuesses)
}
