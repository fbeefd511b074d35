// internal/models/lobby.go
package models

import "time"

// MaxSeats is the number of seats in a waiting room.
const MaxSeats = 4

// LobbyRecord is the authoritative waiting-room state for one room class.
// It is stored one row per room class and only ever written through a
// version-checked update.
type LobbyRecord struct {
	RoomClass     string   `json:"roomClass"`
	SeatedPlayers []Player `json:"seatedPlayers"`

	ActiveGameID       *string    `json:"activeGameId,omitempty"`
	Countdown          *int       `json:"countdown,omitempty"`
	CountdownStartedAt *time.Time `json:"countdownStartedAt,omitempty"`
	GameActive         bool       `json:"gameActive"`

	// Snapshot of the most recent launch.
	GameSettings  *GameSettings `json:"gameSettings,omitempty"`
	RandomSeed    *int64        `json:"randomSeed,omitempty"`
	GameStartTime *time.Time    `json:"gameStartTime,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`

	// Version is bumped on every successful write. 0 means the record has never been persisted.
	Version int64 `json:"version"`
}

// NewLobbyRecord returns an empty, unpersisted record for roomClass.
func NewLobbyRecord(roomClass string) *LobbyRecord {
	return &LobbyRecord{
		RoomClass:     roomClass,
		SeatedPlayers: []Player{},
	}
}

// Clone returns a deep copy so a mutation can be discarded if the write loses a race.
func (l *LobbyRecord) Clone() *LobbyRecord {
	c := *l
	c.SeatedPlayers = append([]Player{}, l.SeatedPlayers...)
	if l.ActiveGameID != nil {
		v := *l.ActiveGameID
		c.ActiveGameID = &v
	}
	if l.Countdown != nil {
		v := *l.Countdown
		c.Countdown = &v
	}
	if l.CountdownStartedAt != nil {
		v := *l.CountdownStartedAt
		c.CountdownStartedAt = &v
	}
	if l.GameSettings != nil {
		v := *l.GameSettings
		c.GameSettings = &v
	}
	if l.RandomSeed != nil {
		v := *l.RandomSeed
		c.RandomSeed = &v
	}
	if l.GameStartTime != nil {
		v := *l.GameStartTime
		c.GameStartTime = &v
	}
	return &c
}

// SeatOf returns the seated player with clientID, if any.
func (l *LobbyRecord) SeatOf(clientID string) (Player, bool) {
	for _, p := range l.SeatedPlayers {
		if p.ClientID == clientID {
			return p, true
		}
	}
	return Player{}, false
}

// LowestFreeSeat returns the lowest seat index in [0, MaxSeats) not taken, or -1 if full.
func (l *LobbyRecord) LowestFreeSeat() int {
	taken := make(map[int]bool, len(l.SeatedPlayers))
	for _, p := range l.SeatedPlayers {
		taken[p.SeatIndex] = true
	}
	for i := 0; i < MaxSeats; i++ {
		if !taken[i] {
			return i
		}
	}
	return -1
}

// CountdownRunning reports whether the auto-launch countdown has been started.
func (l *LobbyRecord) CountdownRunning() bool {
	return l.Countdown != nil && l.CountdownStartedAt != nil
}

// Remaining returns whole seconds left on the countdown at now, or nil if none is running.
// The value goes to zero and below once the countdown has elapsed without a launch.
func (l *LobbyRecord) Remaining(now time.Time) *int {
	if !l.CountdownRunning() {
		return nil
	}
	elapsed := int(now.Sub(*l.CountdownStartedAt) / time.Second)
	left := *l.Countdown - elapsed
	return &left
}

// CountdownExpired reports whether a running countdown has reached zero at now.
func (l *LobbyRecord) CountdownExpired(now time.Time) bool {
	if !l.CountdownRunning() {
		return false
	}
	deadline := l.CountdownStartedAt.Add(time.Duration(*l.Countdown) * time.Second)
	return !now.Before(deadline)
}

// State names the lifecycle stage of the record.
func (l *LobbyRecord) State() LobbyState {
	switch {
	case l.GameActive:
		return StateActive
	case l.CountdownRunning():
		return StateCountdown
	case len(l.SeatedPlayers) > 0:
		return StateWaiting
	default:
		return StateEmpty
	}
}

// LobbyState is the coarse state of a lobby record.
type LobbyState string

const (
	StateEmpty     LobbyState = "empty"
	StateWaiting   LobbyState = "waiting"
	StateCountdown LobbyState = "countdown"
	StateActive    LobbyState = "active"
)

// LobbySummary is the full-state snapshot pushed to subscribers and returned by status reads.
type LobbySummary struct {
	RoomClass      string       `json:"roomClass"`
	PlayersWaiting int          `json:"playersWaiting"`
	Players        []PlayerView `json:"players"`
	GameID         *string      `json:"gameId,omitempty"`
	Countdown      *int         `json:"countdown,omitempty"`
	GameActive     bool         `json:"gameActive"`
	State          LobbyState   `json:"state"`
	LastUpdated    time.Time    `json:"lastUpdated"`
}

// Summary projects the record into a LobbySummary at now.
func (l *LobbyRecord) Summary(now time.Time) LobbySummary {
	players := make([]PlayerView, 0, len(l.SeatedPlayers))
	for _, p := range l.SeatedPlayers {
		players = append(players, PlayerView{
			Username:  p.Username,
			JoinedAt:  p.JoinedAt,
			SeatIndex: p.SeatIndex,
		})
	}
	return LobbySummary{
		RoomClass:      l.RoomClass,
		PlayersWaiting: len(l.SeatedPlayers),
		Players:        players,
		GameID:         l.ActiveGameID,
		Countdown:      l.Remaining(now),
		GameActive:     l.GameActive,
		State:          l.State(),
		LastUpdated:    l.LastUpdated,
	}
}
