package models

import "time"

// Player is one seat in a waiting room.
type Player struct {
	Username  string    `json:"username"`
	ClientID  string    `json:"clientId"` // stable per installation, used for de-duplication
	SeatIndex int       `json:"seatIndex"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// PlayerView is the public projection of a seated player.
type PlayerView struct {
	Username  string    `json:"username"`
	JoinedAt  time.Time `json:"joinedAt"`
	SeatIndex int       `json:"seatIndex"`
}
