package models

import "time"

// GameStartEvent is broadcast to every subscriber of a room class once a launch has been persisted.
type GameStartEvent struct {
	GameID       string       `json:"gameId"`
	RoomClass    string       `json:"roomClass"`
	Players      []Player     `json:"players"`
	GameSettings GameSettings `json:"gameSettings"`
	RandomSeed   int64        `json:"randomSeed"`
	StartedAt    time.Time    `json:"startedAt"`
}

// LaunchRecord is the historian's view of a launch, queued after the game starts.
type LaunchRecord struct {
	GameID       string       `json:"gameId"`
	RoomClass    string       `json:"roomClass"`
	Players      []Player     `json:"players"`
	GameSettings GameSettings `json:"gameSettings"`
	RandomSeed   int64        `json:"randomSeed"`
	StartedAt    int64        `json:"startedAt"` // epoch millis
}
