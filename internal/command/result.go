package command

import (
	"encoding/json"

	"github.com/jason-s-yu/picofermibagel/internal/game"
	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Result is what every operation returns across the service boundary.
type Result interface {
	Succeeded() bool
}

// Status is the {success, message} shape shared by every result.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s Status) Succeeded() bool { return s.Success }

func ok(message string) Status { return Status{Success: true, Message: message} }

type JoinLobbyResult struct {
	Status
	GameID         *string `json:"gameId"`
	PlayersWaiting int     `json:"playersWaiting"`
	Countdown      *int    `json:"countdown"`
	SeatIndex      *int    `json:"seatIndex,omitempty"`
}

type LobbyStatusResult struct {
	Status
	models.LobbySummary
}

type StartGameResult struct {
	Status
	GameID     string `json:"gameId,omitempty"`
	RandomSeed *int64 `json:"randomSeed,omitempty"`
}

type UpdateInterestResult struct {
	Status
	RoomClass        string `json:"roomClass,omitempty"`
	NewInterestCount int    `json:"newInterestCount"`
}

type RemoveInterestResult struct {
	Status
	NewInterestCount int `json:"newInterestCount"`
}

// InterestCountsResult encodes as a bare array on success.
type InterestCountsResult struct {
	Status
	Counts []models.InterestRecord
}

func (r InterestCountsResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(r.Status)
	}
	counts := r.Counts
	if counts == nil {
		counts = []models.InterestRecord{}
	}
	return json.Marshal(counts)
}

type CleanupResult struct {
	Status
	ActiveClientIDs []string `json:"activeClientIds"`
}

// CheckGuessResult carries the hint both structured and as the spoken words.
type CheckGuessResult struct {
	Status
	Hint     *game.Hint `json:"hint,omitempty"`
	Feedback string     `json:"feedback,omitempty"`
}
