package models

import "time"

// InterestRecord caches how many live clients are interested in a room class.
// It is always rederivable from presence records.
type InterestRecord struct {
	RoomClass     string    `json:"roomClass"`
	InterestCount int       `json:"interestCount"`
	LastUpdated   time.Time `json:"timestamp"`
}
