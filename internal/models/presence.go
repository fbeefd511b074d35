package models

import "time"

const (
	// StaleThreshold is how long after its last heartbeat a client stops counting as present.
	StaleThreshold = 3 * time.Minute

	// PresenceTTL bounds how long an unswept presence record survives in storage.
	PresenceTTL = 5 * time.Minute
)

// PresenceRecord is the latest liveness signal from one client.
type PresenceRecord struct {
	ClientID        string    `json:"clientId"`
	RoomClass       string    `json:"roomClass"`
	Username        string    `json:"username"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Stale reports whether the record is older than threshold at now.
func (p PresenceRecord) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(p.LastHeartbeatAt) > threshold
}

// ActiveClient is a (roomClass, clientId) pair that survived a staleness sweep.
type ActiveClient struct {
	RoomClass string `json:"roomClass"`
	ClientID  string `json:"clientId"`
}
