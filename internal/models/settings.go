// internal/models/settings.go
package models

// GameSettings is the snapshot of puzzle rules shared by every player of a launched game.
type GameSettings struct {
	// Difficulty mirrors the room class the game was launched from.
	Difficulty string `json:"difficulty"`

	// CodeLength is the number of digits in the secret code.
	CodeLength int `json:"codeLength"`

	// MaxGuesses is how many guesses a player gets before the round is lost.
	MaxGuesses int `json:"maxGuesses"`

	// AllowRepeats permits the same digit to appear more than once in the secret.
	AllowRepeats bool `json:"allowRepeats"`

	// TimeLimitSec caps the round length (0 => no limit).
	TimeLimitSec int `json:"timeLimitSec"`
}

var defaultSettings = map[string]GameSettings{
	"easy": {
		Difficulty: "easy",
		CodeLength: 3,
		MaxGuesses: 15,
	},
	"classic": {
		Difficulty: "classic",
		CodeLength: 3,
		MaxGuesses: 10,
	},
	"hard": {
		Difficulty:   "hard",
		CodeLength:   4,
		MaxGuesses:   10,
		TimeLimitSec: 300,
	},
}

// DefaultSettings returns the settings used when a room class launches without explicit settings.
// Unknown room classes play classic rules under their own name.
func DefaultSettings(roomClass string) GameSettings {
	if s, ok := defaultSettings[roomClass]; ok {
		return s
	}
	s := defaultSettings["classic"]
	s.Difficulty = roomClass
	return s
}
