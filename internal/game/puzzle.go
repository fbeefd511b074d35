// internal/game/puzzle.go
package game

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// secretStream is the fixed PCG stream selector. Changing it changes every
// puzzle derived from a stored seed.
const secretStream = 0x9e3779b97f4a7c15

// SecretFromSeed derives the secret code of a launched game. Every client
// holding the same seed and settings derives the same code.
func SecretFromSeed(seed int64, s models.GameSettings) (string, error) {
	if err := ValidateSettings(s); err != nil {
		return "", err
	}
	rng := rand.New(rand.NewPCG(uint64(seed), secretStream))

	var b strings.Builder
	if s.AllowRepeats {
		for i := 0; i < s.CodeLength; i++ {
			b.WriteByte(byte('0' + rng.IntN(Digits)))
		}
		return b.String(), nil
	}
	for _, d := range rng.Perm(Digits)[:s.CodeLength] {
		b.WriteByte(byte('0' + d))
	}
	return b.String(), nil
}

// Hint is the feedback for one guess: a Fermi per digit in the right place,
// a Pico per right digit in the wrong place, Bagels when nothing matches.
type Hint struct {
	Fermis int  `json:"fermis"`
	Picos  int  `json:"picos"`
	Bagels bool `json:"bagels"`
	Solved bool `json:"solved"`
}

func (h Hint) String() string {
	if h.Bagels {
		return "Bagels"
	}
	words := make([]string, 0, h.Fermis+h.Picos)
	for i := 0; i < h.Fermis; i++ {
		words = append(words, "Fermi")
	}
	for i := 0; i < h.Picos; i++ {
		words = append(words, "Pico")
	}
	return strings.Join(words, " ")
}

// Score compares guess against secret. Repeated digits are matched at most as
// many times as they occur in the secret.
func Score(guess, secret string) (Hint, error) {
	if len(guess) != len(secret) {
		return Hint{}, &models.ValidationError{Field: "guess", Reason: fmt.Sprintf("must have %d digits", len(secret))}
	}
	var secretLeft, guessLeft [Digits]int
	var h Hint
	for i := 0; i < len(guess); i++ {
		g, s := guess[i], secret[i]
		if g < '0' || g > '9' {
			return Hint{}, &models.ValidationError{Field: "guess", Reason: "must contain only digits"}
		}
		if g == s {
			h.Fermis++
			continue
		}
		secretLeft[s-'0']++
		guessLeft[g-'0']++
	}
	for d := 0; d < Digits; d++ {
		h.Picos += min(secretLeft[d], guessLeft[d])
	}
	h.Bagels = h.Fermis == 0 && h.Picos == 0
	h.Solved = h.Fermis == len(secret)
	return h, nil
}
