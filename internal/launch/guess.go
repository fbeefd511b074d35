package launch

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/game"
	"github.com/jason-s-yu/picofermibagel/internal/models"
)

var (
	// ErrNoActiveGame is returned when a guess names a game the room is not playing.
	ErrNoActiveGame = errors.New("no active game")
	// ErrTimeUp is returned when a guess arrives after the round's time limit.
	ErrTimeUp = errors.New("time limit reached")
)

// CheckGuess scores guess against the secret of the game running in
// roomClass. The secret is rederived from the stored seed and settings, so any
// node can answer.
func (c *Coordinator) CheckGuess(ctx context.Context, roomClass, gameID, guess string) (game.Hint, error) {
	if err := models.Require("roomClass", roomClass, "gameId", gameID, "guess", guess); err != nil {
		return game.Hint{}, err
	}
	rec, err := c.lobbies.Record(ctx, roomClass)
	if err != nil {
		return game.Hint{}, err
	}
	if !rec.GameActive || rec.ActiveGameID == nil || *rec.ActiveGameID != gameID ||
		rec.RandomSeed == nil || rec.GameSettings == nil {
		return game.Hint{}, ErrNoActiveGame
	}

	settings := *rec.GameSettings
	if settings.TimeLimitSec > 0 && rec.GameStartTime != nil {
		limit := time.Duration(settings.TimeLimitSec) * time.Second
		if c.lobbies.Now().Sub(*rec.GameStartTime) > limit {
			return game.Hint{}, ErrTimeUp
		}
	}

	secret, err := game.SecretFromSeed(*rec.RandomSeed, settings)
	if err != nil {
		return game.Hint{}, err
	}
	return game.Score(guess, secret)
}
