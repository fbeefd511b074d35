package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/picofermibagel/internal/interest"
	"github.com/jason-s-yu/picofermibagel/internal/launch"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/jason-s-yu/picofermibagel/internal/presence"
	"github.com/sirupsen/logrus"
)

// Dispatcher executes commands against the lobby components.
type Dispatcher struct {
	lobbies  *lobby.Service
	tracker  *presence.Tracker
	interest *interest.Aggregator
	launcher *launch.Coordinator
	logger   logrus.FieldLogger
}

func NewDispatcher(lobbies *lobby.Service, tracker *presence.Tracker, agg *interest.Aggregator, launcher *launch.Coordinator, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		lobbies:  lobbies,
		tracker:  tracker,
		interest: agg,
		launcher: launcher,
		logger:   logger,
	}
}

// Dispatch runs cmd and never returns an error: failures come back as a
// result with success=false and a caller-facing message.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	switch c := cmd.(type) {
	case *JoinLobby:
		res, err := d.lobbies.Join(ctx, c.RoomClass, c.ClientID, c.Username)
		if err != nil {
			out := JoinLobbyResult{Status: d.fail(c, err)}
			var full *models.LobbyFullError
			if errors.As(err, &full) {
				out.PlayersWaiting = full.PlayersWaiting
			}
			return out
		}
		seat := res.Player.SeatIndex
		return JoinLobbyResult{
			Status:         ok("Joined lobby"),
			GameID:         res.Summary.GameID,
			PlayersWaiting: res.Summary.PlayersWaiting,
			Countdown:      res.Summary.Countdown,
			SeatIndex:      &seat,
		}

	case *LeaveLobby:
		if _, err := d.lobbies.Leave(ctx, c.RoomClass, c.ClientID); err != nil {
			return d.fail(c, err)
		}
		return ok("Left lobby")

	case *GetLobbyStatus:
		summary, err := d.lobbies.Status(ctx, c.RoomClass)
		if err != nil {
			return LobbyStatusResult{Status: d.fail(c, err)}
		}
		return LobbyStatusResult{Status: ok(""), LobbySummary: summary}

	case *StartGame:
		ev, err := d.launcher.Start(ctx, launch.StartParams{
			GameID:     c.GameID,
			RoomClass:  c.RoomClass,
			Players:    c.Players,
			Overrides:  c.GameSettings,
			RandomSeed: c.RandomSeed,
		})
		if err != nil {
			return StartGameResult{Status: d.fail(c, err)}
		}
		seed := ev.RandomSeed
		return StartGameResult{Status: ok("Game started"), GameID: ev.GameID, RandomSeed: &seed}

	case *FinishGame:
		if _, err := d.lobbies.FinishGame(ctx, c.RoomClass, c.GameID); err != nil {
			return d.fail(c, err)
		}
		return ok("Game finished")

	case *SendHeartbeat:
		if err := d.tracker.Heartbeat(ctx, c.ClientID, c.RoomClass, c.Username); err != nil {
			return d.fail(c, err)
		}
		return ok("Heartbeat recorded")

	case *UpdateInterest:
		n, err := d.interest.OnInterest(ctx, c.RoomClass, c.ClientID, c.Username)
		if err != nil {
			return UpdateInterestResult{Status: d.fail(c, err)}
		}
		return UpdateInterestResult{Status: ok("Interest updated"), RoomClass: c.RoomClass, NewInterestCount: n}

	case *RemoveInterest:
		n, err := d.interest.OnWithdraw(ctx, c.RoomClass, c.ClientID)
		if err != nil {
			return RemoveInterestResult{Status: d.fail(c, err)}
		}
		return RemoveInterestResult{Status: ok("Interest removed"), NewInterestCount: n}

	case *GetInterestCounts:
		counts, err := d.interest.Counts(ctx)
		if err != nil {
			return InterestCountsResult{Status: d.fail(c, err)}
		}
		return InterestCountsResult{Status: ok(""), Counts: counts}

	case *CleanupStaleInterests:
		res, err := d.interest.Recompute(ctx)
		if err != nil {
			return CleanupResult{Status: d.fail(c, err)}
		}
		if len(res.Sweep.Failed) > 0 {
			d.logger.WithField("failed_rooms", len(res.Sweep.Failed)).Warn("stale interest cleanup partially failed")
		}
		return CleanupResult{
			Status:          ok(fmt.Sprintf("Cleaned up %d stale clients", len(res.Sweep.Removed))),
			ActiveClientIDs: res.Sweep.ActiveClientIDs(),
		}

	case *CheckGuess:
		hint, err := d.launcher.CheckGuess(ctx, c.RoomClass, c.GameID, c.Guess)
		if err != nil {
			return CheckGuessResult{Status: d.fail(c, err)}
		}
		msg := "Guess scored"
		if hint.Solved {
			msg = "Solved"
		}
		return CheckGuessResult{Status: ok(msg), Hint: &hint, Feedback: hint.String()}
	}
	return Status{Message: "Unsupported operation"}
}

// fail logs err and converts it to a caller-facing status.
func (d *Dispatcher) fail(cmd Command, err error) Status {
	log := d.logger.WithError(err).WithField("operation", cmd.Operation())
	msg := Message(err)
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrLobbyFull), errors.Is(err, launch.ErrNoPlayers),
		errors.Is(err, launch.ErrNoActiveGame), errors.Is(err, launch.ErrTimeUp):
		log.Debug("operation rejected")
	default:
		log.Warn("operation failed")
	}
	return Status{Message: msg}
}

// Message translates an error into the text callers see.
func Message(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, models.ErrLobbyFull):
		return "Lobby is full"
	case errors.Is(err, launch.ErrNoPlayers):
		return "No players waiting"
	case errors.Is(err, launch.ErrNoActiveGame):
		return "No active game"
	case errors.Is(err, launch.ErrTimeUp):
		return "Time is up"
	case errors.Is(err, models.ErrConflict):
		return "Lobby is busy, please retry"
	case errors.Is(err, models.ErrStorage):
		return "Storage unavailable, please retry"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	case errors.Is(err, ErrUnknownOperation):
		return "Unknown operation"
	case errors.Is(err, ErrMalformed):
		return "Malformed request"
	}
	return "Internal error"
}
