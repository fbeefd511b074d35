// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCountdownSeconds is how long a waiting room counts down once two players are seated.
	DefaultCountdownSeconds = 30

	// DefaultMaxAttempts bounds how many times a write is retried after losing a race.
	DefaultMaxAttempts = 5
)

// Publisher receives a full-state snapshot after every committed lobby write.
// Delivery is best-effort; a failed publish never fails the write.
type Publisher interface {
	PublishLobby(ctx context.Context, summary models.LobbySummary) error
}

// Options tunes a Service. Zero values fall back to the defaults above.
type Options struct {
	CountdownSeconds int
	MaxAttempts      int
	Now              func() time.Time
	Backoff          func(attempt int) time.Duration
}

// Service is the lobby state machine. It keeps no state of its own: every
// operation is a version-checked read-modify-write against the Store, so any
// number of replicas may serve the same room class.
type Service struct {
	store  Store
	pub    Publisher
	logger logrus.FieldLogger

	countdownSeconds int
	maxAttempts      int
	now              func() time.Time
	backoff          func(attempt int) time.Duration
}

// NewService builds a Service over store. pub may be nil.
func NewService(store Store, pub Publisher, logger logrus.FieldLogger, opts Options) *Service {
	s := &Service{
		store:            store,
		pub:              pub,
		logger:           logger,
		countdownSeconds: opts.CountdownSeconds,
		maxAttempts:      opts.MaxAttempts,
		now:              opts.Now,
		backoff:          opts.Backoff,
	}
	if s.countdownSeconds <= 0 {
		s.countdownSeconds = DefaultCountdownSeconds
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.backoff == nil {
		s.backoff = jitteredBackoff
	}
	return s
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Player  models.Player
	Summary models.LobbySummary
}

// StartGameParams describes the transition of a waiting room into an active game.
type StartGameParams struct {
	GameID     string
	RoomClass  string
	Players    []models.Player
	Settings   models.GameSettings
	RandomSeed int64

	// ExpectedVersion, when non-zero, makes the start fail with models.ErrConflict
	// unless the stored record is still at that version.
	ExpectedVersion int64
}

// DueKind says what the watcher should do with a lobby.
type DueKind int

const (
	DueLaunch DueKind = iota // countdown elapsed, launch the seated players
	DueFinish                // active game outlived the timeout, return to empty
)

// DueLobby is a room class that needs server-side action.
type DueLobby struct {
	RoomClass string
	Kind      DueKind
	GameID    string
	Version   int64
}

// Join seats clientID in roomClass, creating the lobby if needed. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, roomClass, clientID, username string) (JoinResult, error) {
	if err := models.Require("roomClass", roomClass, "clientId", clientID, "username", username); err != nil {
		return JoinResult{}, err
	}

	var seat models.Player
	rec, changed, err := s.update(ctx, roomClass, 0, func(l *models.LobbyRecord, now time.Time) (bool, error) {
		if p, ok := l.SeatOf(clientID); ok {
			seat = p
			return false, nil
		}
		idx := l.LowestFreeSeat()
		if idx < 0 {
			return false, &models.LobbyFullError{RoomClass: roomClass, PlayersWaiting: len(l.SeatedPlayers)}
		}
		seat = models.Player{
			Username:  username,
			ClientID:  clientID,
			SeatIndex: idx,
			JoinedAt:  now,
		}
		l.SeatedPlayers = append(l.SeatedPlayers, seat)
		if len(l.SeatedPlayers) >= 2 && !l.CountdownRunning() && !l.GameActive {
			s.startCountdown(l, now)
		}
		return true, nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	log := s.logger.WithFields(logrus.Fields{"room_class": roomClass, "client_id": clientID})
	if changed {
		log.WithField("seat", seat.SeatIndex).Info("player joined lobby")
		s.publish(ctx, rec)
	} else {
		log.Debug("player already seated, join ignored")
	}
	return JoinResult{Player: seat, Summary: rec.Summary(s.now())}, nil
}

// Leave unseats clientID. Leaving an absent lobby or a lobby you are not in succeeds.
func (s *Service) Leave(ctx context.Context, roomClass, clientID string) (models.LobbySummary, error) {
	if err := models.Require("roomClass", roomClass, "clientId", clientID); err != nil {
		return models.LobbySummary{}, err
	}

	rec, changed, err := s.update(ctx, roomClass, 0, func(l *models.LobbyRecord, _ time.Time) (bool, error) {
		idx := -1
		for i, p := range l.SeatedPlayers {
			if p.ClientID == clientID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, nil
		}
		l.SeatedPlayers = append(l.SeatedPlayers[:idx], l.SeatedPlayers[idx+1:]...)
		if len(l.SeatedPlayers) < 2 {
			l.Countdown = nil
			l.CountdownStartedAt = nil
		}
		return true, nil
	})
	if err != nil {
		return models.LobbySummary{}, err
	}
	if changed {
		s.logger.WithFields(logrus.Fields{"room_class": roomClass, "client_id": clientID}).Info("player left lobby")
		s.publish(ctx, rec)
	}
	return rec.Summary(s.now()), nil
}

// Status is a read-only projection of the lobby. An absent lobby reads as empty.
func (s *Service) Status(ctx context.Context, roomClass string) (models.LobbySummary, error) {
	rec, err := s.Record(ctx, roomClass)
	if err != nil {
		return models.LobbySummary{}, err
	}
	return rec.Summary(s.now()), nil
}

// Record returns the committed record, or a fresh empty one if none exists.
func (s *Service) Record(ctx context.Context, roomClass string) (*models.LobbyRecord, error) {
	if err := models.Require("roomClass", roomClass); err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, roomClass)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewLobbyRecord(roomClass), nil
	}
	if err != nil {
		return nil, models.StorageError("load lobby "+roomClass, err)
	}
	return rec, nil
}

// StartGame hard-resets the waiting room into an active game. The seating list
// is emptied in the same write so the next wave can queue immediately.
// Repeating a start for the game that is already active is a no-op.
func (s *Service) StartGame(ctx context.Context, p StartGameParams) (*models.LobbyRecord, error) {
	if err := models.Require("gameId", p.GameID, "roomClass", p.RoomClass); err != nil {
		return nil, err
	}

	rec, changed, err := s.update(ctx, p.RoomClass, p.ExpectedVersion, func(l *models.LobbyRecord, now time.Time) (bool, error) {
		if l.GameActive && l.ActiveGameID != nil && *l.ActiveGameID == p.GameID {
			return false, nil
		}
		gameID := p.GameID
		settings := p.Settings
		seed := p.RandomSeed
		started := now

		l.SeatedPlayers = []models.Player{}
		l.ActiveGameID = &gameID
		l.Countdown = nil
		l.CountdownStartedAt = nil
		l.GameActive = true
		l.GameSettings = &settings
		l.RandomSeed = &seed
		l.GameStartTime = &started
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.WithFields(logrus.Fields{
			"room_class": p.RoomClass,
			"game_id":    p.GameID,
			"players":    len(p.Players),
		}).Info("game started, waiting room reset")
		s.publish(ctx, rec)
	}
	return rec, nil
}

// FinishGame returns an active lobby to the waiting state. An empty gameID
// finishes whatever game is active. Players who queued behind the game get
// their countdown as soon as the game is cleared.
func (s *Service) FinishGame(ctx context.Context, roomClass, gameID string) (models.LobbySummary, error) {
	if err := models.Require("roomClass", roomClass); err != nil {
		return models.LobbySummary{}, err
	}

	rec, changed, err := s.update(ctx, roomClass, 0, func(l *models.LobbyRecord, now time.Time) (bool, error) {
		if !l.GameActive {
			return false, nil
		}
		if gameID != "" && (l.ActiveGameID == nil || *l.ActiveGameID != gameID) {
			return false, nil
		}
		l.GameActive = false
		l.ActiveGameID = nil
		if len(l.SeatedPlayers) >= 2 && !l.CountdownRunning() {
			s.startCountdown(l, now)
		}
		return true, nil
	})
	if err != nil {
		return models.LobbySummary{}, err
	}
	if changed {
		s.logger.WithFields(logrus.Fields{"room_class": roomClass, "game_id": gameID}).Info("game finished")
		s.publish(ctx, rec)
	}
	return rec.Summary(s.now()), nil
}

// Due lists lobbies whose countdown has run out, and active games older than activeTimeout
// (a non-positive activeTimeout disables the latter).
func (s *Service) Due(ctx context.Context, activeTimeout time.Duration) ([]DueLobby, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, models.StorageError("list lobbies", err)
	}
	now := s.now()
	var due []DueLobby
	for _, l := range recs {
		switch {
		case !l.GameActive && len(l.SeatedPlayers) >= 2 && l.CountdownExpired(now):
			due = append(due, DueLobby{RoomClass: l.RoomClass, Kind: DueLaunch, Version: l.Version})
		case l.GameActive && activeTimeout > 0 && l.GameStartTime != nil && now.Sub(*l.GameStartTime) >= activeTimeout:
			var gameID string
			if l.ActiveGameID != nil {
				gameID = *l.ActiveGameID
			}
			due = append(due, DueLobby{RoomClass: l.RoomClass, Kind: DueFinish, GameID: gameID, Version: l.Version})
		}
	}
	return due, nil
}

func (s *Service) startCountdown(l *models.LobbyRecord, now time.Time) {
	secs := s.countdownSeconds
	started := now
	l.Countdown = &secs
	l.CountdownStartedAt = &started
}

// update runs mutate against a fresh copy of the record and commits it with a
// compare-and-swap, re-reading and retrying when another writer got there first.
// mutate returning false skips the write. A non-zero expectedVersion disables
// retries: the caller's snapshot is either still current or the call conflicts.
func (s *Service) update(ctx context.Context, roomClass string, expectedVersion int64, mutate func(*models.LobbyRecord, time.Time) (bool, error)) (*models.LobbyRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.store.Get(ctx, roomClass)
		switch {
		case errors.Is(err, models.ErrNotFound):
			current = models.NewLobbyRecord(roomClass)
		case err != nil:
			return nil, false, models.StorageError("load lobby "+roomClass, err)
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			return nil, false, fmt.Errorf("lobby %s moved from version %d to %d: %w", roomClass, expectedVersion, current.Version, models.ErrConflict)
		}

		now := s.now()
		next := current.Clone()
		changed, err := mutate(next, now)
		if err != nil || !changed {
			return current, false, err
		}
		next.LastUpdated = now

		err = s.store.CompareAndSwap(ctx, next, current.Version)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, false, models.StorageError("save lobby "+roomClass, err)
		}
		if expectedVersion != 0 || attempt >= s.maxAttempts {
			return nil, false, fmt.Errorf("lobby %s: %w after %d attempts", roomClass, models.ErrConflict, attempt)
		}

		s.logger.WithFields(logrus.Fields{"room_class": roomClass, "attempt": attempt}).Debug("lobby write conflict, retrying")
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(s.backoff(attempt)):
		}
	}
}

func (s *Service) publish(ctx context.Context, rec *models.LobbyRecord) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishLobby(ctx, rec.Summary(s.now())); err != nil {
		s.logger.WithError(err).WithField("room_class", rec.RoomClass).Warn("failed to publish lobby update")
	}
}

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 5 * time.Millisecond
	return base + time.Duration(rand.Int64N(int64(5*time.Millisecond)))
}
