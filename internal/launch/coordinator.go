// Package launch turns a waiting room into a running game: it snapshots the
// roster, persists the start, and only then tells every subscriber.
package launch

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/picofermibagel/internal/game"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoPlayers is returned when a launch finds nobody seated.
var ErrNoPlayers = errors.New("no players waiting")

// errNotDue aborts a watcher launch whose lobby no longer needs one.
var errNotDue = errors.New("lobby no longer due")

// Publisher receives the start event after the start is persisted.
type Publisher interface {
	PublishGameStart(ctx context.Context, ev models.GameStartEvent) error
}

// History records launches for later analysis. Best-effort.
type History interface {
	RecordLaunch(ctx context.Context, rec models.LaunchRecord) error
}

// Options tunes a Coordinator.
type Options struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	NewGameID   func() string
	NewSeed     func() (int64, error)
}

// Coordinator launches games on top of the lobby state machine.
type Coordinator struct {
	lobbies *lobby.Service
	pub     Publisher
	history History
	logger  logrus.FieldLogger

	maxAttempts int
	backoff     func(attempt int) time.Duration
	newGameID   func() string
	newSeed     func() (int64, error)
}

// NewCoordinator builds a Coordinator. pub and history may be nil.
func NewCoordinator(lobbies *lobby.Service, pub Publisher, history History, logger logrus.FieldLogger, opts Options) *Coordinator {
	c := &Coordinator{
		lobbies:     lobbies,
		pub:         pub,
		history:     history,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		newGameID:   opts.NewGameID,
		newSeed:     opts.NewSeed,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = lobby.DefaultMaxAttempts
	}
	if c.backoff == nil {
		c.backoff = func(attempt int) time.Duration { return time.Duration(attempt) * 10 * time.Millisecond }
	}
	if c.newGameID == nil {
		c.newGameID = uuid.NewString
	}
	if c.newSeed == nil {
		c.newSeed = RandomSeed
	}
	return c
}

// RandomSeed draws a non-negative seed from crypto/rand.
func RandomSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random seed: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1), nil
}

// StartParams describes an externally requested start. Zero fields are
// filled in: a fresh game id and seed, the room's default settings, and the
// currently seated players as the roster. A non-nil empty Players launches
// with nobody, which still resets the waiting room.
type StartParams struct {
	GameID     string
	RoomClass  string
	Players    []models.Player
	// Overrides are applied on top of the room's default settings.
	Overrides  map[string]interface{}
	RandomSeed *int64
}

// Launch starts a game with the players currently seated in roomClass.
// overrides nil means the room's defaults.
func (c *Coordinator) Launch(ctx context.Context, roomClass string, overrides map[string]interface{}) (models.GameStartEvent, error) {
	return c.Start(ctx, StartParams{RoomClass: roomClass, Overrides: overrides})
}

// LaunchDue launches roomClass only if its countdown is still expired when
// the roster is read. Returns ok=false when another node got there first.
func (c *Coordinator) LaunchDue(ctx context.Context, roomClass string) (models.GameStartEvent, bool, error) {
	ev, err := c.start(ctx, StartParams{RoomClass: roomClass}, true)
	if errors.Is(err, errNotDue) {
		return models.GameStartEvent{}, false, nil
	}
	if err != nil {
		return models.GameStartEvent{}, false, err
	}
	return ev, true, nil
}

// Start persists the start of a game and then broadcasts it.
func (c *Coordinator) Start(ctx context.Context, p StartParams) (models.GameStartEvent, error) {
	return c.start(ctx, p, false)
}

func (c *Coordinator) start(ctx context.Context, p StartParams, onlyIfDue bool) (models.GameStartEvent, error) {
	if err := models.Require("roomClass", p.RoomClass); err != nil {
		return models.GameStartEvent{}, err
	}
	settings, err := game.ParseSettings(p.Overrides, models.DefaultSettings(p.RoomClass))
	if err != nil {
		return models.GameStartEvent{}, err
	}

	gameID := p.GameID
	if gameID == "" {
		gameID = c.newGameID()
	}
	var seed int64
	if p.RandomSeed != nil {
		seed = *p.RandomSeed
	} else {
		s, err := c.newSeed()
		if err != nil {
			return models.GameStartEvent{}, err
		}
		seed = s
	}

	log := c.logger.WithFields(logrus.Fields{"room_class": p.RoomClass, "game_id": gameID})

	for attempt := 1; ; attempt++ {
		snapshot, err := c.lobbies.Record(ctx, p.RoomClass)
		if err != nil {
			return models.GameStartEvent{}, err
		}
		if snapshot.GameActive && snapshot.ActiveGameID != nil && *snapshot.ActiveGameID == gameID {
			log.Debug("game already started, nothing to do")
			return eventFrom(snapshot, gameID, p.Players), nil
		}
		if onlyIfDue && (snapshot.GameActive || len(snapshot.SeatedPlayers) < 2 || !snapshot.CountdownExpired(c.lobbies.Now())) {
			return models.GameStartEvent{}, errNotDue
		}

		roster := p.Players
		var expected int64
		if roster == nil {
			// The roster is what was read, so the write must land on that version.
			roster = snapshot.SeatedPlayers
			expected = snapshot.Version
			if len(roster) == 0 {
				return models.GameStartEvent{}, ErrNoPlayers
			}
		}

		rec, err := c.lobbies.StartGame(ctx, lobby.StartGameParams{
			GameID:          gameID,
			RoomClass:       p.RoomClass,
			Players:         roster,
			Settings:        settings,
			RandomSeed:      seed,
			ExpectedVersion: expected,
		})
		if err == nil {
			ev := eventFrom(rec, gameID, roster)
			c.announce(ctx, log, ev)
			return ev, nil
		}
		if !errors.Is(err, models.ErrConflict) || attempt >= c.maxAttempts {
			return models.GameStartEvent{}, err
		}

		log.WithField("attempt", attempt).Debug("roster changed during launch, retrying")
		select {
		case <-ctx.Done():
			return models.GameStartEvent{}, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
}

func eventFrom(rec *models.LobbyRecord, gameID string, roster []models.Player) models.GameStartEvent {
	ev := models.GameStartEvent{
		GameID:    gameID,
		RoomClass: rec.RoomClass,
		Players:   append([]models.Player{}, roster...),
	}
	if rec.GameSettings != nil {
		ev.GameSettings = *rec.GameSettings
	}
	if rec.RandomSeed != nil {
		ev.RandomSeed = *rec.RandomSeed
	}
	if rec.GameStartTime != nil {
		ev.StartedAt = *rec.GameStartTime
	}
	return ev
}

func (c *Coordinator) announce(ctx context.Context, log logrus.FieldLogger, ev models.GameStartEvent) {
	log.WithField("players", len(ev.Players)).Info("game launched")
	if c.pub != nil {
		if err := c.pub.PublishGameStart(ctx, ev); err != nil {
			log.WithError(err).Warn("failed to publish game start")
		}
	}
	if c.history != nil {
		rec := models.LaunchRecord{
			GameID:       ev.GameID,
			RoomClass:    ev.RoomClass,
			Players:      ev.Players,
			GameSettings: ev.GameSettings,
			RandomSeed:   ev.RandomSeed,
			StartedAt:    ev.StartedAt.UnixMilli(),
		}
		if err := c.history.RecordLaunch(ctx, rec); err != nil {
			log.WithError(err).Warn("failed to record launch history")
		}
	}
}
