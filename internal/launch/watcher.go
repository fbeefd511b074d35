package launch

import (
	"context"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/interest"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval      = time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultActiveGameTimeout = 15 * time.Minute
)

// WatcherOptions tunes a Watcher. A negative ActiveGameTimeout disables
// finishing of long-running games.
type WatcherOptions struct {
	PollInterval      time.Duration
	SweepInterval     time.Duration
	ActiveGameTimeout time.Duration
}

// Watcher fires expired countdowns and recomputes interest on a schedule, so
// nothing depends on a client noticing that a countdown reached zero.
type Watcher struct {
	lobbies     *lobby.Service
	coordinator *Coordinator
	interest    *interest.Aggregator
	logger      logrus.FieldLogger

	poll          time.Duration
	sweep         time.Duration
	activeTimeout time.Duration
}

// NewWatcher builds a Watcher. agg may be nil to skip interest sweeps.
func NewWatcher(lobbies *lobby.Service, coordinator *Coordinator, agg *interest.Aggregator, logger logrus.FieldLogger, opts WatcherOptions) *Watcher {
	w := &Watcher{
		lobbies:       lobbies,
		coordinator:   coordinator,
		interest:      agg,
		logger:        logger,
		poll:          opts.PollInterval,
		sweep:         opts.SweepInterval,
		activeTimeout: opts.ActiveGameTimeout,
	}
	if w.poll <= 0 {
		w.poll = DefaultPollInterval
	}
	if w.sweep <= 0 {
		w.sweep = DefaultSweepInterval
	}
	if w.activeTimeout == 0 {
		w.activeTimeout = DefaultActiveGameTimeout
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	pollTicker := time.NewTicker(w.poll)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(w.sweep)
	defer sweepTicker.Stop()

	w.logger.WithFields(logrus.Fields{"poll": w.poll, "sweep": w.sweep}).Info("lobby watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("lobby watcher stopped")
			return
		case <-pollTicker.C:
			w.Tick(ctx)
		case <-sweepTicker.C:
			w.Sweep(ctx)
		}
	}
}

// Tick launches every lobby whose countdown has expired and finishes games
// that outlived the active timeout. Returns how many lobbies it acted on.
func (w *Watcher) Tick(ctx context.Context) int {
	due, err := w.lobbies.Due(ctx, w.activeTimeout)
	if err != nil {
		w.logger.WithError(err).Warn("failed to list due lobbies")
		return 0
	}

	acted := 0
	for _, d := range due {
		log := w.logger.WithField("room_class", d.RoomClass)
		switch d.Kind {
		case lobby.DueLaunch:
			_, ok, err := w.coordinator.LaunchDue(ctx, d.RoomClass)
			if err != nil {
				log.WithError(err).Warn("countdown launch failed, will retry")
				continue
			}
			if ok {
				acted++
			}
		case lobby.DueFinish:
			if _, err := w.lobbies.FinishGame(ctx, d.RoomClass, d.GameID); err != nil {
				log.WithError(err).Warn("failed to finish timed out game")
				continue
			}
			log.WithField("game_id", d.GameID).Info("finished game after active timeout")
			acted++
		}
	}
	return acted
}

// Sweep recomputes interest from presence.
func (w *Watcher) Sweep(ctx context.Context) {
	if w.interest == nil {
		return
	}
	res, err := w.interest.Recompute(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("interest sweep failed")
		return
	}
	w.logger.WithFields(logrus.Fields{
		"active":  len(res.Sweep.Active),
		"removed": len(res.Sweep.Removed),
	}).Debug("interest sweep complete")
}
