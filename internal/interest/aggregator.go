// Package interest derives per-room-class interest counts from live presence.
package interest

import (
	"context"
	"sort"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/jason-s-yu/picofermibagel/internal/presence"
	"github.com/sirupsen/logrus"
)

// Publisher receives the full set of counts after each recompute.
type Publisher interface {
	PublishInterest(ctx context.Context, counts []models.InterestRecord) error
}

// Aggregator owns InterestRecords. Counts are never incremented or
// decremented; they are always recomputed from a presence sweep.
type Aggregator struct {
	tracker *presence.Tracker
	store   Store
	pub     Publisher
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewAggregator builds an Aggregator. pub may be nil; now nil means time.Now.
func NewAggregator(tracker *presence.Tracker, store Store, pub Publisher, logger logrus.FieldLogger, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		tracker: tracker,
		store:   store,
		pub:     pub,
		logger:  logger,
		now:     now,
	}
}

// RecomputeResult reports what a recompute saw and wrote.
type RecomputeResult struct {
	Sweep  presence.SweepResult
	Counts map[string]int
}

// Counts returns a fresh read of every stored InterestRecord, sorted by room class.
func (a *Aggregator) Counts(ctx context.Context) ([]models.InterestRecord, error) {
	recs, err := a.store.List(ctx)
	if err != nil {
		return nil, models.StorageError("list interest", err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].RoomClass < recs[j].RoomClass })
	return recs, nil
}

// Recompute sweeps stale presence and rewrites the count of every room class
// seen in the sweep. Room classes with a stored record but nobody left are
// written as zero. Room classes whose sweep failed keep their previous count.
func (a *Aggregator) Recompute(ctx context.Context) (RecomputeResult, error) {
	sweep, err := a.tracker.SweepStale(ctx)
	if err != nil {
		return RecomputeResult{}, err
	}
	counts := sweep.Counts()

	existing, err := a.store.List(ctx)
	if err != nil {
		return RecomputeResult{}, models.StorageError("list interest", err)
	}
	for _, r := range existing {
		if _, ok := counts[r.RoomClass]; !ok {
			counts[r.RoomClass] = 0
		}
	}
	for roomClass := range sweep.Failed {
		delete(counts, roomClass)
	}

	now := a.now()
	recs := make([]models.InterestRecord, 0, len(counts))
	for roomClass, n := range counts {
		recs = append(recs, models.InterestRecord{RoomClass: roomClass, InterestCount: n, LastUpdated: now})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].RoomClass < recs[j].RoomClass })

	if len(recs) > 0 {
		if err := a.store.Put(ctx, recs...); err != nil {
			return RecomputeResult{}, models.StorageError("save interest", err)
		}
	}
	a.publish(ctx)
	return RecomputeResult{Sweep: sweep, Counts: counts}, nil
}

// OnInterest records a heartbeat for clientID and returns roomClass's recomputed count.
func (a *Aggregator) OnInterest(ctx context.Context, roomClass, clientID, username string) (int, error) {
	if err := a.tracker.Heartbeat(ctx, clientID, roomClass, username); err != nil {
		return 0, err
	}
	res, err := a.Recompute(ctx)
	if err != nil {
		return 0, err
	}
	return res.Counts[roomClass], nil
}

// OnWithdraw removes clientID's presence and returns roomClass's recomputed count.
func (a *Aggregator) OnWithdraw(ctx context.Context, roomClass, clientID string) (int, error) {
	if err := models.Require("roomClass", roomClass, "clientId", clientID); err != nil {
		return 0, err
	}
	if err := a.tracker.Remove(ctx, clientID); err != nil {
		return 0, err
	}
	res, err := a.Recompute(ctx)
	if err != nil {
		return 0, err
	}
	return res.Counts[roomClass], nil
}

func (a *Aggregator) publish(ctx context.Context) {
	if a.pub == nil {
		return
	}
	counts, err := a.Counts(ctx)
	if err == nil {
		err = a.pub.PublishInterest(ctx, counts)
	}
	if err != nil {
		a.logger.WithError(err).Warn("failed to publish interest update")
	}
}
