// Package presence records per-client heartbeats and decides who still counts as present.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/sirupsen/logrus"
)

// Tracker owns PresenceRecords.
type Tracker struct {
	store          Store
	logger         logrus.FieldLogger
	now            func() time.Time
	staleThreshold time.Duration
	ttl            time.Duration
}

// Options tunes a Tracker. Zero values use models.StaleThreshold and models.PresenceTTL.
type Options struct {
	StaleThreshold time.Duration
	TTL            time.Duration
	Now            func() time.Time
}

func NewTracker(store Store, logger logrus.FieldLogger, opts Options) *Tracker {
	t := &Tracker{
		store:          store,
		logger:         logger,
		now:            opts.Now,
		staleThreshold: opts.StaleThreshold,
		ttl:            opts.TTL,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.staleThreshold <= 0 {
		t.staleThreshold = models.StaleThreshold
	}
	if t.ttl <= 0 {
		t.ttl = models.PresenceTTL
	}
	return t
}

// SweepResult is the outcome of one staleness sweep.
type SweepResult struct {
	// Active lists every surviving (roomClass, clientId) pair, ordered by room class then client.
	Active []models.ActiveClient
	// Removed lists the clients whose records were deleted.
	Removed []string
	// Failed holds room classes whose stale records could not be deleted this cycle.
	Failed map[string]error
}

// Counts groups the active clients by room class.
func (r SweepResult) Counts() map[string]int {
	counts := make(map[string]int)
	for _, a := range r.Active {
		counts[a.RoomClass]++
	}
	return counts
}

// ActiveClientIDs returns the active client ids in sweep order.
func (r SweepResult) ActiveClientIDs() []string {
	ids := make([]string, 0, len(r.Active))
	for _, a := range r.Active {
		ids = append(ids, a.ClientID)
	}
	return ids
}

// Heartbeat upserts the client's presence. Storage failures are logged and
// swallowed: the next heartbeat repairs a missed one.
func (t *Tracker) Heartbeat(ctx context.Context, clientID, roomClass, username string) error {
	if err := models.Require("clientId", clientID, "roomClass", roomClass, "username", username); err != nil {
		return err
	}
	now := t.now()
	rec := models.PresenceRecord{
		ClientID:        clientID,
		RoomClass:       roomClass,
		Username:        username,
		LastHeartbeatAt: now,
		ExpiresAt:       now.Add(t.ttl),
	}
	if err := t.store.Put(ctx, rec, t.ttl); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"client_id":  clientID,
			"room_class": roomClass,
		}).Warn("heartbeat not recorded")
	}
	return nil
}

// Remove deletes the client's presence. Removing an absent client succeeds.
func (t *Tracker) Remove(ctx context.Context, clientID string) error {
	if err := models.Require("clientId", clientID); err != nil {
		return err
	}
	if err := t.store.Delete(ctx, clientID); err != nil {
		return models.StorageError("remove presence "+clientID, err)
	}
	return nil
}

// SweepStale keeps records heard from within the stale threshold and deletes
// the rest. A record refreshed between the listing and the delete survives and
// counts as active. A failed listing fails the sweep; a failed delete only
// marks that record's room class as failed for this cycle.
func (t *Tracker) SweepStale(ctx context.Context) (SweepResult, error) {
	records, err := t.store.List(ctx)
	if err != nil {
		return SweepResult{}, models.StorageError("list presence", err)
	}

	now := t.now()
	res := SweepResult{Failed: map[string]error{}}
	stale := map[string][]models.PresenceRecord{}
	for _, rec := range records {
		if rec.Stale(now, t.staleThreshold) {
			stale[rec.RoomClass] = append(stale[rec.RoomClass], rec)
			continue
		}
		res.Active = append(res.Active, models.ActiveClient{RoomClass: rec.RoomClass, ClientID: rec.ClientID})
	}

	for roomClass, recs := range stale {
		removed, err := t.store.DeleteStale(ctx, recs...)
		if err != nil {
			t.logger.WithError(err).WithField("room_class", roomClass).Warn("failed to delete stale presence")
			res.Failed[roomClass] = err
			continue
		}
		gone := make(map[string]bool, len(removed))
		for _, id := range removed {
			gone[id] = true
		}
		for _, rec := range recs {
			if !gone[rec.ClientID] {
				res.Active = append(res.Active, models.ActiveClient{RoomClass: rec.RoomClass, ClientID: rec.ClientID})
			}
		}
		res.Removed = append(res.Removed, removed...)
	}
	sort.Slice(res.Active, func(i, j int) bool {
		if res.Active[i].RoomClass != res.Active[j].RoomClass {
			return res.Active[i].RoomClass < res.Active[j].RoomClass
		}
		return res.Active[i].ClientID < res.Active[j].ClientID
	})
	sort.Strings(res.Removed)

	if len(res.Removed) > 0 {
		t.logger.WithFields(logrus.Fields{
			"removed": len(res.Removed),
			"active":  len(res.Active),
		}).Info("swept stale presence")
	}
	return res, nil
}
