package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "pfb:presence:"
	presenceIndexKey  = "pfb:presence:index"
)

// PresenceStore keeps each client's presence under its own key with a TTL, plus
// an index set of client ids so a sweep can enumerate them without SCAN.
type PresenceStore struct {
	rdb *redis.Client
}

func NewPresenceStore(rdb *redis.Client) *PresenceStore {
	return &PresenceStore{rdb: rdb}
}

func (s *PresenceStore) Put(ctx context.Context, rec models.PresenceRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal presence data: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, presenceKeyPrefix+rec.ClientID, data, ttl)
	pipe.SAdd(ctx, presenceIndexKey, rec.ClientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

func (s *PresenceStore) Delete(ctx context.Context, clientIDs ...string) error {
	if len(clientIDs) == 0 {
		return nil
	}
	keys := make([]string, len(clientIDs))
	members := make([]interface{}, len(clientIDs))
	for i, id := range clientIDs {
		keys[i] = presenceKeyPrefix + id
		members[i] = id
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, presenceIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// DeleteStale removes each seen client whose stored heartbeat has not moved
// since it was listed. The check and delete run under WATCH, so a heartbeat
// landing in between aborts that client's delete instead of losing the record.
func (s *PresenceStore) DeleteStale(ctx context.Context, seen ...models.PresenceRecord) ([]string, error) {
	removed := make([]string, 0, len(seen))
	for _, rec := range seen {
		key := presenceKeyPrefix + rec.ClientID
		deleted := false
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				var cur models.PresenceRecord
				if json.Unmarshal(data, &cur) == nil && !cur.LastHeartbeatAt.Equal(rec.LastHeartbeatAt) {
					return nil
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, presenceIndexKey, rec.ClientID)
				return nil
			})
			if err == nil {
				deleted = true
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to remove stale presence %s: %w", rec.ClientID, err)
		}
		if deleted {
			removed = append(removed, rec.ClientID)
		}
	}
	return removed, nil
}

// List reads every indexed client. Ids whose key already expired are pruned from the index.
func (s *PresenceStore) List(ctx context.Context) ([]models.PresenceRecord, error) {
	ids, err := s.rdb.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence index: %w", err)
	}
	if len(ids) == 0 {
		return []models.PresenceRecord{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get presence data: %w", err)
	}

	out := make([]models.PresenceRecord, 0, len(ids))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			expired = append(expired, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get presence for %s: %w", ids[i], err)
		}
		var rec models.PresenceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// unreadable entries are treated like expired ones
			expired = append(expired, ids[i])
			continue
		}
		out = append(out, rec)
	}
	if len(expired) > 0 {
		if err := s.rdb.SRem(ctx, presenceIndexKey, expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune presence index: %w", err)
		}
	}
	return out, nil
}
