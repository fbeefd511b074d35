package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
)

const interestHashKey = "pfb:interest"

// InterestStore keeps all InterestRecords in one hash, field = room class.
type InterestStore struct {
	rdb *redis.Client
}

func NewInterestStore(rdb *redis.Client) *InterestStore {
	return &InterestStore{rdb: rdb}
}

func (s *InterestStore) Put(ctx context.Context, recs ...models.InterestRecord) error {
	if len(recs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(recs)*2)
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal interest record: %w", err)
		}
		values = append(values, r.RoomClass, data)
	}
	if err := s.rdb.HSet(ctx, interestHashKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to write interest counts: %w", err)
	}
	return nil
}

func (s *InterestStore) List(ctx context.Context) ([]models.InterestRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, interestHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read interest counts: %w", err)
	}
	out := make([]models.InterestRecord, 0, len(fields))
	for roomClass, data := range fields {
		var r models.InterestRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("corrupt interest record for %s: %w", roomClass, err)
		}
		out = append(out, r)
	}
	return out, nil
}
