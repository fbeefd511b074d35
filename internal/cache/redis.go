// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultLaunchQueue is the Redis list the historian drains launch records from.
const DefaultLaunchQueue = "pfb_launches"

// ConnectRedis opens a client against addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// LaunchQueue pushes launch records for the historian.
type LaunchQueue struct {
	rdb  *redis.Client
	name string
}

// NewLaunchQueue returns a queue writing to the list name (DefaultLaunchQueue if empty).
func NewLaunchQueue(rdb *redis.Client, name string) *LaunchQueue {
	if name == "" {
		name = DefaultLaunchQueue
	}
	return &LaunchQueue{rdb: rdb, name: name}
}

// Name is the Redis list the queue writes to.
func (q *LaunchQueue) Name() string { return q.name }

// RecordLaunch serializes rec to JSON and pushes it onto the queue.
func (q *LaunchQueue) RecordLaunch(ctx context.Context, rec models.LaunchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal LaunchRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}
