package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// LaunchHistory is the game_launches table.
type LaunchHistory struct {
	pool *pgxpool.Pool
}

func NewLaunchHistory(pool *pgxpool.Pool) *LaunchHistory {
	return &LaunchHistory{pool: pool}
}

// InsertLaunches writes a batch of launch records in one transaction.
// Re-delivered records (same game id) are ignored.
func (h *LaunchHistory) InsertLaunches(ctx context.Context, recs []models.LaunchRecord) error {
	q := `
	INSERT INTO game_launches (game_id, room_class, players, game_settings, random_seed, started_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (game_id) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, h.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			players, err := json.Marshal(rec.Players)
			if err != nil {
				return fmt.Errorf("failed to marshal players of %s: %w", rec.GameID, err)
			}
			settings, err := json.Marshal(rec.GameSettings)
			if err != nil {
				return fmt.Errorf("failed to marshal settings of %s: %w", rec.GameID, err)
			}
			batch.Queue(q, rec.GameID, rec.RoomClass, players, settings, rec.RandomSeed, time.UnixMilli(rec.StartedAt))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// RecentLaunches returns the latest launches for roomClass, newest first.
func (h *LaunchHistory) RecentLaunches(ctx context.Context, roomClass string, limit int) ([]models.LaunchRecord, error) {
	q := `
	SELECT game_id, room_class, players, game_settings, random_seed, started_at
	FROM game_launches
	WHERE room_class = $1
	ORDER BY started_at DESC
	LIMIT $2
	`
	rows, err := h.pool.Query(ctx, q, roomClass, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LaunchRecord
	for rows.Next() {
		var (
			rec      models.LaunchRecord
			players  []byte
			settings []byte
			started  time.Time
		)
		if err := rows.Scan(&rec.GameID, &rec.RoomClass, &players, &settings, &rec.RandomSeed, &started); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(settings, &rec.GameSettings); err != nil {
			return nil, err
		}
		rec.StartedAt = started.UnixMilli()
		out = append(out, rec)
	}
	return out, rows.Err()
}
