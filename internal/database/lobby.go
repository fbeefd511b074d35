package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// LobbyStore persists one lobbies row per room class. Writes are conditional
// on the version column, which makes every update a compare-and-swap.
type LobbyStore struct {
	pool *pgxpool.Pool
}

func NewLobbyStore(pool *pgxpool.Pool) *LobbyStore {
	return &LobbyStore{pool: pool}
}

const lobbyColumns = `
	room_class, seated_players, active_game_id,
	countdown, countdown_started_at, game_active,
	game_settings, random_seed, game_start_time,
	last_updated, version
`

// Get fetches the lobby for roomClass, or models.ErrNotFound.
func (s *LobbyStore) Get(ctx context.Context, roomClass string) (*models.LobbyRecord, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE room_class = $1`
	l, err := scanLobby(s.pool.QueryRow(ctx, q, roomClass))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CompareAndSwap inserts (expectedVersion == 0) or updates the row only if
// nobody else has written since expectedVersion.
func (s *LobbyStore) CompareAndSwap(ctx context.Context, rec *models.LobbyRecord, expectedVersion int64) error {
	seated, err := json.Marshal(rec.SeatedPlayers)
	if err != nil {
		return fmt.Errorf("failed to marshal seated players: %w", err)
	}
	var settings []byte
	if rec.GameSettings != nil {
		if settings, err = json.Marshal(rec.GameSettings); err != nil {
			return fmt.Errorf("failed to marshal game settings: %w", err)
		}
	}

	var q string
	if expectedVersion == 0 {
		q = `
		INSERT INTO lobbies (` + lobbyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (room_class) DO NOTHING
		`
	} else {
		q = `
		UPDATE lobbies SET
			seated_players = $2,
			active_game_id = $3,
			countdown = $4,
			countdown_started_at = $5,
			game_active = $6,
			game_settings = $7,
			random_seed = $8,
			game_start_time = $9,
			last_updated = $10,
			version = version + 1
		WHERE room_class = $1 AND version = $11
		`
	}
	args := []interface{}{
		rec.RoomClass,
		seated,
		rec.ActiveGameID,
		rec.Countdown,
		rec.CountdownStartedAt,
		rec.GameActive,
		settings,
		rec.RandomSeed,
		rec.GameStartTime,
		rec.LastUpdated,
	}
	if expectedVersion != 0 {
		args = append(args, expectedVersion)
	}

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to write lobby %s: %w", rec.RoomClass, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

// List returns every lobby row ordered by room class.
func (s *LobbyStore) List(ctx context.Context) ([]*models.LobbyRecord, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies ORDER BY room_class`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []*models.LobbyRecord
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

func scanLobby(row pgx.Row) (*models.LobbyRecord, error) {
	var (
		l        models.LobbyRecord
		seated   []byte
		settings []byte
	)
	err := row.Scan(
		&l.RoomClass,
		&seated,
		&l.ActiveGameID,
		&l.Countdown,
		&l.CountdownStartedAt,
		&l.GameActive,
		&settings,
		&l.RandomSeed,
		&l.GameStartTime,
		&l.LastUpdated,
		&l.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(seated, &l.SeatedPlayers); err != nil {
		return nil, fmt.Errorf("corrupt seated_players for %s: %w", l.RoomClass, err)
	}
	if l.SeatedPlayers == nil {
		l.SeatedPlayers = []models.Player{}
	}
	if len(settings) > 0 {
		l.GameSettings = &models.GameSettings{}
		if err := json.Unmarshal(settings, l.GameSettings); err != nil {
			return nil, fmt.Errorf("corrupt game_settings for %s: %w", l.RoomClass, err)
		}
	}
	return &l, nil
}
