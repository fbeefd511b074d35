package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means a required input was missing or malformed. Callers must fix the input.
	ErrValidation = errors.New("validation failed")

	// ErrLobbyFull means every seat is taken. Callers should poll status rather than retry.
	ErrLobbyFull = errors.New("lobby is full")

	// ErrConflict means a conditional write lost a race against a concurrent writer.
	ErrConflict = errors.New("concurrent modification")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps transient infrastructure failures.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// LobbyFullError carries the occupancy observed when the join was rejected.
type LobbyFullError struct {
	RoomClass      string
	PlayersWaiting int
}

func (e *LobbyFullError) Error() string {
	return fmt.Sprintf("lobby %s is full (%d players waiting)", e.RoomClass, e.PlayersWaiting)
}

func (e *LobbyFullError) Is(target error) bool { return target == ErrLobbyFull }

// StorageError wraps err so that errors.Is(err, ErrStorage) holds while keeping the cause.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Require returns a ValidationError for the first empty value, in argument order.
// Arguments alternate field name and value.
func Require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return &ValidationError{Field: pairs[i]}
		}
	}
	return nil
}
