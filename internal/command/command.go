// Package command models every lobby operation as a closed set of typed
// variants, decoded from the wire and executed by a single dispatcher.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Operation names as they appear on the wire.
const (
	OpJoinLobby             = "joinLobby"
	OpLeaveLobby            = "leaveLobby"
	OpGetLobbyStatus        = "getLobbyStatus"
	OpStartGame             = "startGame"
	OpFinishGame            = "finishGame"
	OpSendHeartbeat         = "sendHeartbeat"
	OpUpdateInterest        = "updateInterest"
	OpRemoveInterest        = "removeInterest"
	OpGetInterestCounts     = "getInterestCounts"
	OpCleanupStaleInterests = "cleanupStaleInterests"
	OpCheckGuess            = "checkGuess"
)

// Operations lists every operation Decode accepts.
var Operations = []string{
	OpJoinLobby,
	OpLeaveLobby,
	OpGetLobbyStatus,
	OpStartGame,
	OpFinishGame,
	OpSendHeartbeat,
	OpUpdateInterest,
	OpRemoveInterest,
	OpGetInterestCounts,
	OpCleanupStaleInterests,
	OpCheckGuess,
}

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrMalformed        = errors.New("malformed request body")
)

// Command is one decoded operation. The set of implementations is closed.
type Command interface {
	Operation() string
	command()
}

type JoinLobby struct {
	RoomClass string `json:"roomClass"`
	ClientID  string `json:"clientId"`
	Username  string `json:"username"`
}

type LeaveLobby struct {
	RoomClass string `json:"roomClass"`
	ClientID  string `json:"clientId"`
}

type GetLobbyStatus struct {
	RoomClass string `json:"roomClass"`
}

// StartGame is issued by a launcher, never by a seated client. Every field
// but roomClass is optional; omitted ones are generated. gameSettings holds
// overrides of the room's defaults, so a partial object is fine.
type StartGame struct {
	GameID       string                 `json:"gameId"`
	RoomClass    string                 `json:"roomClass"`
	Players      []models.Player        `json:"players"`
	GameSettings map[string]interface{} `json:"gameSettings"`
	RandomSeed   *int64                 `json:"randomSeed"`
}

type FinishGame struct {
	RoomClass string `json:"roomClass"`
	GameID    string `json:"gameId"`
}

type SendHeartbeat struct {
	ClientID  string `json:"clientId"`
	RoomClass string `json:"roomClass"`
	Username  string `json:"username"`
}

type UpdateInterest struct {
	RoomClass string `json:"roomClass"`
	ClientID  string `json:"clientId"`
	Username  string `json:"username"`
}

type RemoveInterest struct {
	ClientID  string `json:"clientId"`
	RoomClass string `json:"roomClass"`
}

type GetInterestCounts struct{}

type CleanupStaleInterests struct{}

type CheckGuess struct {
	RoomClass string `json:"roomClass"`
	GameID    string `json:"gameId"`
	Guess     string `json:"guess"`
}

func (*JoinLobby) Operation() string             { return OpJoinLobby }
func (*LeaveLobby) Operation() string            { return OpLeaveLobby }
func (*GetLobbyStatus) Operation() string        { return OpGetLobbyStatus }
func (*StartGame) Operation() string             { return OpStartGame }
func (*FinishGame) Operation() string            { return OpFinishGame }
func (*SendHeartbeat) Operation() string         { return OpSendHeartbeat }
func (*UpdateInterest) Operation() string        { return OpUpdateInterest }
func (*RemoveInterest) Operation() string        { return OpRemoveInterest }
func (*GetInterestCounts) Operation() string     { return OpGetInterestCounts }
func (*CleanupStaleInterests) Operation() string { return OpCleanupStaleInterests }
func (*CheckGuess) Operation() string            { return OpCheckGuess }

func (*JoinLobby) command()             {}
func (*LeaveLobby) command()            {}
func (*GetLobbyStatus) command()        {}
func (*StartGame) command()             {}
func (*FinishGame) command()            {}
func (*SendHeartbeat) command()         {}
func (*UpdateInterest) command()        {}
func (*RemoveInterest) command()        {}
func (*GetInterestCounts) command()     {}
func (*CleanupStaleInterests) command() {}
func (*CheckGuess) command()            {}

// New returns a zero command for op.
func New(op string) (Command, error) {
	switch op {
	case OpJoinLobby:
		return &JoinLobby{}, nil
	case OpLeaveLobby:
		return &LeaveLobby{}, nil
	case OpGetLobbyStatus:
		return &GetLobbyStatus{}, nil
	case OpStartGame:
		return &StartGame{}, nil
	case OpFinishGame:
		return &FinishGame{}, nil
	case OpSendHeartbeat:
		return &SendHeartbeat{}, nil
	case OpUpdateInterest:
		return &UpdateInterest{}, nil
	case OpRemoveInterest:
		return &RemoveInterest{}, nil
	case OpGetInterestCounts:
		return &GetInterestCounts{}, nil
	case OpCleanupStaleInterests:
		return &CleanupStaleInterests{}, nil
	case OpCheckGuess:
		return &CheckGuess{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// Decode builds the command for op from a JSON body. An empty body decodes
// to the zero command.
func Decode(op string, body []byte) (Command, error) {
	cmd, err := New(op)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, cmd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return cmd, nil
}
