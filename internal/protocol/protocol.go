package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/tally/backend/internal/apperror"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

// Represents the name of a socket event
type Event string

// Inbound events (client -> server)
const (
	EventJoin         Event = "game join"
	EventExit         Event = "game exit"
	EventUpdate       Event = "game update"
	EventDelete       Event = "game delete"
	EventEditName     Event = "game edit name"
	EventEditWin      Event = "game edit win"
	EventEditType     Event = "game edit type"
	EventEditPlayer   Event = "game edit player"
	EventRemovePlayer Event = "game remove player"
	EventEditScore    Event = "game edit score"
	EventRemoveScore  Event = "game remove score"

	// Raised locally when the transport closes, never read off the wire
	EventDisconnect Event = "disconnect"
)

// Outbound events (server -> client or room)
const (
	EventJoined       Event = "game joined"
	EventExited       Event = "game exited"
	EventGame         Event = "game"
	EventDeleted      Event = "game deleted"
	EventDisplayError Event = "display error"
)

var inbound = map[Event]struct{}{
	EventJoin: {}, EventExit: {}, EventUpdate: {}, EventDelete: {},
	EventEditName: {}, EventEditWin: {}, EventEditType: {}, EventEditPlayer: {},
	EventRemovePlayer: {}, EventEditScore: {}, EventRemoveScore: {},
}

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the JSON frame exchanged over the socket
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type EditName struct {
	GameID string `json:"gameId"`
	Name   string `json:"name"`
}

type EditWin struct {
	GameID         string `json:"gameId"`
	LowerScoreWins bool   `json:"lowerScoreWins"`
}

type EditType struct {
	GameID   string         `json:"gameId"`
	GameType model.GameType `json:"gameType"`
}

type EditPlayer struct {
	GameID     string `json:"gameId"`
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type RemovePlayer struct {
	GameID   string `json:"gameId"`
	PlayerID int    `json:"playerId"`
}

// EditScore with PlayerID -1 targets every player.
type EditScore struct {
	GameID   string  `json:"gameId"`
	PlayerID int     `json:"playerId"`
	ScoreID  int     `json:"scoreId"`
	Score    float64 `json:"score"`
}

type RemoveScore struct {
	GameID   string `json:"gameId"`
	PlayerID int    `json:"playerId"`
	ScoreID  int    `json:"scoreId"`
}

// Parses and validates an inbound frame
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, ErrEmptyMessage
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("malformed envelope: %w", err)
	}
	if _, ok := inbound[env.Event]; !ok {
		return env, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// Builds an outbound frame
func Encode(event Event, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Unmarshals the envelope payload into v
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return apperror.Validation("%s: missing payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return apperror.Validation("%s: bad payload: %v", e.Event, err)
	}
	return nil
}
