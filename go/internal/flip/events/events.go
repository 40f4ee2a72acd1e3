package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the tag of an event variant.
type Type string

const (
	TypeStateUpdate     Type = "state_update"
	TypePlayerJoined    Type = "player_joined"
	TypeStarting        Type = "starting"
	TypeRoundStarted    Type = "round_started"
	TypeTargetRevealed  Type = "target_revealed"
	TypeChoiceMade      Type = "choice_made"
	TypePowerUpdate     Type = "power_update"
	TypeFlipExecuted    Type = "flip_executed"
	TypeRoundResult     Type = "round_result"
	TypeGameComplete    Type = "game_complete"
	TypeCosmeticUpdated Type = "cosmetic_updated"
	TypeError           Type = "error"

	// TypeAck is a direct reply to one client action; it is never broadcast.
	TypeAck Type = "ack"
)

// Event is the envelope pushed to every subscriber of a game.
type Event struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Seq       uint64          `json:"seq"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps a payload in an envelope. Seq is the per-game sequence number.
// Direct replies use 0, except state_update, which carries the seq its snapshot reflects.
func New(gameID string, seq uint64, payload Payload, at time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", payload.Type(), err)
	}
	return &Event{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Seq:       seq,
		Type:      payload.Type(),
		Timestamp: at,
		Data:      data,
	}, nil
}

// Decode parses the envelope data into its payload variant.
func Decode(event *Event) (Payload, error) {
	var payload Payload
	switch event.Type {
	case TypeStateUpdate:
		payload = &StateUpdatePayload{}
	case TypePlayerJoined:
		payload = &PlayerJoinedPayload{}
	case TypeStarting:
		payload = &StartingPayload{}
	case TypeRoundStarted:
		payload = &RoundStartedPayload{}
	case TypeTargetRevealed:
		payload = &TargetRevealedPayload{}
	case TypeChoiceMade:
		payload = &ChoiceMadePayload{}
	case TypePowerUpdate:
		payload = &PowerUpdatePayload{}
	case TypeFlipExecuted:
		payload = &FlipExecutedPayload{}
	case TypeRoundResult:
		payload = &RoundResultPayload{}
	case TypeGameComplete:
		payload = &GameCompletePayload{}
	case TypeCosmeticUpdated:
		payload = &CosmeticUpdatedPayload{}
	case TypeError:
		payload = &ErrorPayload{}
	case TypeAck:
		payload = &AckPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return payload, nil
}
