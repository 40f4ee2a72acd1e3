package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/lastcoin/go/internal/models"
)

// Event payload types shared between the orchestrator, gateway and settlement packages.
// Each payload is one closed variant; Type() ties it to its envelope tag.

// Payload is implemented by every event variant.
type Payload interface {
	Type() Type
}

// StateUpdatePayload is a full snapshot sent on join and resync.
type StateUpdatePayload struct {
	Session *models.GameSession `json:"session"`
}

// PlayerJoinedPayload is emitted when a participant takes a slot.
type PlayerJoinedPayload struct {
	PlayerID   string `json:"player_id"`
	Slot       int    `json:"slot"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

// StartingPayload announces the pre-game countdown.
type StartingPayload struct {
	CountdownMs int64     `json:"countdown_ms"`
	StartsAt    time.Time `json:"starts_at"`
	Players     []string  `json:"players"`
	EarlyStart  bool      `json:"early_start"`
}

// RoundStartedPayload opens the RevealingTarget sub-phase.
type RoundStartedPayload struct {
	Round    int       `json:"round"`
	RevealAt time.Time `json:"reveal_at"`
	Active   []string  `json:"active"`
}

// TargetRevealedPayload reveals the round target and opens the choice window.
type TargetRevealedPayload struct {
	Round    int         `json:"round"`
	Target   models.Face `json:"target"`
	Deadline time.Time   `json:"deadline"`
}

// ChoiceMadePayload never carries the face itself.
type ChoiceMadePayload struct {
	PlayerID string `json:"player_id"`
}

// PowerUpdatePayload reports a player's current charge.
type PowerUpdatePayload struct {
	PlayerID string `json:"player_id"`
	Power    int    `json:"power"`
	Charging bool   `json:"charging"`
}

// FlipExecutedPayload is emitted once per player per round.
type FlipExecutedPayload struct {
	PlayerID string      `json:"player_id"`
	Choice   models.Face `json:"choice"`
	Power    int         `json:"power"`
	Result   models.Face `json:"result"`
	Auto     bool        `json:"auto"`
}

// RoundResultPayload partitions the round's active players.
type RoundResultPayload struct {
	Round      int         `json:"round"`
	Target     models.Face `json:"target"`
	Eliminated []string    `json:"eliminated"`
	Survivors  []string    `json:"survivors"`
	Remaining  int         `json:"remaining"`
}

// GameCompletePayload closes the session. Winner is nil when nobody survived or the game was cancelled.
type GameCompletePayload struct {
	Winner      *string              `json:"winner"`
	TotalRounds int                  `json:"total_rounds"`
	History     []models.RoundRecord `json:"history"`
	Cancelled   bool                 `json:"cancelled"`
	Reason      string               `json:"reason,omitempty"`
}

// CosmeticUpdatedPayload carries purely visual coin metadata.
type CosmeticUpdatedPayload struct {
	PlayerID string         `json:"player_id"`
	Cosmetic map[string]any `json:"cosmetic"`
}

// ErrorPayload reports a session-level failure, or a rejected action when sent directly.
type ErrorPayload struct {
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// AckPayload confirms an accepted client action. Result is action-specific.
type AckPayload struct {
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func (StateUpdatePayload) Type() Type     { return TypeStateUpdate }
func (PlayerJoinedPayload) Type() Type    { return TypePlayerJoined }
func (StartingPayload) Type() Type        { return TypeStarting }
func (RoundStartedPayload) Type() Type    { return TypeRoundStarted }
func (TargetRevealedPayload) Type() Type  { return TypeTargetRevealed }
func (ChoiceMadePayload) Type() Type      { return TypeChoiceMade }
func (PowerUpdatePayload) Type() Type     { return TypePowerUpdate }
func (FlipExecutedPayload) Type() Type    { return TypeFlipExecuted }
func (RoundResultPayload) Type() Type     { return TypeRoundResult }
func (GameCompletePayload) Type() Type    { return TypeGameComplete }
func (CosmeticUpdatedPayload) Type() Type { return TypeCosmeticUpdated }
func (ErrorPayload) Type() Type           { return TypeError }
func (AckPayload) Type() Type             { return TypeAck }
