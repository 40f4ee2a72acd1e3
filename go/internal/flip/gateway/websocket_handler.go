package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/lastcoin/go/internal/flip/events"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Actions is the slice of the orchestrator the gateway drives.
type Actions interface {
	CreateSession(ctx context.Context, req orchestrator.CreateRequest) (*models.GameSession, error)
	JoinSession(ctx context.Context, gameID, playerID string) (*models.PlayerState, error)
	RequestEarlyStart(ctx context.Context, gameID, requesterID string) error
	SetChoice(ctx context.Context, gameID, playerID string, face models.Face) error
	StartPowerCharge(ctx context.Context, gameID, playerID string) error
	StopPowerCharge(ctx context.Context, gameID, playerID string, finalPower *int) (int, error)
	ExecuteFlip(ctx context.Context, gameID, playerID string) (*orchestrator.FlipOutcome, error)
	UpdateCoinCosmetic(ctx context.Context, gameID, playerID string, cosmetic map[string]any) error
	Snapshot(ctx context.Context, gameID string) (*models.GameSession, error)
	ListSessions() []orchestrator.Summary
}

// Client action names.
const (
	ActionJoin       = "join"
	ActionEarlyStart = "early_start"
	ActionChoose     = "choose"
	ActionStartPower = "start_power"
	ActionStopPower  = "stop_power"
	ActionFlip       = "flip"
	ActionCosmetic   = "cosmetic"
	ActionResync     = "resync"
)

// reasonBadRequest answers frames that do not parse or name no known action.
const reasonBadRequest = "bad_request"

const actionTimeout = 5 * time.Second

// ClientMessage is one frame sent by a subscriber.
type ClientMessage struct {
	Action     string         `json:"action"`
	RequestID  string         `json:"request_id,omitempty"`
	Face       models.Face    `json:"face,omitempty"`
	FinalPower *int           `json:"final_power,omitempty"`
	Cosmetic   map[string]any `json:"cosmetic,omitempty"`
}

// WebSocketHandler handles WebSocket subscriptions and the actions clients send over them.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	actions           Actions
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, actions Actions) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		actions:           actions,
	}
}

// HandleGameConnection handles GET /ws/games/{gameID}?player_id=...
// Omitting player_id subscribes as a spectator.
// player_id is taken as given; wallet authentication belongs in front of this handler.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	playerID := r.URL.Query().Get("player_id")

	if _, err := h.actions.Snapshot(r.Context(), gameID); err != nil {
		writeActionError(w, err)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, gameID, playerID, h.handleClientMessage)
	if err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("game_id", gameID).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// Snapshot again once registered so no broadcast falls between the two.
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	snapshot, err := h.actions.Snapshot(ctx, gameID)
	if err != nil {
		h.fail(conn, ClientMessage{Action: ActionResync}, err)
		return
	}
	h.sendState(conn, snapshot)
}

func (h *WebSocketHandler) handleClientMessage(c *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.reply(c, msg, nil, reasonBadRequest)
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("game_id", c.GameID).
		Str("player_id", c.PlayerID).
		Str("action", msg.Action).
		Msg("received client action")

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if msg.Action == ActionResync {
		snapshot, err := h.actions.Snapshot(ctx, c.GameID)
		if err != nil {
			h.fail(c, msg, err)
			return
		}
		h.sendState(c, snapshot)
		return
	}
	if c.Spectator() {
		h.reply(c, msg, nil, string(orchestrator.ReasonPlayerNotFound))
		return
	}

	result, err := h.dispatch(ctx, c, msg)
	if err != nil {
		h.fail(c, msg, err)
		return
	}
	h.reply(c, msg, result, "")
}

func (h *WebSocketHandler) dispatch(ctx context.Context, c *Connection, msg ClientMessage) (any, error) {
	gameID, playerID := c.GameID, c.PlayerID
	switch msg.Action {
	case ActionJoin:
		return h.actions.JoinSession(ctx, gameID, playerID)
	case ActionEarlyStart:
		return nil, h.actions.RequestEarlyStart(ctx, gameID, playerID)
	case ActionChoose:
		return nil, h.actions.SetChoice(ctx, gameID, playerID, msg.Face)
	case ActionStartPower:
		return nil, h.actions.StartPowerCharge(ctx, gameID, playerID)
	case ActionStopPower:
		power, err := h.actions.StopPowerCharge(ctx, gameID, playerID, msg.FinalPower)
		if err != nil {
			return nil, err
		}
		return map[string]int{"power": power}, nil
	case ActionFlip:
		return h.actions.ExecuteFlip(ctx, gameID, playerID)
	case ActionCosmetic:
		return nil, h.actions.UpdateCoinCosmetic(ctx, gameID, playerID, msg.Cosmetic)
	}
	return nil, errUnknownAction
}

func (h *WebSocketHandler) fail(c *Connection, msg ClientMessage, err error) {
	reason, ok := orchestrator.ReasonOf(err)
	switch {
	case errors.Is(err, errUnknownAction):
		h.reply(c, msg, nil, reasonBadRequest)
	case ok:
		h.reply(c, msg, nil, string(reason))
	default:
		log.Error().
			Err(err).
			Str("game_id", c.GameID).
			Str("player_id", c.PlayerID).
			Str("action", msg.Action).
			Msg("client action failed")
		h.reply(c, msg, nil, string(orchestrator.ReasonInternal))
	}
}

// reply sends an ack, or an error when reason is set.
func (h *WebSocketHandler) reply(c *Connection, msg ClientMessage, result any, reason string) {
	var payload events.Payload
	if reason != "" {
		payload = events.ErrorPayload{Reason: reason, Action: msg.Action, RequestID: msg.RequestID}
	} else {
		ack := events.AckPayload{Action: msg.Action, RequestID: msg.RequestID}
		if result != nil {
			raw, err := json.Marshal(result)
			if err != nil {
				log.Error().Err(err).Str("action", msg.Action).Msg("failed to marshal ack result")
			}
			ack.Result = raw
		}
		payload = ack
	}
	h.send(c, 0, payload)
}

func (h *WebSocketHandler) sendState(c *Connection, snapshot *models.GameSession) {
	h.send(c, snapshot.EventSeq, events.StateUpdatePayload{Session: snapshot})
}

func (h *WebSocketHandler) send(c *Connection, seq uint64, payload events.Payload) {
	ev, err := events.New(c.GameID, seq, payload, time.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", c.GameID).Msg("failed to build direct event")
		return
	}
	if err := h.connectionManager.SendDirect(c, ev); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("event_type", string(ev.Type)).
			Msg("direct reply dropped")
	}
}

// HandleConnectionStats serves GET /ws/stats.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/games/{gameID}", h.HandleGameConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
}
