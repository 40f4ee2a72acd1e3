package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/rs/zerolog/log"
)

var errUnknownAction = errors.New("unknown action")

// StateHandler serves read-only session views plus session creation over HTTP.
type StateHandler struct {
	actions Actions
}

// NewStateHandler creates a new state handler
func NewStateHandler(actions Actions) *StateHandler {
	return &StateHandler{actions: actions}
}

// HandleGetState handles GET /api/games/{gameID}/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	snapshot, err := h.actions.Snapshot(r.Context(), gameID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleListGames handles GET /api/games
func (h *StateHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": h.actions.ListSessions()})
}

// HandleCreateGame handles POST /api/games
func (h *StateHandler) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Reason: reasonBadRequest, Detail: err.Error()})
			return
		}
	}
	snapshot, err := h.actions.CreateSession(r.Context(), req)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

// RegisterRoutes registers the REST routes.
func (h *StateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/games", func(r chi.Router) {
		r.Get("/", h.HandleListGames)
		r.Post("/", h.HandleCreateGame)
		r.Get("/{gameID}/state", h.HandleGetState)
	})
}

type errorBody struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func statusFor(reason orchestrator.Reason) int {
	switch reason {
	case orchestrator.ReasonGameNotFound, orchestrator.ReasonPlayerNotFound:
		return http.StatusNotFound
	case orchestrator.ReasonGameExists, orchestrator.ReasonAlreadyJoined:
		return http.StatusConflict
	case orchestrator.ReasonInvalidChoice, orchestrator.ReasonInvalidSettings:
		return http.StatusBadRequest
	case orchestrator.ReasonNotCreator, orchestrator.ReasonEntryNotConfirmed:
		return http.StatusForbidden
	case orchestrator.ReasonInternal:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func writeActionError(w http.ResponseWriter, err error) {
	if reason, ok := orchestrator.ReasonOf(err); ok {
		writeJSON(w, statusFor(reason), errorBody{Reason: string(reason)})
		return
	}
	log.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Reason: string(orchestrator.ReasonInternal)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
