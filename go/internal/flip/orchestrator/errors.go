package orchestrator

import (
	"errors"
	"fmt"
)

// Reason is the structured code returned for every rejected action.
type Reason string

const (
	ReasonGameNotFound        Reason = "game_not_found"
	ReasonGameExists          Reason = "game_exists"
	ReasonWrongPhase          Reason = "wrong_phase"
	ReasonGameFull            Reason = "game_full"
	ReasonAlreadyJoined       Reason = "already_joined"
	ReasonPlayerNotFound      Reason = "player_not_found"
	ReasonPlayerNotActive     Reason = "player_not_active"
	ReasonAlreadyFlipped      Reason = "already_flipped_this_round"
	ReasonNoChoice            Reason = "no_choice"
	ReasonNotCreator          Reason = "not_creator"
	ReasonInsufficientPlayers Reason = "insufficient_players"
	ReasonInvalidChoice       Reason = "invalid_choice"
	ReasonEntryNotConfirmed   Reason = "entry_not_confirmed"
	ReasonInvalidSettings     Reason = "invalid_settings"
	ReasonInternal            Reason = "internal_error"
)

// Cancellation reasons recorded on the session and in game_complete.
const (
	CancelNoSurvivors         = "no_survivors"
	CancelInsufficientPlayers = "insufficient_players"
	CancelInternalError       = "internal_error"
)

// ActionError is a validation failure. It never accompanies a state change.
type ActionError struct {
	Op       string
	Reason   Reason
	GameID   string
	PlayerID string
}

func (e *ActionError) Error() string {
	if e.PlayerID != "" {
		return fmt.Sprintf("%s rejected for game %s player %s: %s", e.Op, e.GameID, e.PlayerID, e.Reason)
	}
	return fmt.Sprintf("%s rejected for game %s: %s", e.Op, e.GameID, e.Reason)
}

// ReasonOf extracts the reason code from an error returned by the orchestrator.
func ReasonOf(err error) (Reason, bool) {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Reason, true
	}
	return "", false
}

func reject(op string, reason Reason, gameID, playerID string) error {
	return &ActionError{Op: op, Reason: reason, GameID: gameID, PlayerID: playerID}
}
