package rpc

import (
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/models"
)

// ServiceName is the fully-qualified name of the flip action service.
const ServiceName = "flip.v1.FlipService"

// Procedure paths.
const (
	CreateGameProcedure        = "/" + ServiceName + "/CreateGame"
	JoinProcedure              = "/" + ServiceName + "/Join"
	RequestEarlyStartProcedure = "/" + ServiceName + "/RequestEarlyStart"
	SetChoiceProcedure         = "/" + ServiceName + "/SetChoice"
	StartPowerChargeProcedure  = "/" + ServiceName + "/StartPowerCharge"
	StopPowerChargeProcedure   = "/" + ServiceName + "/StopPowerCharge"
	ExecuteFlipProcedure       = "/" + ServiceName + "/ExecuteFlip"
	UpdateCosmeticProcedure    = "/" + ServiceName + "/UpdateCosmetic"
	GetStateProcedure          = "/" + ServiceName + "/GetState"
	ListGamesProcedure         = "/" + ServiceName + "/ListGames"
)

// ReasonHeader carries the orchestrator reason code on rejected calls.
const ReasonHeader = "Flip-Reason"

type CreateGameRequest struct {
	GameID     string `json:"game_id,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	CreatorID  string `json:"creator_id,omitempty"`
}

type GameResponse struct {
	Game *models.GameSession `json:"game"`
}

type PlayerRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

type JoinResponse struct {
	Player *models.PlayerState `json:"player"`
}

type SetChoiceRequest struct {
	GameID   string      `json:"game_id"`
	PlayerID string      `json:"player_id"`
	Face     models.Face `json:"face"`
}

type StopPowerChargeRequest struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	FinalPower *int   `json:"final_power,omitempty"`
}

type StopPowerChargeResponse struct {
	Power int `json:"power"`
}

type ExecuteFlipResponse struct {
	Outcome *orchestrator.FlipOutcome `json:"outcome"`
}

type UpdateCosmeticRequest struct {
	GameID   string         `json:"game_id"`
	PlayerID string         `json:"player_id"`
	Cosmetic map[string]any `json:"cosmetic"`
}

type GetStateRequest struct {
	GameID string `json:"game_id"`
}

type ListGamesRequest struct{}

type ListGamesResponse struct {
	Games []orchestrator.Summary `json:"games"`
}

// Empty is returned by actions with no result beyond acceptance.
type Empty struct{}
