package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/models"
)

// Client is a typed client for the flip action service. Rejections come back
// as *orchestrator.ActionError.
type Client struct {
	createGame        *connect.Client[CreateGameRequest, GameResponse]
	join              *connect.Client[PlayerRequest, JoinResponse]
	requestEarlyStart *connect.Client[PlayerRequest, Empty]
	setChoice         *connect.Client[SetChoiceRequest, Empty]
	startPowerCharge  *connect.Client[PlayerRequest, Empty]
	stopPowerCharge   *connect.Client[StopPowerChargeRequest, StopPowerChargeResponse]
	executeFlip       *connect.Client[PlayerRequest, ExecuteFlipResponse]
	updateCosmetic    *connect.Client[UpdateCosmeticRequest, Empty]
	getState          *connect.Client[GetStateRequest, GameResponse]
	listGames         *connect.Client[ListGamesRequest, ListGamesResponse]
}

// NewClient builds a client against baseURL, e.g. http://localhost:8080.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		createGame:        connect.NewClient[CreateGameRequest, GameResponse](httpClient, baseURL+CreateGameProcedure, opts...),
		join:              connect.NewClient[PlayerRequest, JoinResponse](httpClient, baseURL+JoinProcedure, opts...),
		requestEarlyStart: connect.NewClient[PlayerRequest, Empty](httpClient, baseURL+RequestEarlyStartProcedure, opts...),
		setChoice:         connect.NewClient[SetChoiceRequest, Empty](httpClient, baseURL+SetChoiceProcedure, opts...),
		startPowerCharge:  connect.NewClient[PlayerRequest, Empty](httpClient, baseURL+StartPowerChargeProcedure, opts...),
		stopPowerCharge:   connect.NewClient[StopPowerChargeRequest, StopPowerChargeResponse](httpClient, baseURL+StopPowerChargeProcedure, opts...),
		executeFlip:       connect.NewClient[PlayerRequest, ExecuteFlipResponse](httpClient, baseURL+ExecuteFlipProcedure, opts...),
		updateCosmetic:    connect.NewClient[UpdateCosmeticRequest, Empty](httpClient, baseURL+UpdateCosmeticProcedure, opts...),
		getState:          connect.NewClient[GetStateRequest, GameResponse](httpClient, baseURL+GetStateProcedure, opts...),
		listGames:         connect.NewClient[ListGamesRequest, ListGamesResponse](httpClient, baseURL+ListGamesProcedure, opts...),
	}
}

func (c *Client) CreateGame(ctx context.Context, req CreateGameRequest) (*models.GameSession, error) {
	resp, err := c.createGame.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, fromConnectError("create", err, req.GameID, "")
	}
	return resp.Msg.Game, nil
}

func (c *Client) Join(ctx context.Context, gameID, playerID string) (*models.PlayerState, error) {
	resp, err := c.join.CallUnary(ctx, connect.NewRequest(&PlayerRequest{GameID: gameID, PlayerID: playerID}))
	if err != nil {
		return nil, fromConnectError("join", err, gameID, playerID)
	}
	return resp.Msg.Player, nil
}

func (c *Client) RequestEarlyStart(ctx context.Context, gameID, playerID string) error {
	_, err := c.requestEarlyStart.CallUnary(ctx, connect.NewRequest(&PlayerRequest{GameID: gameID, PlayerID: playerID}))
	if err != nil {
		return fromConnectError("early_start", err, gameID, playerID)
	}
	return nil
}

func (c *Client) SetChoice(ctx context.Context, gameID, playerID string, face models.Face) error {
	_, err := c.setChoice.CallUnary(ctx, connect.NewRequest(&SetChoiceRequest{GameID: gameID, PlayerID: playerID, Face: face}))
	if err != nil {
		return fromConnectError("set_choice", err, gameID, playerID)
	}
	return nil
}

func (c *Client) StartPowerCharge(ctx context.Context, gameID, playerID string) error {
	_, err := c.startPowerCharge.CallUnary(ctx, connect.NewRequest(&PlayerRequest{GameID: gameID, PlayerID: playerID}))
	if err != nil {
		return fromConnectError("start_power", err, gameID, playerID)
	}
	return nil
}

func (c *Client) StopPowerCharge(ctx context.Context, gameID, playerID string, finalPower *int) (int, error) {
	resp, err := c.stopPowerCharge.CallUnary(ctx, connect.NewRequest(&StopPowerChargeRequest{GameID: gameID, PlayerID: playerID, FinalPower: finalPower}))
	if err != nil {
		return 0, fromConnectError("stop_power", err, gameID, playerID)
	}
	return resp.Msg.Power, nil
}

func (c *Client) ExecuteFlip(ctx context.Context, gameID, playerID string) (*orchestrator.FlipOutcome, error) {
	resp, err := c.executeFlip.CallUnary(ctx, connect.NewRequest(&PlayerRequest{GameID: gameID, PlayerID: playerID}))
	if err != nil {
		return nil, fromConnectError("flip", err, gameID, playerID)
	}
	return resp.Msg.Outcome, nil
}

func (c *Client) UpdateCosmetic(ctx context.Context, gameID, playerID string, cosmetic map[string]any) error {
	_, err := c.updateCosmetic.CallUnary(ctx, connect.NewRequest(&UpdateCosmeticRequest{GameID: gameID, PlayerID: playerID, Cosmetic: cosmetic}))
	if err != nil {
		return fromConnectError("update_cosmetic", err, gameID, playerID)
	}
	return nil
}

func (c *Client) GetState(ctx context.Context, gameID string) (*models.GameSession, error) {
	resp, err := c.getState.CallUnary(ctx, connect.NewRequest(&GetStateRequest{GameID: gameID}))
	if err != nil {
		return nil, fromConnectError("snapshot", err, gameID, "")
	}
	return resp.Msg.Game, nil
}

func (c *Client) ListGames(ctx context.Context) ([]orchestrator.Summary, error) {
	resp, err := c.listGames.CallUnary(ctx, connect.NewRequest(&ListGamesRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Games, nil
}
