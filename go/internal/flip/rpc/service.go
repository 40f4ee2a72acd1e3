package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/mcdev12/lastcoin/go/internal/models"
)

// Actions is what the RPC surface needs from the orchestrator.
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

// Service implements the flip action service as Connect unary handlers.
type Service struct {
	actions Actions
}

// NewService creates a new flip RPC service
func NewService(actions Actions) *Service {
	return &Service{actions: actions}
}

func (s *Service) CreateGame(ctx context.Context, req *connect.Request[CreateGameRequest]) (*connect.Response[GameResponse], error) {
	g, err := s.actions.CreateSession(ctx, orchestrator.CreateRequest{
		ID:         req.Msg.GameID,
		MaxPlayers: req.Msg.MaxPlayers,
		CreatorID:  req.Msg.CreatorID,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GameResponse{Game: g}), nil
}

func (s *Service) Join(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[JoinResponse], error) {
	p, err := s.actions.JoinSession(ctx, req.Msg.GameID, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&JoinResponse{Player: p}), nil
}

func (s *Service) RequestEarlyStart(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Empty], error) {
	if err := s.actions.RequestEarlyStart(ctx, req.Msg.GameID, req.Msg.PlayerID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) SetChoice(ctx context.Context, req *connect.Request[SetChoiceRequest]) (*connect.Response[Empty], error) {
	if err := s.actions.SetChoice(ctx, req.Msg.GameID, req.Msg.PlayerID, req.Msg.Face); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) StartPowerCharge(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Empty], error) {
	if err := s.actions.StartPowerCharge(ctx, req.Msg.GameID, req.Msg.PlayerID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) StopPowerCharge(ctx context.Context, req *connect.Request[StopPowerChargeRequest]) (*connect.Response[StopPowerChargeResponse], error) {
	power, err := s.actions.StopPowerCharge(ctx, req.Msg.GameID, req.Msg.PlayerID, req.Msg.FinalPower)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StopPowerChargeResponse{Power: power}), nil
}

func (s *Service) ExecuteFlip(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[ExecuteFlipResponse], error) {
	outcome, err := s.actions.ExecuteFlip(ctx, req.Msg.GameID, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExecuteFlipResponse{Outcome: outcome}), nil
}

func (s *Service) UpdateCosmetic(ctx context.Context, req *connect.Request[UpdateCosmeticRequest]) (*connect.Response[Empty], error) {
	if err := s.actions.UpdateCoinCosmetic(ctx, req.Msg.GameID, req.Msg.PlayerID, req.Msg.Cosmetic); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetState is the read-only spectate call. It never mutates the session.
func (s *Service) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GameResponse], error) {
	g, err := s.actions.Snapshot(ctx, req.Msg.GameID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GameResponse{Game: g}), nil
}

func (s *Service) ListGames(ctx context.Context, req *connect.Request[ListGamesRequest]) (*connect.Response[ListGamesResponse], error) {
	return connect.NewResponse(&ListGamesResponse{Games: s.actions.ListSessions()}), nil
}

// NewHandler mounts every procedure under the service path.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateGameProcedure, connect.NewUnaryHandler(CreateGameProcedure, svc.CreateGame, opts...))
	mux.Handle(JoinProcedure, connect.NewUnaryHandler(JoinProcedure, svc.Join, opts...))
	mux.Handle(RequestEarlyStartProcedure, connect.NewUnaryHandler(RequestEarlyStartProcedure, svc.RequestEarlyStart, opts...))
	mux.Handle(SetChoiceProcedure, connect.NewUnaryHandler(SetChoiceProcedure, svc.SetChoice, opts...))
	mux.Handle(StartPowerChargeProcedure, connect.NewUnaryHandler(StartPowerChargeProcedure, svc.StartPowerCharge, opts...))
	mux.Handle(StopPowerChargeProcedure, connect.NewUnaryHandler(StopPowerChargeProcedure, svc.StopPowerCharge, opts...))
	mux.Handle(ExecuteFlipProcedure, connect.NewUnaryHandler(ExecuteFlipProcedure, svc.ExecuteFlip, opts...))
	mux.Handle(UpdateCosmeticProcedure, connect.NewUnaryHandler(UpdateCosmeticProcedure, svc.UpdateCosmetic, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(ListGamesProcedure, connect.NewUnaryHandler(ListGamesProcedure, svc.ListGames, opts...))
	return "/" + ServiceName + "/", mux
}
