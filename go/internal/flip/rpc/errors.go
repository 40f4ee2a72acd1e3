package rpc

import (
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/lastcoin/go/internal/flip/orchestrator"
	"github.com/rs/zerolog/log"
)

func codeFor(reason orchestrator.Reason) connect.Code {
	switch reason {
	case orchestrator.ReasonGameNotFound, orchestrator.ReasonPlayerNotFound:
		return connect.CodeNotFound
	case orchestrator.ReasonAlreadyJoined, orchestrator.ReasonGameExists:
		return connect.CodeAlreadyExists
	case orchestrator.ReasonInvalidChoice, orchestrator.ReasonInvalidSettings:
		return connect.CodeInvalidArgument
	case orchestrator.ReasonInternal:
		return connect.CodeInternal
	}
	return connect.CodeFailedPrecondition
}

// toConnectError maps orchestrator rejections to Connect codes and carries the reason in a header.
func toConnectError(err error) error {
	var actionErr *orchestrator.ActionError
	if !errors.As(err, &actionErr) {
		log.Error().Err(err).Msg("rpc call failed")
		connectErr := connect.NewError(connect.CodeInternal, err)
		connectErr.Meta().Set(ReasonHeader, string(orchestrator.ReasonInternal))
		return connectErr
	}
	connectErr := connect.NewError(codeFor(actionErr.Reason), err)
	connectErr.Meta().Set(ReasonHeader, string(actionErr.Reason))
	return connectErr
}

// fromConnectError restores the orchestrator rejection on the client side so
// orchestrator.ReasonOf works across the wire.
func fromConnectError(op string, err error, gameID, playerID string) error {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return err
	}
	reason := connectErr.Meta().Get(ReasonHeader)
	if reason == "" || reason == string(orchestrator.ReasonInternal) {
		return err
	}
	return &orchestrator.ActionError{Op: op, Reason: orchestrator.Reason(reason), GameID: gameID, PlayerID: playerID}
}
