package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quickgamelab/tictactoe-session/internal/apperror"
)

func (that *Server) handleConnect(ctx context.Context, sessionID string, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleConnect", "sessionID", sessionID)

	session, err := that.manager.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to get or create session", "error", err)
		return that.sendError(conn, msg.Action, "failed to connect session")
	}

	log.Info("successfully connected session")

	return that.sendState(conn, msg.Action, session, "")
}

func (that *Server) handleTurn(ctx context.Context, sessionID string, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleTurn", "sessionID", sessionID)

	var payload TurnPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.manager.ApplyMove(ctx, sessionID, payload.Cell)
	if err != nil {
		// invalid clicks are absorbed: restate the board with a reason,
		// nothing mutated
		if reason, ok := invalidMoveReason(err); ok && session != nil {
			log.Debug("move rejected", "cell", payload.Cell, "reason", reason)
			return that.sendState(conn, msg.Action, session, reason)
		}

		log.Error("failed to apply move", "cell", payload.Cell, "error", err)
		return that.sendError(conn, msg.Action, "failed to apply move")
	}

	return that.sendState(conn, msg.Action, session, "")
}

func (that *Server) handleRestart(ctx context.Context, sessionID string, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleRestart", "sessionID", sessionID)

	session, err := that.manager.Restart(ctx, sessionID)
	if err != nil {
		log.Error("failed to restart session", "error", err)
		return that.sendError(conn, msg.Action, "failed to restart")
	}

	return that.sendState(conn, msg.Action, session, "")
}

func (that *Server) handleMode(ctx context.Context, sessionID string, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleMode", "sessionID", sessionID)

	var payload ModePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.manager.SetMode(ctx, sessionID, payload.Mode)
	if err != nil {
		if errors.Is(err, apperror.ErrUnknownMode) && session != nil {
			log.Debug("mode rejected", "mode", payload.Mode)
			return that.sendState(conn, msg.Action, session, apperror.ErrUnknownMode.Error())
		}

		log.Error("failed to set mode", "mode", payload.Mode, "error", err)
		return that.sendError(conn, msg.Action, "failed to set mode")
	}

	return that.sendState(conn, msg.Action, session, "")
}

func (that *Server) handleLeave(ctx context.Context, sessionID string, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleLeave", "sessionID", sessionID)

	if err := that.manager.EndSession(ctx, sessionID); err != nil {
		log.Error("failed to end session", "error", err)
		return that.sendError(conn, msg.Action, "failed to leave")
	}

	log.Info("session ended")

	return that.sendMessage(conn, msg.Action, StatePayload{})
}

// invalidMoveReason maps the recoverable move errors to the short reason the
// UI may show; everything else is a real failure.
func invalidMoveReason(err error) (string, bool) {
	for _, sentinel := range []error{
		apperror.ErrCellOccupied,
		apperror.ErrInvalidCell,
		apperror.ErrGameFinished,
		apperror.ErrNotYourTurn,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}

	return "", false
}
