package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/usecase"
)

const guestName = "Guest"

func (that *Server) handleCreate(ctx context.Context, caller usecase.Caller, raw json.RawMessage) error {
	var payload createPayload
	if len(raw) > 0 {
		if err := decodePayload(raw, &payload); err != nil {
			return err
		}
	}

	aiMode, err := isAIMode(payload.Mode)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrBadRequest, err)
	}

	that.gateway.OnCreate(ctx, caller, usecase.CreateRequest{
		RoomID:     payload.RoomID,
		AIMode:     aiMode,
		Difficulty: entity.Difficulty(payload.Difficulty),
	})

	return nil
}

func (that *Server) handleJoin(ctx context.Context, caller usecase.Caller, raw json.RawMessage) error {
	var payload joinPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	if payload.RoomID == "" {
		return fmt.Errorf("%w: room_id is required", apperror.ErrBadRequest)
	}

	aiMode, err := isAIMode(payload.Mode)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrBadRequest, err)
	}

	displayName := payload.DisplayName
	if displayName == "" {
		displayName = guestName
	}

	that.gateway.OnJoin(ctx, caller, usecase.JoinRequest{
		RoomID:      payload.RoomID,
		DisplayName: displayName,
		AIMode:      aiMode,
		Difficulty:  entity.Difficulty(payload.Difficulty),
	})

	return nil
}

func (that *Server) handleMove(ctx context.Context, caller usecase.Caller, raw json.RawMessage) error {
	var payload movePayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	if payload.RoomID == "" || payload.Row == nil || payload.Col == nil {
		return fmt.Errorf("%w: room_id, row and col are required", apperror.ErrBadRequest)
	}

	that.gateway.OnMove(ctx, caller, usecase.MoveRequest{
		RoomID: payload.RoomID,
		Row:    *payload.Row,
		Col:    *payload.Col,
	})

	return nil
}

func (that *Server) handleLeave(ctx context.Context, caller usecase.Caller, raw json.RawMessage) error {
	var payload leavePayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}

	if payload.RoomID == "" {
		return fmt.Errorf("%w: room_id is required", apperror.ErrBadRequest)
	}

	that.gateway.OnLeave(ctx, caller, payload.RoomID)

	return nil
}
