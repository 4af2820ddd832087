package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

// Caller identifies the connection a call arrived on. UserID is empty for guests.
type Caller struct {
	ConnectionID string
	UserID       string
}

type CreateRequest struct {
	RoomID     string
	AIMode     bool
	Difficulty entity.Difficulty
}

type JoinRequest struct {
	RoomID      string
	DisplayName string
	AIMode      bool
	Difficulty  entity.Difficulty
}

type MoveRequest struct {
	RoomID string
	Row    int
	Col    int
}

type roomRegistry interface {
	Create(id string, opts entity.RoomOptions) (entity.Room, bool, error)
	Join(id string, player entity.Player, opts entity.RoomOptions) (entity.Room, entity.JoinResult, error)
	Move(id, connectionID string, row, col int) (entity.Room, entity.MoveResult, error)
	Leave(id, connectionID string) (entity.Room, entity.LeaveResult, error)
	RoomsOf(connectionID string) []string
}

type moveSelector interface {
	SelectMove(board entity.Board, aiMark entity.Mark, difficulty entity.Difficulty) (entity.Cell, error)
}

// Broadcaster delivers events to room groups and single connections.
type Broadcaster interface {
	AddToGroup(group, connectionID string)
	RemoveFromGroup(group, connectionID string)
	SendToGroup(group string, event entity.Event)
	SendToConnection(connectionID string, event entity.Event)
}

type resultJournal interface {
	Record(ctx context.Context, summary entity.RoomSummary) error
}

type GatewayOption func(*SessionGateway)

// WithJournal records every room that finishes or is abandoned.
func WithJournal(journal resultJournal) GatewayOption {
	return func(that *SessionGateway) {
		that.journal = journal
	}
}

// WithRoomIDGenerator replaces the uuid generator used for rooms created without an id.
func WithRoomIDGenerator(generate func() string) GatewayOption {
	return func(that *SessionGateway) {
		that.newRoomID = generate
	}
}

// SessionGateway turns connection calls into registry operations and room events.
// It keeps no per-connection state, the caller is passed to every handler.
type SessionGateway struct {
	logger      *slog.Logger
	registry    roomRegistry
	selector    moveSelector
	broadcaster Broadcaster
	journal     resultJournal

	defaultDifficulty entity.Difficulty
	newRoomID         func() string
}

func NewSessionGateway(
	logger *slog.Logger,
	registry roomRegistry,
	selector moveSelector,
	broadcaster Broadcaster,
	defaultDifficulty entity.Difficulty,
	opts ...GatewayOption,
) *SessionGateway {
	gateway := &SessionGateway{
		logger:            logger.With("component", "session_gateway"),
		registry:          registry,
		selector:          selector,
		broadcaster:       broadcaster,
		defaultDifficulty: defaultDifficulty,
		newRoomID:         uuid.NewString,
	}

	for _, opt := range opts {
		opt(gateway)
	}

	return gateway
}

// OnCreate creates a room and sends its state to the caller.
func (that *SessionGateway) OnCreate(ctx context.Context, caller Caller, req CreateRequest) {
	log := that.logger.With("method", "OnCreate", "connectionID", caller.ConnectionID)
	defer that.recoverTo(log, caller)

	roomID := req.RoomID
	if roomID == "" {
		roomID = that.newRoomID()
	}

	room, created, err := that.registry.Create(roomID, that.roomOptions(req.AIMode, req.Difficulty))
	if err != nil {
		that.fail(log, caller, fmt.Errorf("failed to create room %s: %w", roomID, err))
		return
	}

	log.Info("room created", "roomID", roomID, "created", created, "aiMode", room.AIMode)

	that.broadcaster.SendToConnection(caller.ConnectionID, entity.RoomStateEvent(room))
}

// OnJoin seats the caller and announces the new state to the room.
func (that *SessionGateway) OnJoin(ctx context.Context, caller Caller, req JoinRequest) {
	log := that.logger.With("method", "OnJoin", "connectionID", caller.ConnectionID, "roomID", req.RoomID)
	defer that.recoverTo(log, caller)

	player := entity.Player{
		ConnectionID: caller.ConnectionID,
		UserID:       caller.UserID,
		DisplayName:  req.DisplayName,
	}

	room, result, err := that.registry.Join(req.RoomID, player, that.roomOptions(req.AIMode, req.Difficulty))
	if err != nil {
		that.fail(log, caller, fmt.Errorf("failed to join room: %w", err))
		return
	}

	log.Info("player joined", "mark", result.Mark.String(), "started", result.Started)

	that.broadcaster.AddToGroup(req.RoomID, caller.ConnectionID)
	that.broadcaster.SendToGroup(req.RoomID, entity.RoomStateEvent(room))

	if result.Started {
		that.broadcaster.SendToGroup(req.RoomID, entity.GameStartedEvent(req.RoomID))
	}
}

// OnMove plays the caller's move and, in computer rooms, the computer's reply before returning.
func (that *SessionGateway) OnMove(ctx context.Context, caller Caller, req MoveRequest) {
	log := that.logger.With("method", "OnMove", "connectionID", caller.ConnectionID, "roomID", req.RoomID)
	defer that.recoverTo(log, caller)

	room, result, err := that.registry.Move(req.RoomID, caller.ConnectionID, req.Row, req.Col)
	if err != nil {
		that.fail(log, caller, fmt.Errorf("failed to make move: %w", err))
		return
	}

	log.Debug("move accepted", "mark", result.Mark.String(), "row", req.Row, "col", req.Col)

	that.broadcaster.SendToGroup(req.RoomID, entity.RoomStateEvent(room))

	if result.Finished {
		that.record(ctx, log, room)
		return
	}

	if room.IsAITurn() {
		that.playAI(ctx, log, caller, room)
	}
}

// OnLeave frees the caller's seat and acknowledges it.
func (that *SessionGateway) OnLeave(ctx context.Context, caller Caller, roomID string) {
	log := that.logger.With("method", "OnLeave", "connectionID", caller.ConnectionID, "roomID", roomID)
	defer that.recoverTo(log, caller)

	if err := that.leave(ctx, log, caller, roomID); err != nil {
		that.fail(log, caller, fmt.Errorf("failed to leave room: %w", err))
		return
	}

	that.broadcaster.SendToConnection(caller.ConnectionID, entity.RoomLeftEvent(roomID))
}

// OnDisconnected leaves every room the caller was seated in.
func (that *SessionGateway) OnDisconnected(ctx context.Context, caller Caller) {
	log := that.logger.With("method", "OnDisconnected", "connectionID", caller.ConnectionID)

	for _, roomID := range that.registry.RoomsOf(caller.ConnectionID) {
		func() {
			defer that.recoverTo(log, Caller{})

			if err := that.leave(ctx, log.With("roomID", roomID), caller, roomID); err != nil {
				// the room may have been evicted or left in the meantime
				log.Info("failed to leave room on disconnect", "roomID", roomID, "error", err)
			}
		}()
	}
}

func (that *SessionGateway) leave(ctx context.Context, log *slog.Logger, caller Caller, roomID string) error {
	room, result, err := that.registry.Leave(roomID, caller.ConnectionID)
	if err != nil {
		return err
	}

	log.Info("player left", "abandoned", result.Abandoned, "empty", result.Empty)

	if result.Abandoned {
		that.broadcaster.SendToGroup(roomID, entity.RoomAbandonedEvent(roomID))
		that.record(ctx, log, room)
	} else if !result.Empty {
		that.broadcaster.SendToGroup(roomID, entity.RoomStateEvent(room))
	}

	that.broadcaster.RemoveFromGroup(roomID, caller.ConnectionID)

	return nil
}

// playAI selects and applies the computer's move on room. A selector failure is reported to caller,
// whose move is already on the board.
func (that *SessionGateway) playAI(ctx context.Context, log *slog.Logger, caller Caller, room entity.Room) {
	log = log.With("difficulty", room.AIDifficulty)

	cell, err := that.selector.SelectMove(room.Board, room.Turn, room.AIDifficulty)
	if err != nil {
		log.Error("failed to select computer move", "error", err)
		that.broadcaster.SendToConnection(caller.ConnectionID, entity.ErrorEvent(string(apperror.CodeInternal), "internal error"))
		return
	}

	room, result, err := that.registry.Move(room.ID, entity.AIConnectionID, cell.Row, cell.Col)
	if err != nil {
		// a leave or an eviction got in first
		log.Warn("computer move rejected", "error", err)
		return
	}

	log.Debug("computer moved", "row", cell.Row, "col", cell.Col)

	that.broadcaster.SendToGroup(room.ID, entity.RoomStateEvent(room))

	if result.Finished {
		that.record(ctx, log, room)
	}
}

func (that *SessionGateway) record(ctx context.Context, log *slog.Logger, room entity.Room) {
	if that.journal == nil {
		return
	}

	if err := that.journal.Record(ctx, entity.NewRoomSummary(room)); err != nil {
		log.Error("failed to record room result", "error", err)
	}
}

// fail reports err to the caller only. Validation errors carry their message, anything else is generic.
func (that *SessionGateway) fail(log *slog.Logger, caller Caller, err error) {
	code := apperror.CodeOf(err)

	message := err.Error()
	if code == apperror.CodeInternal {
		log.Error("internal error", "error", err)
		message = "internal error"
	} else {
		log.Info("request rejected", "code", code, "error", err)
	}

	that.broadcaster.SendToConnection(caller.ConnectionID, entity.ErrorEvent(string(code), message))
}

// recoverTo turns a panic into an internal error event. It must be deferred directly.
func (that *SessionGateway) recoverTo(log *slog.Logger, caller Caller) {
	rec := recover()
	if rec == nil {
		return
	}

	log.Error("recovered from panic", "panic", rec)

	if caller.ConnectionID != "" {
		that.broadcaster.SendToConnection(caller.ConnectionID, entity.ErrorEvent(string(apperror.CodeInternal), "internal error"))
	}
}

func (that *SessionGateway) roomOptions(aiMode bool, difficulty entity.Difficulty) entity.RoomOptions {
	if !aiMode {
		return entity.RoomOptions{}
	}

	if _, ok := entity.ParseDifficulty(string(difficulty)); !ok {
		difficulty = that.defaultDifficulty
	}

	return entity.RoomOptions{AIMode: true, AIDifficulty: difficulty}
}
