package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/usecase"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

type sessionGateway interface {
	OnCreate(ctx context.Context, caller usecase.Caller, req usecase.CreateRequest)
	OnJoin(ctx context.Context, caller usecase.Caller, req usecase.JoinRequest)
	OnMove(ctx context.Context, caller usecase.Caller, req usecase.MoveRequest)
	OnLeave(ctx context.Context, caller usecase.Caller, roomID string)
	OnDisconnected(ctx context.Context, caller usecase.Caller)
}

type handlerFunc func(ctx context.Context, caller usecase.Caller, payload json.RawMessage) error

// Server upgrades requests on /ws and feeds their messages to the gateway.
type Server struct {
	logger   *slog.Logger
	hub      *Hub
	gateway  sessionGateway
	identity *Identity
	upgrader websocket.Upgrader

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, hub *Hub, gateway sessionGateway, identity *Identity) *Server {
	server := &Server{
		logger:   logger.With("component", "websocket"),
		hub:      hub,
		gateway:  gateway,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionCreate] = server.handleCreate
	server.handlers[actionJoin] = server.handleJoin
	server.handlers[actionMove] = server.handleMove
	server.handlers[actionLeave] = server.handleLeave

	return server
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	userID, err := that.identity.UserID(req)
	if err != nil && !errors.Is(err, ErrNoToken) {
		log.Info("invalid token, continuing as guest", "error", err)
	}

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}

	that.hub.register(conn)

	log.Info("WebSocket connection established", "connectionID", conn.id, "userID", userID)

	go that.writePump(ws, conn)
	that.readPump(context.WithoutCancel(req.Context()), ws, conn)
}

// Close drops every live connection.
func (that *Server) Close() {
	that.hub.closeAll()
}

func (that *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *connection) {
	log := that.logger.With("method", "readPump", "connectionID", conn.id)
	caller := usecase.Caller{ConnectionID: conn.id, UserID: conn.userID}

	defer func() {
		that.hub.unregister(conn)
		_ = ws.Close()

		that.gateway.OnDisconnected(ctx, caller)
		log.Info("WebSocket connection closed")
	}()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error("failed to set read deadline", "error", err)
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected close", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err = that.dispatch(ctx, caller, data); err != nil {
			log.Info("bad request", "error", err)
			that.hub.SendToConnection(conn.id, entity.ErrorEvent(string(apperror.CodeOf(err)), err.Error()))
		}
	}
}

func (that *Server) writePump(ws *websocket.Conn, conn *connection) {
	log := that.logger.With("method", "writePump", "connectionID", conn.id)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Info("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))

			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one message and runs its handler. Only malformed input is returned as an error.
func (that *Server) dispatch(ctx context.Context, caller usecase.Caller, data []byte) error {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return fmt.Errorf("%w: malformed message: %w", apperror.ErrBadRequest, err)
	}

	handler, ok := that.handlers[message.Action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", apperror.ErrBadRequest, message.Action)
	}

	return handler(ctx, caller, message.Payload)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", apperror.ErrBadRequest)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %w", apperror.ErrBadRequest, err)
	}

	return nil
}
