package websocket

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const sendBufferSize = 256

type connection struct {
	id        string
	userID    string
	send      chan []byte
	closeOnce sync.Once

	groups map[string]struct{} // guarded by the hub lock
}

func (that *connection) close() {
	that.closeOnce.Do(func() {
		close(that.send)
	})
}

// Hub tracks live connections and the room groups they belong to.
// Sends never block, a connection whose buffer is full loses the message.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*connection
	groups      map[string]map[string]struct{} // group -> connection ids
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger.With("component", "hub"),
		connections: make(map[string]*connection),
		groups:      make(map[string]map[string]struct{}),
	}
}

func (that *Hub) register(conn *connection) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.connections[conn.id] = conn
}

// unregister removes the connection from every group and closes its send buffer.
func (that *Hub) unregister(conn *connection) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.connections[conn.id] != conn {
		return
	}

	delete(that.connections, conn.id)

	for group := range conn.groups {
		that.leave(group, conn)
	}

	conn.close()
}

func (that *Hub) AddToGroup(group, connectionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	conn, ok := that.connections[connectionID]
	if !ok {
		return
	}

	members, ok := that.groups[group]
	if !ok {
		members = make(map[string]struct{})
		that.groups[group] = members
	}

	members[connectionID] = struct{}{}

	if conn.groups == nil {
		conn.groups = make(map[string]struct{})
	}
	conn.groups[group] = struct{}{}
}

func (that *Hub) RemoveFromGroup(group, connectionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if conn, ok := that.connections[connectionID]; ok {
		that.leave(group, conn)
	}
}

// leave must run under the hub write lock.
func (that *Hub) leave(group string, conn *connection) {
	delete(conn.groups, group)

	members, ok := that.groups[group]
	if !ok {
		return
	}

	delete(members, conn.id)
	if len(members) == 0 {
		delete(that.groups, group)
	}
}

// DropGroup forgets a group, its members stay connected.
func (that *Hub) DropGroup(group string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for connectionID := range that.groups[group] {
		if conn, ok := that.connections[connectionID]; ok {
			delete(conn.groups, group)
		}
	}

	delete(that.groups, group)
}

func (that *Hub) SendToGroup(group string, event entity.Event) {
	log := that.logger.With("method", "SendToGroup", "group", group)

	data, err := encodeEvent(event)
	if err != nil {
		log.Error("failed to encode event", "event", event.Type, "error", err)
		return
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	for connectionID := range that.groups[group] {
		that.deliver(log, that.connections[connectionID], data)
	}
}

func (that *Hub) SendToConnection(connectionID string, event entity.Event) {
	log := that.logger.With("method", "SendToConnection", "connectionID", connectionID)

	data, err := encodeEvent(event)
	if err != nil {
		log.Error("failed to encode event", "event", event.Type, "error", err)
		return
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	that.deliver(log, that.connections[connectionID], data)
}

// deliver must run under the hub lock, so the buffer cannot be closed underneath it.
func (that *Hub) deliver(log *slog.Logger, conn *connection, data []byte) {
	if conn == nil {
		return
	}

	select {
	case conn.send <- data:
	default:
		log.Warn("send buffer full, message dropped", "connectionID", conn.id)
	}
}

// Connections returns the number of live connections.
func (that *Hub) Connections() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.connections)
}

// closeAll closes every send buffer, the write pumps then close their sockets.
func (that *Hub) closeAll() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for id, conn := range that.connections {
		conn.close()
		delete(that.connections, id)
	}

	that.groups = make(map[string]map[string]struct{})
}
