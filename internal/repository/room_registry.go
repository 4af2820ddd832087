package repository

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

type JoinMode string

const (
	// JoinOrCreate creates unknown rooms on join. Create on an existing id returns that room.
	JoinOrCreate JoinMode = "join-or-create"
	// CreateThenJoin requires an explicit create. Create on an existing id fails.
	CreateThenJoin JoinMode = "create-then-join"
)

// ParseJoinMode returns the mode named by s, ok is false for unknown names.
func ParseJoinMode(s string) (JoinMode, bool) {
	switch m := JoinMode(s); m {
	case JoinOrCreate, CreateThenJoin:
		return m, true
	default:
		return "", false
	}
}

type roomEntry struct {
	mu      sync.Mutex
	room    entity.Room
	evicted bool // set under mu when the entry is dropped, later lockers treat the room as gone
}

// RoomRegistry keeps the active rooms in memory.
// Each room has its own lock, the map lock only guards the map itself and is never held while waiting on a room.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry

	mode JoinMode
	now  func() time.Time
}

func NewRoomRegistry(mode JoinMode, now func() time.Time) *RoomRegistry {
	if now == nil {
		now = time.Now
	}

	if _, ok := ParseJoinMode(string(mode)); !ok {
		mode = JoinOrCreate
	}

	return &RoomRegistry{
		rooms: make(map[string]*roomEntry),
		mode:  mode,
		now:   now,
	}
}

// Create adds a room. In JoinOrCreate mode an existing room is returned as is and created is false.
func (that *RoomRegistry) Create(id string, opts entity.RoomOptions) (entity.Room, bool, error) {
	if id == "" {
		return entity.Room{}, false, fmt.Errorf("%w: empty room id", apperror.ErrBadRequest)
	}

	_, created := that.insert(id, opts)
	if !created && that.mode == CreateThenJoin {
		return entity.Room{}, false, fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyExists, id)
	}

	room, err := that.Get(id)
	if err != nil {
		return entity.Room{}, false, err
	}

	return room, created, nil
}

// Join seats player in room id. In JoinOrCreate mode an unknown id is created with opts first.
func (that *RoomRegistry) Join(id string, player entity.Player, opts entity.RoomOptions) (entity.Room, entity.JoinResult, error) {
	if id == "" {
		return entity.Room{}, entity.JoinResult{}, fmt.Errorf("%w: empty room id", apperror.ErrBadRequest)
	}

	var entry *roomEntry
	if that.mode == JoinOrCreate {
		entry, _ = that.insert(id, opts)
	} else {
		var err error
		if entry, err = that.lookup(id); err != nil {
			return entity.Room{}, entity.JoinResult{}, err
		}
	}

	var result entity.JoinResult
	room, err := that.mutate(entry, id, func(room *entity.Room, now time.Time) (bool, error) {
		var err error
		result, err = room.Join(player, now)
		return false, err
	})
	if err != nil {
		return entity.Room{}, entity.JoinResult{}, err
	}

	return room, result, nil
}

// Move plays connectionID's mark at (row, col) in room id.
func (that *RoomRegistry) Move(id, connectionID string, row, col int) (entity.Room, entity.MoveResult, error) {
	entry, err := that.lookup(id)
	if err != nil {
		return entity.Room{}, entity.MoveResult{}, err
	}

	var result entity.MoveResult
	room, err := that.mutate(entry, id, func(room *entity.Room, now time.Time) (bool, error) {
		var err error
		result, err = room.Move(connectionID, row, col, now)
		return false, err
	})
	if err != nil {
		return entity.Room{}, entity.MoveResult{}, err
	}

	return room, result, nil
}

// Leave frees connectionID's seat. A room without human players is removed right away.
func (that *RoomRegistry) Leave(id, connectionID string) (entity.Room, entity.LeaveResult, error) {
	entry, err := that.lookup(id)
	if err != nil {
		return entity.Room{}, entity.LeaveResult{}, err
	}

	var result entity.LeaveResult
	room, err := that.mutate(entry, id, func(room *entity.Room, now time.Time) (bool, error) {
		var err error
		result, err = room.Leave(connectionID, now)
		return result.Empty, err
	})
	if err != nil {
		return entity.Room{}, entity.LeaveResult{}, err
	}

	return room, result, nil
}

// Get returns a snapshot of room id.
func (that *RoomRegistry) Get(id string) (entity.Room, error) {
	entry, err := that.lookup(id)
	if err != nil {
		return entity.Room{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.evicted {
		return entity.Room{}, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}

	return entry.room.Snapshot(), nil
}

// ListRooms returns the ids present at the time of the call, sorted.
func (that *RoomRegistry) ListRooms() []string {
	that.mu.RLock()
	ids := make([]string, 0, len(that.rooms))
	for id := range that.rooms {
		ids = append(ids, id)
	}
	that.mu.RUnlock()

	slices.Sort(ids)

	return ids
}

// RoomsOf returns the rooms where connectionID holds a seat. Rooms are locked one at a time.
func (that *RoomRegistry) RoomsOf(connectionID string) []string {
	var ids []string
	for _, id := range that.ListRooms() {
		room, err := that.Get(id)
		if err != nil {
			continue
		}

		if _, ok := room.SeatOf(connectionID); ok {
			ids = append(ids, id)
		}
	}

	return ids
}

// EvictIfStale removes room id when it saw no activity for longer than threshold.
// Staleness is checked under the room lock, so a mutation that commits first keeps the room alive.
// beforeRemove, when set, gets the snapshot of the evicted room after the lock is released but while the id
// is still taken, so callers trying the id in that window get RoomNotFound instead of a fresh room.
func (that *RoomRegistry) EvictIfStale(id string, threshold time.Duration, beforeRemove func(room entity.Room)) (entity.Room, bool) {
	entry, err := that.lookup(id)
	if err != nil {
		return entity.Room{}, false
	}

	entry.mu.Lock()
	if entry.evicted || !entry.room.IsStale(that.now(), threshold) {
		entry.mu.Unlock()
		return entity.Room{}, false
	}

	entry.evicted = true
	room := entry.room.Snapshot()
	entry.mu.Unlock()

	defer that.remove(id, entry)

	if beforeRemove != nil {
		beforeRemove(room)
	}

	return room, true
}

// Len returns the number of rooms in the registry.
func (that *RoomRegistry) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms)
}

func (that *RoomRegistry) lookup(id string) (*roomEntry, error) {
	that.mu.RLock()
	entry, ok := that.rooms[id]
	that.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}

	return entry, nil
}

// insert returns the entry of room id, creating it with opts when absent.
func (that *RoomRegistry) insert(id string, opts entity.RoomOptions) (*roomEntry, bool) {
	if entry, err := that.lookup(id); err == nil {
		return entry, false
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if entry, ok := that.rooms[id]; ok {
		return entry, false
	}

	entry := &roomEntry{room: *entity.NewRoom(id, opts, that.now())}
	that.rooms[id] = entry

	return entry, true
}

// remove drops an evicted entry from the map unless id already points to a newer entry.
func (that *RoomRegistry) remove(id string, entry *roomEntry) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.rooms[id] == entry {
		delete(that.rooms, id)
	}
}

// mutate runs fn on a copy of the room under the room lock and commits the copy only when fn succeeds.
// When fn reports drop, the room is evicted in the same critical section.
func (that *RoomRegistry) mutate(entry *roomEntry, id string, fn func(room *entity.Room, now time.Time) (bool, error)) (entity.Room, error) {
	room, drop, err := func() (entity.Room, bool, error) {
		entry.mu.Lock()
		defer entry.mu.Unlock()

		if entry.evicted {
			return entity.Room{}, false, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
		}

		working := entry.room
		drop, err := fn(&working, that.now())
		if err != nil {
			return entity.Room{}, false, err
		}

		entry.room = working
		entry.evicted = drop

		return working.Snapshot(), drop, nil
	}()
	if err != nil {
		return entity.Room{}, err
	}

	if drop {
		that.remove(id, entry)
	}

	return room, nil
}
