package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/service"
)

type delivery struct {
	connectionID string
	event        entity.Event
}

// recordingBroadcaster keeps groups in memory and records what every connection received.
type recordingBroadcaster struct {
	mu         sync.Mutex
	groups     map[string]map[string]bool
	deliveries []delivery
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{groups: make(map[string]map[string]bool)}
}

func (that *recordingBroadcaster) AddToGroup(group, connectionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.groups[group] == nil {
		that.groups[group] = make(map[string]bool)
	}
	that.groups[group][connectionID] = true
}

func (that *recordingBroadcaster) RemoveFromGroup(group, connectionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.groups[group], connectionID)
}

func (that *recordingBroadcaster) SendToGroup(group string, event entity.Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for connectionID := range that.groups[group] {
		that.deliveries = append(that.deliveries, delivery{connectionID: connectionID, event: event})
	}
}

func (that *recordingBroadcaster) SendToConnection(connectionID string, event entity.Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.deliveries = append(that.deliveries, delivery{connectionID: connectionID, event: event})
}

// received returns the events delivered to connectionID in order.
func (that *recordingBroadcaster) received(connectionID string) []entity.Event {
	that.mu.Lock()
	defer that.mu.Unlock()

	var events []entity.Event
	for _, d := range that.deliveries {
		if d.connectionID == connectionID {
			events = append(events, d.event)
		}
	}

	return events
}

func (that *recordingBroadcaster) count(connectionID string, eventType entity.EventType) int {
	n := 0
	for _, event := range that.received(connectionID) {
		if event.Type == eventType {
			n++
		}
	}

	return n
}

func (that *recordingBroadcaster) reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.deliveries = nil
}

type memoryJournal struct {
	mu        sync.Mutex
	summaries []entity.RoomSummary
	err       error
}

func (that *memoryJournal) Record(_ context.Context, summary entity.RoomSummary) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.summaries = append(that.summaries, summary)

	return that.err
}

type failingSelector struct{}

func (failingSelector) SelectMove(entity.Board, entity.Mark, entity.Difficulty) (entity.Cell, error) {
	return entity.Cell{}, errors.New("no move available")
}

type panickingSelector struct{}

func (panickingSelector) SelectMove(entity.Board, entity.Mark, entity.Difficulty) (entity.Cell, error) {
	panic("selector exploded")
}

type fixture struct {
	gateway     *SessionGateway
	registry    *repository.RoomRegistry
	broadcaster *recordingBroadcaster
	journal     *memoryJournal
}

func newFixture(t *testing.T, mode repository.JoinMode, selector moveSelector) *fixture {
	t.Helper()

	if selector == nil {
		selector = service.NewBotService(rand.New(rand.NewPCG(1, 2)), entity.HardDifficulty)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	registry := repository.NewRoomRegistry(mode, nil)
	broadcaster := newRecordingBroadcaster()
	journal := &memoryJournal{}

	gateway := NewSessionGateway(logger, registry, selector, broadcaster, entity.HardDifficulty,
		WithJournal(journal),
		WithRoomIDGenerator(func() string { return "generated" }),
	)

	return &fixture{
		gateway:     gateway,
		registry:    registry,
		broadcaster: broadcaster,
		journal:     journal,
	}
}

var (
	alice = Caller{ConnectionID: "conn-a", UserID: "user-a"}
	bob   = Caller{ConnectionID: "conn-b"}
)

func (that *fixture) startPvP(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	that.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-1", DisplayName: "Alice"})
	that.gateway.OnJoin(ctx, bob, JoinRequest{RoomID: "room-1", DisplayName: "Bob"})
	that.broadcaster.reset()
}

func lastState(t *testing.T, events []entity.Event) entity.RoomState {
	t.Helper()

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == entity.EventRoomState {
			state, ok := events[i].Payload.(entity.RoomState)
			require.True(t, ok)
			return state
		}
	}

	t.Fatal("no room state received")
	return entity.RoomState{}
}

func errorCode(t *testing.T, event entity.Event) string {
	t.Helper()

	require.Equal(t, entity.EventError, event.Type)
	payload, ok := event.Payload.(entity.ErrorPayload)
	require.True(t, ok)

	return payload.Code
}

func TestSessionGateway_OnJoin(t *testing.T) {
	t.Run("Second join starts the game for both", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		ctx := context.Background()

		// When: two players join the same room
		f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-1", DisplayName: "Alice"})
		f.gateway.OnJoin(ctx, bob, JoinRequest{RoomID: "room-1", DisplayName: "Bob"})

		// Then: both see the started game exactly once
		for _, conn := range []string{alice.ConnectionID, bob.ConnectionID} {
			assert.Equal(t, 1, f.broadcaster.count(conn, entity.EventGameStarted))
		}

		state := lastState(t, f.broadcaster.received(bob.ConnectionID))
		assert.Equal(t, entity.StatusInProgress, state.Status)
		assert.Equal(t, "X", state.Players[0].Mark)
		assert.Equal(t, "user-a", state.Players[0].UserID)
		assert.Equal(t, "O", state.Players[1].Mark)
		assert.Equal(t, "         ", state.Board)
	})

	t.Run("Failure goes to the caller only", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)
		carol := Caller{ConnectionID: "conn-c"}

		f.gateway.OnJoin(context.Background(), carol, JoinRequest{RoomID: "room-1", DisplayName: "Carol"})

		events := f.broadcaster.received(carol.ConnectionID)
		require.Len(t, events, 1)
		assert.Equal(t, string(apperror.CodeRoomFull), errorCode(t, events[0]))
		assert.Empty(t, f.broadcaster.received(alice.ConnectionID))
	})

	t.Run("Unknown room in create-then-join mode", func(t *testing.T) {
		f := newFixture(t, repository.CreateThenJoin, nil)

		f.gateway.OnJoin(context.Background(), alice, JoinRequest{RoomID: "nope"})

		events := f.broadcaster.received(alice.ConnectionID)
		require.Len(t, events, 1)
		assert.Equal(t, string(apperror.CodeRoomNotFound), errorCode(t, events[0]))
	})
}

func TestSessionGateway_OnCreate(t *testing.T) {
	t.Run("Generates an id and applies the default difficulty", func(t *testing.T) {
		f := newFixture(t, repository.CreateThenJoin, nil)

		f.gateway.OnCreate(context.Background(), alice, CreateRequest{AIMode: true, Difficulty: "unknown"})

		state := lastState(t, f.broadcaster.received(alice.ConnectionID))
		assert.Equal(t, "generated", state.RoomID)
		assert.True(t, state.AIMode)
		assert.Equal(t, entity.HardDifficulty, state.Difficulty)
		assert.True(t, state.Players[1].IsAI)
	})

	t.Run("Duplicate id in create-then-join mode", func(t *testing.T) {
		f := newFixture(t, repository.CreateThenJoin, nil)
		ctx := context.Background()

		f.gateway.OnCreate(ctx, alice, CreateRequest{RoomID: "room-1"})
		f.gateway.OnCreate(ctx, bob, CreateRequest{RoomID: "room-1"})

		events := f.broadcaster.received(bob.ConnectionID)
		require.Len(t, events, 1)
		assert.Equal(t, string(apperror.CodeRoomAlreadyExists), errorCode(t, events[0]))
	})
}

func TestSessionGateway_OnMove(t *testing.T) {
	t.Run("Move is broadcast to the room", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)

		f.gateway.OnMove(context.Background(), alice, MoveRequest{RoomID: "room-1", Row: 1, Col: 1})

		for _, conn := range []string{alice.ConnectionID, bob.ConnectionID} {
			state := lastState(t, f.broadcaster.received(conn))
			assert.Equal(t, "    X    ", state.Board)
			assert.Equal(t, "O", state.CurrentTurn)
			assert.Equal(t, 1, state.MoveCount)
		}
	})

	t.Run("Rejected move reaches only the caller", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)

		f.gateway.OnMove(context.Background(), bob, MoveRequest{RoomID: "room-1", Row: 0, Col: 0})

		events := f.broadcaster.received(bob.ConnectionID)
		require.Len(t, events, 1)
		assert.Equal(t, string(apperror.CodeNotYourTurn), errorCode(t, events[0]))
		assert.Empty(t, f.broadcaster.received(alice.ConnectionID))
	})

	t.Run("Computer replies before the call returns", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		ctx := context.Background()
		f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-ai", AIMode: true, Difficulty: entity.HardDifficulty})
		f.broadcaster.reset()

		// When: the human opens in the center
		f.gateway.OnMove(ctx, alice, MoveRequest{RoomID: "room-ai", Row: 1, Col: 1})

		// Then: the human sees their move, then the computer's corner reply
		events := f.broadcaster.received(alice.ConnectionID)
		require.Len(t, events, 2)

		human, ok := events[0].Payload.(entity.RoomState)
		require.True(t, ok)
		assert.Equal(t, "    X    ", human.Board)
		assert.Equal(t, "O", human.CurrentTurn)

		computer, ok := events[1].Payload.(entity.RoomState)
		require.True(t, ok)
		assert.Equal(t, "O   X    ", computer.Board)
		assert.Equal(t, "X", computer.CurrentTurn)
		assert.Equal(t, 2, computer.MoveCount)
	})

	t.Run("Finished game is journaled once", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)
		ctx := context.Background()

		moves := []struct {
			caller   Caller
			row, col int
		}{
			{alice, 0, 0}, {bob, 1, 0}, {alice, 0, 1}, {bob, 1, 1}, {alice, 0, 2},
		}
		for _, m := range moves {
			f.gateway.OnMove(ctx, m.caller, MoveRequest{RoomID: "room-1", Row: m.row, Col: m.col})
		}

		state := lastState(t, f.broadcaster.received(bob.ConnectionID))
		assert.Equal(t, entity.StatusFinished, state.Status)
		assert.Equal(t, "X", state.Winner)

		require.Len(t, f.journal.summaries, 1)
		assert.Equal(t, "room-1", f.journal.summaries[0].RoomID)
		assert.Equal(t, "X", f.journal.summaries[0].Winner)
	})

	t.Run("Journal failures are not surfaced", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.journal.err = errors.New("redis down")
		f.startPvP(t)
		ctx := context.Background()

		f.gateway.OnLeave(ctx, alice, "room-1")

		assert.Zero(t, f.broadcaster.count(alice.ConnectionID, entity.EventError))
		assert.Len(t, f.journal.summaries, 1)
	})

	t.Run("Selector failure is reported to the mover", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, failingSelector{})
		ctx := context.Background()
		f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-ai", AIMode: true})
		f.broadcaster.reset()

		// When: the human moves and the computer cannot answer
		f.gateway.OnMove(ctx, alice, MoveRequest{RoomID: "room-ai", Row: 1, Col: 1})

		// Then: the human move is broadcast, followed by an internal error
		events := f.broadcaster.received(alice.ConnectionID)
		require.Len(t, events, 2)
		assert.Equal(t, entity.EventRoomState, events[0].Type)
		assert.Equal(t, string(apperror.CodeInternal), errorCode(t, events[1]))

		room, err := f.registry.Get("room-ai")
		require.NoError(t, err)
		assert.Equal(t, 1, room.MoveCount)
	})

	t.Run("Panics are reported as internal errors", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, panickingSelector{})
		ctx := context.Background()
		f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-ai", AIMode: true})
		f.broadcaster.reset()

		require.NotPanics(t, func() {
			f.gateway.OnMove(ctx, alice, MoveRequest{RoomID: "room-ai", Row: 0, Col: 0})
		})

		events := f.broadcaster.received(alice.ConnectionID)
		require.NotEmpty(t, events)
		assert.Equal(t, string(apperror.CodeInternal), errorCode(t, events[len(events)-1]))

		// the human move committed, the room stays usable
		room, err := f.registry.Get("room-ai")
		require.NoError(t, err)
		assert.Equal(t, 1, room.MoveCount)
	})
}

func TestSessionGateway_OnLeave(t *testing.T) {
	t.Run("Remaining player gets exactly one abandonment", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)
		ctx := context.Background()

		// When: alice leaves mid-game, then bob leaves too
		f.gateway.OnLeave(ctx, alice, "room-1")
		f.gateway.OnLeave(ctx, bob, "room-1")

		// Then: bob was told once, both got their ack, and the room is gone
		assert.Equal(t, 1, f.broadcaster.count(bob.ConnectionID, entity.EventRoomAbandoned))
		assert.Equal(t, 1, f.broadcaster.count(alice.ConnectionID, entity.EventRoomLeft))
		assert.Equal(t, 1, f.broadcaster.count(bob.ConnectionID, entity.EventRoomLeft))
		assert.Zero(t, f.registry.Len())

		require.Len(t, f.journal.summaries, 1)
		assert.Equal(t, entity.StatusAbandoned, f.journal.summaries[0].Status)
	})

	t.Run("Leaving a room the caller is not in", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		f.startPvP(t)
		carol := Caller{ConnectionID: "conn-c"}

		f.gateway.OnLeave(context.Background(), carol, "room-1")

		events := f.broadcaster.received(carol.ConnectionID)
		require.Len(t, events, 1)
		assert.Equal(t, string(apperror.CodeBadRequest), errorCode(t, events[0]))
	})

	t.Run("Leaving a waiting room removes it", func(t *testing.T) {
		f := newFixture(t, repository.JoinOrCreate, nil)
		ctx := context.Background()
		f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-1", DisplayName: "Alice"})
		f.gateway.OnLeave(ctx, alice, "room-1")

		assert.Zero(t, f.registry.Len())
		assert.Zero(t, f.broadcaster.count(alice.ConnectionID, entity.EventRoomAbandoned))
	})
}

func TestSessionGateway_OnDisconnected(t *testing.T) {
	f := newFixture(t, repository.JoinOrCreate, nil)
	ctx := context.Background()
	f.startPvP(t)
	f.gateway.OnJoin(ctx, alice, JoinRequest{RoomID: "room-2"})
	f.broadcaster.reset()

	// When: alice's connection drops
	f.gateway.OnDisconnected(ctx, alice)

	// Then: bob's game is abandoned once, alice's lonely room is gone, nobody got an ack
	assert.Equal(t, 1, f.broadcaster.count(bob.ConnectionID, entity.EventRoomAbandoned))
	assert.Zero(t, f.broadcaster.count(alice.ConnectionID, entity.EventRoomLeft))
	assert.Equal(t, []string{"room-1"}, f.registry.ListRooms())
}

func TestSessionGateway_ConcurrentJoins(t *testing.T) {
	f := newFixture(t, repository.JoinOrCreate, nil)
	ctx := context.Background()

	callers := []Caller{alice, bob, {ConnectionID: "conn-c"}, {ConnectionID: "conn-d"}}

	var wg sync.WaitGroup
	for _, caller := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.gateway.OnJoin(ctx, caller, JoinRequest{RoomID: "room-1"})
		}()
	}
	wg.Wait()

	full := 0
	for _, caller := range callers {
		full += f.broadcaster.count(caller.ConnectionID, entity.EventError)
	}

	assert.Equal(t, 2, full)

	room, err := f.registry.Get("room-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProgress, room.Status)
}
