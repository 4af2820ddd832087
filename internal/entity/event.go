package entity

import "time"

type EventType string

const (
	EventRoomState     EventType = "room:state"
	EventGameStarted   EventType = "game:started"
	EventRoomAbandoned EventType = "room:abandoned"
	EventRoomLeft      EventType = "room:left"
	EventError         EventType = "error"
)

// Event is one outbound message. The transport encodes Type as the action and Payload as the body.
type Event struct {
	Type    EventType
	Payload any
}

// DrawWinner is the winner value of a drawn game.
const DrawWinner = "draw"

type PlayerView struct {
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id,omitempty"`
	Mark        string `json:"mark"`
	IsAI        bool   `json:"is_ai,omitempty"`
}

type RoomState struct {
	RoomID      string         `json:"room_id"`
	Players     [2]*PlayerView `json:"players"`
	Board       string         `json:"board"`
	CurrentTurn string         `json:"current_turn"`
	Status      Status         `json:"status"`
	Winner      string         `json:"winner,omitempty"`
	MoveCount   int            `json:"move_count"`
	AIMode      bool           `json:"ai_mode"`
	Difficulty  Difficulty     `json:"difficulty,omitempty"`
}

type RoomRef struct {
	RoomID string `json:"room_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRoomState builds the wire view of a room snapshot.
func NewRoomState(room Room) RoomState {
	state := RoomState{
		RoomID:      room.ID,
		Board:       room.Board.String(),
		CurrentTurn: room.Turn.String(),
		Status:      room.Status,
		Winner:      room.Winner(),
		MoveCount:   room.MoveCount,
		AIMode:      room.AIMode,
	}

	if room.AIMode {
		state.Difficulty = room.AIDifficulty
	}

	for i, seat := range room.Seats {
		if p, ok := seat.Player(); ok {
			state.Players[i] = &PlayerView{
				DisplayName: p.DisplayName,
				UserID:      p.UserID,
				Mark:        SeatMarks[i].String(),
				IsAI:        p.IsAI,
			}
		}
	}

	return state
}

func RoomStateEvent(room Room) Event {
	return Event{Type: EventRoomState, Payload: NewRoomState(room)}
}

func GameStartedEvent(roomID string) Event {
	return Event{Type: EventGameStarted, Payload: RoomRef{RoomID: roomID}}
}

func RoomAbandonedEvent(roomID string) Event {
	return Event{Type: EventRoomAbandoned, Payload: RoomRef{RoomID: roomID}}
}

func RoomLeftEvent(roomID string) Event {
	return Event{Type: EventRoomLeft, Payload: RoomRef{RoomID: roomID}}
}

func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Code: code, Message: message}}
}

// RoomSummary is the journal record of a room that reached a terminal state.
type RoomSummary struct {
	RoomID     string       `json:"room_id"`
	Status     Status       `json:"status"`
	Winner     string       `json:"winner,omitempty"`
	Board      string       `json:"board"`
	MoveCount  int          `json:"move_count"`
	AIMode     bool         `json:"ai_mode"`
	Difficulty Difficulty   `json:"difficulty,omitempty"`
	Players    []PlayerView `json:"players"`
	FinishedAt time.Time    `json:"finished_at"`
}

func NewRoomSummary(room Room) RoomSummary {
	state := NewRoomState(room)

	summary := RoomSummary{
		RoomID:     room.ID,
		Status:     room.Status,
		Winner:     state.Winner,
		Board:      state.Board,
		MoveCount:  room.MoveCount,
		AIMode:     room.AIMode,
		Difficulty: state.Difficulty,
		Players:    make([]PlayerView, 0, len(state.Players)),
		FinishedAt: room.LastActivity,
	}

	for _, p := range state.Players {
		if p != nil {
			summary.Players = append(summary.Players, *p)
		}
	}

	return summary
}
