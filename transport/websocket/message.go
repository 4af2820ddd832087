package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const (
	actionCreate = "room:create"
	actionJoin   = "room:join"
	actionMove   = "room:move"
	actionLeave  = "room:leave"
)

const (
	modePvP = "pvp"
	modeAI  = "ai"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createPayload struct {
	RoomID     string `json:"room_id"`
	Mode       string `json:"mode"`
	Difficulty string `json:"difficulty"`
}

type joinPayload struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	Mode        string `json:"mode"`
	Difficulty  string `json:"difficulty"`
}

type movePayload struct {
	RoomID string `json:"room_id"`
	Row    *int   `json:"row"`
	Col    *int   `json:"col"`
}

type leavePayload struct {
	RoomID string `json:"room_id"`
}

// isAIMode reports whether mode asks for a computer opponent. Empty means pvp.
func isAIMode(mode string) (bool, error) {
	switch mode {
	case "", modePvP:
		return false, nil
	case modeAI:
		return true, nil
	default:
		return false, fmt.Errorf("unknown mode %q", mode)
	}
}

func encodeEvent(event entity.Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Message{Action: string(event.Type), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}
