package entity

// AIConnectionID is the connection id of the computer seat. Real connections use uuids, so it never collides.
const AIConnectionID = "ai"

type Player struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id,omitempty"` // empty for guests
	DisplayName  string `json:"display_name"`
	Mark         Mark   `json:"-"`
	IsAI         bool   `json:"is_ai,omitempty"`
}

// NewAIPlayer returns the computer opponent's player record.
func NewAIPlayer(mark Mark) Player {
	return Player{
		ConnectionID: AIConnectionID,
		DisplayName:  "Computer",
		Mark:         mark,
		IsAI:         true,
	}
}

// Seat is either empty or occupied by exactly one player.
type Seat struct {
	occupied bool
	player   Player
}

func EmptySeat() Seat {
	return Seat{}
}

func OccupiedSeat(player Player) Seat {
	return Seat{occupied: true, player: player}
}

// Player returns the occupant, ok is false for an empty seat.
func (s Seat) Player() (Player, bool) {
	return s.player, s.occupied
}

func (s Seat) IsEmpty() bool {
	return !s.occupied
}

// HeldBy reports whether the seat is occupied by connectionID.
func (s Seat) HeldBy(connectionID string) bool {
	return s.occupied && s.player.ConnectionID == connectionID
}
