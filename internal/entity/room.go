package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
)

type Status string

const (
	StatusWaiting    Status = "WaitingForPlayers"
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
	StatusAbandoned  Status = "Abandoned"
)

type Difficulty string

const (
	EasyDifficulty   Difficulty = "easy"
	MediumDifficulty Difficulty = "medium"
	HardDifficulty   Difficulty = "hard"
)

// ParseDifficulty returns the difficulty named by s, ok is false for unknown names.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(s); d {
	case EasyDifficulty, MediumDifficulty, HardDifficulty:
		return d, true
	default:
		return "", false
	}
}

// SeatMarks holds the mark played from each seat.
var SeatMarks = [2]Mark{X, O}

type RoomOptions struct {
	AIMode       bool
	AIDifficulty Difficulty
}

// Room is one match. It holds values only, so a plain copy is a full snapshot.
type Room struct {
	ID           string
	Seats        [2]Seat
	Board        Board
	Turn         Mark
	Status       Status
	Outcome      Outcome // meaningful only when Status is StatusFinished
	AIMode       bool
	AIDifficulty Difficulty
	MoveCount    int
	CreatedAt    time.Time
	LastActivity time.Time
}

type JoinResult struct {
	Seat    int
	Mark    Mark
	Started bool
}

type MoveResult struct {
	Mark     Mark
	Cell     Cell
	Finished bool
}

type LeaveResult struct {
	Abandoned bool
	Empty     bool // no human seat remains, the room can be dropped
}

func NewRoom(id string, opts RoomOptions, now time.Time) *Room {
	room := &Room{
		ID:           id,
		Turn:         X,
		Status:       StatusWaiting,
		AIMode:       opts.AIMode,
		AIDifficulty: opts.AIDifficulty,
		CreatedAt:    now,
		LastActivity: now,
	}

	// the computer always takes the second seat, so the first human join starts the game
	if opts.AIMode {
		room.Seats[1] = OccupiedSeat(NewAIPlayer(SeatMarks[1]))
	}

	return room
}

// Join seats the player in the first empty seat.
func (that *Room) Join(player Player, now time.Time) (JoinResult, error) {
	if _, ok := that.SeatOf(player.ConnectionID); ok {
		return JoinResult{}, apperror.ErrDuplicateConnection
	}

	seat := -1
	for i, s := range that.Seats {
		if s.IsEmpty() {
			seat = i
			break
		}
	}

	if seat < 0 {
		return JoinResult{}, apperror.ErrRoomFull
	}

	if that.IsTerminal() {
		return JoinResult{}, fmt.Errorf("%w: room is %s", apperror.ErrGameNotActive, that.Status)
	}

	player.Mark = SeatMarks[seat]
	that.Seats[seat] = OccupiedSeat(player)
	that.LastActivity = now

	result := JoinResult{Seat: seat, Mark: player.Mark}
	if that.Status == StatusWaiting && that.OccupiedSeats() == len(that.Seats) {
		that.Status = StatusInProgress
		result.Started = true
	}

	return result, nil
}

// Move places the mark of connectionID's seat at (row, col).
func (that *Room) Move(connectionID string, row, col int, now time.Time) (MoveResult, error) {
	if that.Status != StatusInProgress {
		return MoveResult{}, fmt.Errorf("%w: room is %s", apperror.ErrGameNotActive, that.Status)
	}

	seat, ok := that.SeatOf(connectionID)
	if !ok || SeatMarks[seat] != that.Turn {
		return MoveResult{}, apperror.ErrNotYourTurn
	}

	if !IsValidMove(that.Board, row, col) {
		return MoveResult{}, fmt.Errorf("%w: row %d col %d", apperror.ErrInvalidCell, row, col)
	}

	mark := SeatMarks[seat]
	that.Board[row][col] = mark
	that.MoveCount++
	that.LastActivity = now

	result := MoveResult{Mark: mark, Cell: Cell{Row: row, Col: col}}
	if outcome := DetectOutcome(that.Board); outcome.IsDecided() {
		that.Status = StatusFinished
		that.Outcome = outcome
		result.Finished = true
		return result, nil
	}

	that.Turn = that.Turn.Opponent()

	return result, nil
}

// Leave frees connectionID's seat.
func (that *Room) Leave(connectionID string, now time.Time) (LeaveResult, error) {
	seat, ok := that.SeatOf(connectionID)
	if !ok {
		return LeaveResult{}, apperror.ErrNotSeated
	}

	that.Seats[seat] = EmptySeat()
	that.LastActivity = now

	humans := that.HumanSeats()
	if humans == 0 {
		return LeaveResult{Empty: true}, nil
	}

	if that.Status == StatusInProgress {
		that.Status = StatusAbandoned
		return LeaveResult{Abandoned: true}, nil
	}

	return LeaveResult{}, nil
}

// Opponent returns the player in the other seat, only when it is held by a different connection.
func (that *Room) Opponent(connectionID string) (Player, bool) {
	seat, ok := that.SeatOf(connectionID)
	if !ok {
		return Player{}, false
	}

	other, ok := that.Seats[1-seat].Player()
	if !ok || other.ConnectionID == connectionID {
		return Player{}, false
	}

	return other, true
}

// SeatOf returns the index of the seat held by connectionID.
func (that *Room) SeatOf(connectionID string) (int, bool) {
	for i, s := range that.Seats {
		if s.HeldBy(connectionID) {
			return i, true
		}
	}

	return -1, false
}

func (that *Room) OccupiedSeats() int {
	n := 0
	for _, s := range that.Seats {
		if !s.IsEmpty() {
			n++
		}
	}

	return n
}

// HumanSeats counts seats held by real connections.
func (that *Room) HumanSeats() int {
	n := 0
	for _, s := range that.Seats {
		if p, ok := s.Player(); ok && !p.IsAI {
			n++
		}
	}

	return n
}

// IsAITurn reports whether the computer seat should move next.
func (that *Room) IsAITurn() bool {
	if !that.AIMode || that.Status != StatusInProgress {
		return false
	}

	for i, s := range that.Seats {
		if p, ok := s.Player(); ok && p.IsAI {
			return SeatMarks[i] == that.Turn
		}
	}

	return false
}

func (that *Room) IsTerminal() bool {
	return that.Status == StatusFinished || that.Status == StatusAbandoned
}

// IsStale reports whether the room saw no activity during the last threshold.
func (that *Room) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(that.LastActivity) > threshold
}

// Snapshot returns a detached copy of the room.
func (that *Room) Snapshot() Room {
	return *that
}

// Winner returns the winning mark, DrawWinner for a draw, or an empty string while the game is not finished.
func (that *Room) Winner() string {
	if that.Status != StatusFinished {
		return ""
	}

	if that.Outcome.Result == Draw {
		return DrawWinner
	}

	return that.Outcome.Winner.String()
}
