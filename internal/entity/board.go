package entity

import (
	"iter"
	"strings"
)

type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

// BoardSize is the length of a board side.
const BoardSize = 3

// String returns the wire character of a mark, a space for an empty cell.
func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return " "
	}
}

// Opponent returns the other playing mark.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// Cell addresses one square of the board.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Board [BoardSize][BoardSize]Mark

// WinLines lists every line of three, rows first, then columns, then diagonals.
var WinLines = [8][3]Cell{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

// Result is the kind of outcome DetectOutcome reports.
type Result uint8

const (
	Undecided Result = iota
	Win
	Draw
)

type Outcome struct {
	Result Result
	Winner Mark
}

// IsDecided reports whether the game is over.
func (o Outcome) IsDecided() bool {
	return o.Result != Undecided
}

// IsValidMove reports whether (row, col) is on the board and empty.
func IsValidMove(board Board, row, col int) bool {
	if row < 0 || row >= BoardSize || col < 0 || col >= BoardSize {
		return false
	}

	return board[row][col] == Empty
}

// DetectOutcome returns the first completed line's mark, a draw on a full board, or Undecided.
func DetectOutcome(board Board) Outcome {
	for _, line := range WinLines {
		a := board[line[0].Row][line[0].Col]
		b := board[line[1].Row][line[1].Col]
		c := board[line[2].Row][line[2].Col]
		if a != Empty && a == b && b == c {
			return Outcome{Result: Win, Winner: a}
		}
	}

	// the game goes on until every square is taken
	if board.Filled() < BoardSize*BoardSize {
		return Outcome{Result: Undecided}
	}

	return Outcome{Result: Draw}
}

// AvailableMoves yields the empty cells in row-major order. The sequence is recomputed on every range.
func AvailableMoves(board Board) iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for row := range BoardSize {
			for col := range BoardSize {
				if board[row][col] != Empty {
					continue
				}
				if !yield(Cell{Row: row, Col: col}) {
					return
				}
			}
		}
	}
}

// Filled counts the non-empty cells.
func (b Board) Filled() int {
	filled := 0
	for _, row := range b {
		for _, mark := range row {
			if mark != Empty {
				filled++
			}
		}
	}

	return filled
}

// String serialises the board as 9 characters, row-major.
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(BoardSize * BoardSize)

	for _, row := range b {
		for _, mark := range row {
			sb.WriteString(mark.String())
		}
	}

	return sb.String()
}

// ParseBoard is the inverse of Board.String. Unknown characters are read as empty cells.
func ParseBoard(s string) Board {
	var board Board

	for i, r := range []rune(s) {
		if i >= BoardSize*BoardSize {
			break
		}
		switch r {
		case 'X':
			board[i/BoardSize][i%BoardSize] = X
		case 'O':
			board[i/BoardSize][i%BoardSize] = O
		}
	}

	return board
}
