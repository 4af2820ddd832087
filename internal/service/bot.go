package service

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// cellRank orders equally good moves: center, then corners, then edges.
var cellRank = [entity.BoardSize][entity.BoardSize]int{
	{1, 2, 1},
	{2, 0, 2},
	{1, 2, 1},
}

type BotService struct {
	mu  sync.Mutex
	rnd *rand.Rand

	fallback entity.Difficulty
}

// NewBotService returns a move selector. Unknown difficulties are played as fallback.
func NewBotService(rnd *rand.Rand, fallback entity.Difficulty) *BotService {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint: gosec // it's ok
	}

	if _, ok := entity.ParseDifficulty(string(fallback)); !ok {
		fallback = entity.MediumDifficulty
	}

	return &BotService{
		rnd:      rnd,
		fallback: fallback,
	}
}

// SelectMove picks the cell aiMark plays on board.
func (that *BotService) SelectMove(board entity.Board, aiMark entity.Mark, difficulty entity.Difficulty) (entity.Cell, error) {
	moves := slices.Collect(entity.AvailableMoves(board))
	if len(moves) == 0 {
		return entity.Cell{}, ErrNoAvailableMoves
	}

	if _, ok := entity.ParseDifficulty(string(difficulty)); !ok {
		difficulty = that.fallback
	}

	switch difficulty {
	case entity.EasyDifficulty:
		return that.random(moves), nil
	case entity.HardDifficulty:
		return bestMove(board, aiMark, moves), nil
	default:
		if cell, ok := finishingMove(board, aiMark, moves); ok {
			return cell, nil
		}

		if cell, ok := finishingMove(board, aiMark.Opponent(), moves); ok {
			return cell, nil
		}

		return that.random(moves), nil
	}
}

func (that *BotService) random(moves []entity.Cell) entity.Cell {
	that.mu.Lock()
	defer that.mu.Unlock()

	return moves[that.rnd.IntN(len(moves))]
}

// finishingMove returns a cell that completes a line for mark.
func finishingMove(board entity.Board, mark entity.Mark, moves []entity.Cell) (entity.Cell, bool) {
	for _, cell := range moves {
		next := board
		next[cell.Row][cell.Col] = mark

		if outcome := entity.DetectOutcome(next); outcome.Result == entity.Win && outcome.Winner == mark {
			return cell, true
		}
	}

	return entity.Cell{}, false
}

// bestMove runs a full negamax search. Faster wins and slower losses score higher.
func bestMove(board entity.Board, mark entity.Mark, moves []entity.Cell) entity.Cell {
	slices.SortStableFunc(moves, func(a, b entity.Cell) int {
		return cellRank[a.Row][a.Col] - cellRank[b.Row][b.Col]
	})

	s := &solver{memo: make(map[position]int)}

	best, bestScore := moves[0], 0
	for i, cell := range moves {
		next := board
		next[cell.Row][cell.Col] = mark

		score := -s.negamax(next, mark.Opponent())
		if i == 0 || score > bestScore {
			best, bestScore = cell, score
		}
	}

	return best
}

type position struct {
	board  entity.Board
	toMove entity.Mark
}

type solver struct {
	memo map[position]int
}

// negamax scores board from the point of view of toMove.
func (that *solver) negamax(board entity.Board, toMove entity.Mark) int {
	key := position{board: board, toMove: toMove}
	if score, ok := that.memo[key]; ok {
		return score
	}

	empty := entity.BoardSize*entity.BoardSize - board.Filled()

	var score int
	switch outcome := entity.DetectOutcome(board); outcome.Result {
	case entity.Win:
		score = 1 + empty
		if outcome.Winner != toMove {
			score = -score
		}
	case entity.Draw:
		score = 0
	default:
		first := true
		for cell := range entity.AvailableMoves(board) {
			next := board
			next[cell.Row][cell.Col] = toMove

			if child := -that.negamax(next, toMove.Opponent()); first || child > score {
				score, first = child, false
			}
		}
	}

	that.memo[key] = score

	return score
}
