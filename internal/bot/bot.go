package bot

import (
	"errors"

	"github.com/quickgamelab/tictactoe-session/internal/game"
)

var ErrNoAvailableMoves = errors.New("no available moves")

const centerCell = 4

// Selector picks moves for the computer opponent.
type Selector struct{}

func NewSelector() *Selector {
	return &Selector{}
}

// SelectMove returns the cell the bot plays, using a one-ply lookahead:
// take an immediate win, otherwise deny the opponent's immediate win,
// otherwise the center, otherwise the lowest empty cell. It deliberately
// does not search deeper, so fork setups beat it.
func (that *Selector) SelectMove(board game.Board, mark string) (int, error) {
	if cell, ok := winningMove(board, mark); ok {
		return cell, nil
	}

	if cell, ok := winningMove(board, game.ToggleMark(mark)); ok {
		return cell, nil
	}

	if board[centerCell] == game.EmptyCell {
		return centerCell, nil
	}

	for cell, value := range board {
		if value == game.EmptyCell {
			return cell, nil
		}
	}

	return -1, ErrNoAvailableMoves
}

// winningMove finds the lowest empty cell that completes a line for the
// given mark. The board is an array value, so the probe never leaks out.
func winningMove(board game.Board, mark string) (int, bool) {
	for cell, value := range board {
		if value != game.EmptyCell {
			continue
		}

		board[cell] = mark
		if game.Evaluate(board).Winner == mark {
			return cell, true
		}
		board[cell] = game.EmptyCell
	}

	return -1, false
}
