package entity

import (
	"fmt"

	"github.com/quickgamelab/tictactoe-session/internal/apperror"
	"github.com/quickgamelab/tictactoe-session/internal/game"
)

const (
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"

	ModeTwoPlayer = "two_player"
	ModeWithBot   = "with_bot"
)

// Score counts finished rounds per outcome. It accumulates across restarts
// and is only ever reset together with its session.
type Score struct {
	X    int `json:"x"`
	O    int `json:"o"`
	Ties int `json:"ties"`
}

// Session is one browser's game: the board, whose turn it is, the chosen
// mode, the running score, and the outcome of the last evaluation. Version
// increases on every mutation so that a bot move scheduled against an older
// state can recognize it is stale.
type Session struct {
	ID      string     `json:"id"`
	Board   game.Board `json:"board"`
	Turn    string     `json:"turn,omitempty"`
	Mode    string     `json:"mode"`
	Status  string     `json:"status"`
	Winner  string     `json:"winner,omitempty"`
	Line    []int      `json:"line,omitempty"`
	Score   Score      `json:"score"`
	Version uint64     `json:"version"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:     id,
		Board:  game.Board{},
		Turn:   game.PlayerX,
		Mode:   ModeTwoPlayer,
		Status: StatusOngoing,
	}
}

// ApplyMove places the current turn's mark on the given cell. Rejected moves
// leave the session untouched. A move that ends the round updates the score
// and records the winning line in the same step.
func (that *Session) ApplyMove(cell int) error {
	if that.IsFinished() {
		return apperror.ErrGameFinished
	}

	if cell < 0 || cell >= len(that.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.Board[cell] != game.EmptyCell {
		return apperror.ErrCellOccupied
	}

	that.Board[cell] = that.Turn

	if result := game.Evaluate(that.Board); result.IsFinished() {
		that.finish(result)
	} else {
		that.Turn = game.ToggleMark(that.Turn)
	}

	that.Version++

	return nil
}

func (that *Session) finish(result game.Result) {
	that.Status = StatusFinished
	that.Winner = result.Winner
	that.Line = result.Line
	that.Turn = game.EmptyCell

	switch result.Winner {
	case game.PlayerX:
		that.Score.X++
	case game.PlayerO:
		that.Score.O++
	case game.PlayerTie:
		that.Score.Ties++
	}
}

// Restart clears the round but keeps the score and mode. X always opens.
func (that *Session) Restart() {
	that.Board = game.Board{}
	that.Turn = game.PlayerX
	that.Status = StatusOngoing
	that.Winner = game.EmptyCell
	that.Line = nil
	that.Version++
}

// SetMode switches between two-player and bot play. Switching always starts
// a fresh round, mid-game mode changes are not a thing.
func (that *Session) SetMode(mode string) error {
	if mode != ModeTwoPlayer && mode != ModeWithBot {
		return fmt.Errorf("%w: %s", apperror.ErrUnknownMode, mode)
	}

	that.Mode = mode
	that.Restart()

	return nil
}

func (that *Session) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Session) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Session) IsWithBot() bool {
	return that.Mode == ModeWithBot
}

// BotToMove reports whether the computer opponent owes the next move. The
// bot always plays O.
func (that *Session) BotToMove() bool {
	return that.IsWithBot() && that.IsOngoing() && that.Turn == game.PlayerO
}

// StatusText derives the line of text the UI shows above the board.
func (that *Session) StatusText() string {
	if that.IsOngoing() {
		return fmt.Sprintf("%s's turn", that.Turn)
	}

	if that.Winner == game.PlayerTie {
		return "draw"
	}

	return fmt.Sprintf("%s wins", that.Winner)
}
