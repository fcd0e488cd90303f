package game

const (
	PlayerX   = "X"
	PlayerO   = "O"
	PlayerTie = "-"

	EmptyCell = ""
)

// Board is a 3x3 grid flattened row-major into 9 cells.
type Board [9]string

// Lines - the 8 winning combinations: rows top to bottom, columns left to
// right, then the two diagonals. Evaluate scans them in this order.
var Lines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Result describes the outcome of evaluating a board.
type Result struct {
	Winner string `json:"winner"`         // PlayerX, PlayerO, PlayerTie, or EmptyCell while the game is ongoing
	Line   []int  `json:"line,omitempty"` // cells of the completed line, nil unless a player won
}

// Evaluate checks the board against every winning line and reports the first
// completed one. A full board with no completed line is a tie; anything else
// means the game continues.
func Evaluate(board Board) Result {
	for _, line := range Lines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != EmptyCell && a == b && b == c {
			return Result{Winner: a, Line: []int{line[0], line[1], line[2]}}
		}
	}

	for _, cell := range board {
		if cell == EmptyCell {
			return Result{}
		}
	}

	return Result{Winner: PlayerTie}
}

// IsFinished reports whether the result ends the game.
func (that Result) IsFinished() bool {
	return that.Winner != EmptyCell
}

// ToggleMark returns the mark of the other player.
func ToggleMark(currentMark string) string {
	if currentMark == PlayerX {
		return PlayerO
	}
	return PlayerX
}
