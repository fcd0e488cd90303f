package apperror

import "errors"

var (
	ErrGameFinished    = errors.New("game is already finished")
	ErrCellOccupied    = errors.New("cell is already occupied")
	ErrInvalidCell     = errors.New("invalid cell index")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrUnknownMode     = errors.New("unknown game mode")
	ErrSessionNotFound = errors.New("session not found")
)
