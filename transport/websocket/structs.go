package websocket

import (
	"encoding/json"

	"github.com/quickgamelab/tictactoe-session/internal/entity"
	"github.com/quickgamelab/tictactoe-session/internal/game"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TurnPayload struct {
	Cell int `json:"cell"`
}

type ModePayload struct {
	Mode string `json:"mode"`
}

// StatePayload is what goes back to the browser on every reply and push.
type StatePayload struct {
	Session *SessionState `json:"session,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// SessionState is the render model: everything the page needs to draw the
// board, the status line, the score and the mode buttons.
type SessionState struct {
	ID         string       `json:"id"`
	Board      game.Board   `json:"board"`
	Turn       string       `json:"turn,omitempty"`
	Mode       string       `json:"mode"`
	Status     string       `json:"status"`
	StatusText string       `json:"status_text"`
	Winner     string       `json:"winner,omitempty"`
	Line       []int        `json:"line,omitempty"`
	Score      entity.Score `json:"score"`
}

func newSessionState(session *entity.Session) *SessionState {
	return &SessionState{
		ID:         session.ID,
		Board:      session.Board,
		Turn:       session.Turn,
		Mode:       session.Mode,
		Status:     session.Status,
		StatusText: session.StatusText(),
		Winner:     session.Winner,
		Line:       session.Line,
		Score:      session.Score,
	}
}
