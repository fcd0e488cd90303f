package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgamelab/tictactoe-session/internal/apperror"
	"github.com/quickgamelab/tictactoe-session/internal/entity"
	"github.com/quickgamelab/tictactoe-session/internal/game"
)

// memoryManager drives real sessions without Redis or a bot schedule; the
// transport under test cannot tell the difference.
type memoryManager struct {
	sessions map[string]*entity.Session
}

func newMemoryManager() *memoryManager {
	return &memoryManager{sessions: make(map[string]*entity.Session)}
}

func (that *memoryManager) GetOrCreateSession(_ context.Context, id string) (*entity.Session, error) {
	if session, ok := that.sessions[id]; ok {
		return session, nil
	}

	session := entity.NewSession(id)
	that.sessions[id] = session
	return session, nil
}

func (that *memoryManager) ApplyMove(_ context.Context, sessionID string, cell int) (*entity.Session, error) {
	session := that.sessions[sessionID]
	if err := session.ApplyMove(cell); err != nil {
		return session, err
	}
	return session, nil
}

func (that *memoryManager) Restart(_ context.Context, sessionID string) (*entity.Session, error) {
	session := that.sessions[sessionID]
	session.Restart()
	return session, nil
}

func (that *memoryManager) SetMode(_ context.Context, sessionID, mode string) (*entity.Session, error) {
	session := that.sessions[sessionID]
	if err := session.SetMode(mode); err != nil {
		return session, err
	}
	return session, nil
}

func (that *memoryManager) EndSession(_ context.Context, sessionID string) error {
	delete(that.sessions, sessionID)
	return nil
}

func dialTestServer(t *testing.T) (*websocket.Conn, *memoryManager) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := newMemoryManager()
	server := New(logger, manager)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.serveConnection(context.Background(), w, r)
	}))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// the handshake response carries the freshly minted session cookie
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	return conn, manager
}

func send(t *testing.T, conn *websocket.Conn, action string, payload any) {
	t.Helper()

	msg := Message{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = raw
	}

	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn) (Message, StatePayload) {
	t.Helper()

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))

	var payload StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	return msg, payload
}

func TestServer_ConnectAndPlay(t *testing.T) {
	conn, _ := dialTestServer(t)

	// Given: a connected browser
	send(t, conn, "connect", nil)
	msg, payload := receive(t, conn)

	// Then: the fresh session state comes back
	require.Equal(t, "connect", msg.Action)
	require.NotNil(t, payload.Session)
	assert.Equal(t, game.PlayerX, payload.Session.Turn)
	assert.Equal(t, "X's turn", payload.Session.StatusText)
	assert.Empty(t, payload.Error)

	// When: X clicks cell 0
	send(t, conn, "game:turn", TurnPayload{Cell: 0})
	msg, payload = receive(t, conn)

	// Then: the move landed and the turn flipped
	require.Equal(t, "game:turn", msg.Action)
	require.NotNil(t, payload.Session)
	assert.Equal(t, game.PlayerX, payload.Session.Board[0])
	assert.Equal(t, game.PlayerO, payload.Session.Turn)
}

func TestServer_InvalidMoveIsAbsorbed(t *testing.T) {
	conn, _ := dialTestServer(t)

	send(t, conn, "connect", nil)
	_, _ = receive(t, conn)

	send(t, conn, "game:turn", TurnPayload{Cell: 0})
	_, _ = receive(t, conn)

	// When: the occupied cell is clicked again
	send(t, conn, "game:turn", TurnPayload{Cell: 0})
	_, payload := receive(t, conn)

	// Then: the reply restates the board with a reason, nothing mutated
	require.NotNil(t, payload.Session)
	assert.Equal(t, apperror.ErrCellOccupied.Error(), payload.Error)
	assert.Equal(t, game.PlayerX, payload.Session.Board[0])
	assert.Equal(t, game.PlayerO, payload.Session.Turn)
}

func TestServer_RestartKeepsScore(t *testing.T) {
	conn, _ := dialTestServer(t)

	send(t, conn, "connect", nil)
	_, _ = receive(t, conn)

	// Given: X wins the top row
	for _, cell := range []int{0, 4, 1, 7, 2} {
		send(t, conn, "game:turn", TurnPayload{Cell: cell})
		_, _ = receive(t, conn)
	}

	// When: the browser requests a restart
	send(t, conn, "game:restart", nil)
	_, payload := receive(t, conn)

	// Then: the board is fresh and the score kept X's win
	require.NotNil(t, payload.Session)
	assert.Equal(t, game.Board{}, payload.Session.Board)
	assert.Equal(t, "X's turn", payload.Session.StatusText)
	assert.Equal(t, entity.Score{X: 1}, payload.Session.Score)
}

func TestServer_ModeSwitch(t *testing.T) {
	conn, _ := dialTestServer(t)

	send(t, conn, "connect", nil)
	_, _ = receive(t, conn)

	// When: switching to bot mode
	send(t, conn, "game:mode", ModePayload{Mode: entity.ModeWithBot})
	_, payload := receive(t, conn)

	// Then: the mode changes on a fresh board
	require.NotNil(t, payload.Session)
	assert.Equal(t, entity.ModeWithBot, payload.Session.Mode)
	assert.Equal(t, game.Board{}, payload.Session.Board)

	// When: requesting a bogus mode
	send(t, conn, "game:mode", ModePayload{Mode: "tournament"})
	_, payload = receive(t, conn)

	// Then: the reply carries the reason and keeps the current mode
	require.NotNil(t, payload.Session)
	assert.Equal(t, apperror.ErrUnknownMode.Error(), payload.Error)
	assert.Equal(t, entity.ModeWithBot, payload.Session.Mode)
}

func TestServer_UnknownAction(t *testing.T) {
	conn, _ := dialTestServer(t)

	// When: sending an action nobody registered
	send(t, conn, "game:teleport", nil)
	_, payload := receive(t, conn)

	// Then: an error payload comes back
	assert.Equal(t, "unknown action", payload.Error)
	assert.Nil(t, payload.Session)
}

func TestServer_WinningStatePayload(t *testing.T) {
	conn, _ := dialTestServer(t)

	send(t, conn, "connect", nil)
	_, _ = receive(t, conn)

	// Given: X plays out the left column win
	var payload StatePayload
	for _, cell := range []int{0, 1, 3, 4, 6} {
		send(t, conn, "game:turn", TurnPayload{Cell: cell})
		_, payload = receive(t, conn)
	}

	// Then: the final payload highlights the 0-3-6 line
	require.NotNil(t, payload.Session)
	assert.Equal(t, game.PlayerX, payload.Session.Winner)
	assert.Equal(t, []int{0, 3, 6}, payload.Session.Line)
	assert.Equal(t, "X wins", payload.Session.StatusText)
}
