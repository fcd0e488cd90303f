package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quickgamelab/tictactoe-session/internal/entity"
)

const sessionCookieName = "user_session"

type sessionManager interface {
	GetOrCreateSession(ctx context.Context, id string) (*entity.Session, error)
	ApplyMove(ctx context.Context, sessionID string, cell int) (*entity.Session, error)
	Restart(ctx context.Context, sessionID string) (*entity.Session, error)
	SetMode(ctx context.Context, sessionID, mode string) (*entity.Session, error)
	EndSession(ctx context.Context, sessionID string) error
}

// connection wraps a socket with a write lock, gorilla allows only one
// concurrent writer.
type connection struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (that *connection) writeJSON(v any) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

type Server struct {
	logger  *slog.Logger
	manager sessionManager

	upgrader websocket.Upgrader

	connectionsMutex sync.RWMutex
	connections      map[string]*connection

	handlers map[string]func(ctx context.Context, sessionID string, conn *connection, message *Message) error
}

func New(logger *slog.Logger, manager sessionManager) *Server {
	server := &Server{
		logger:  logger,
		manager: manager,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the game page may be served from a different origin than
			// the socket port during development
			CheckOrigin: func(_ *http.Request) bool { return true },
		},

		connections: make(map[string]*connection),
		handlers:    make(map[string]func(context.Context, string, *connection, *Message) error),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["game:turn"] = server.handleTurn
	server.handlers["game:restart"] = server.handleRestart
	server.handlers["game:mode"] = server.handleMode
	server.handlers["game:leave"] = server.handleLeave

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down websocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveConnection upgrades the request and pumps its messages until the
// browser goes away. The session itself outlives the socket.
func (that *Server) serveConnection(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveConnection")

	sessionID, header := that.resolveSessionID(req)

	ws, err := that.upgrader.Upgrade(writer, req, header)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{ws: ws}

	that.connectionsMutex.Lock()
	that.connections[sessionID] = conn
	that.connectionsMutex.Unlock()

	log.Info("WebSocket connection established", "sessionID", sessionID)

	defer func() {
		that.connectionsMutex.Lock()
		if that.connections[sessionID] == conn {
			delete(that.connections, sessionID)
		}
		that.connectionsMutex.Unlock()

		if err = ws.Close(); err != nil {
			log.Debug("failed to close connection", "error", err)
		}
	}()

	that.handleMessages(ctx, sessionID, conn)
}

// resolveSessionID reads the session cookie, minting a new ID (and the
// Set-Cookie for the handshake response) when the browser has none.
func (that *Server) resolveSessionID(req *http.Request) (string, http.Header) {
	if cookie, err := req.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	sessionID := uuid.NewString()

	cookie := &http.Cookie{
		Name:    sessionCookieName,
		Value:   sessionID,
		Expires: time.Now().Add(24 * time.Hour),
		Path:    "/",
	}

	header := http.Header{}
	header.Add("Set-Cookie", cookie.String())

	that.logger.Info("session cookie not found, new one created", "sessionID", sessionID)

	return sessionID, header
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, sessionID string, conn *connection) {
	log := that.logger.With("method", "handleMessages", "sessionID", sessionID)

	for {
		_, reqBody, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)

			if err = that.sendError(conn, message.Action, "unknown action"); err != nil {
				log.Error("failed to send error response", "error", err)
			}
			continue
		}

		if err = handler(ctx, sessionID, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// SessionUpdated pushes state the browser did not ask for, the board after
// a delayed bot move. Implements the session manager's notifier.
func (that *Server) SessionUpdated(_ context.Context, session *entity.Session) {
	log := that.logger.With("method", "SessionUpdated", "sessionID", session.ID)

	that.connectionsMutex.RLock()
	conn, ok := that.connections[session.ID]
	that.connectionsMutex.RUnlock()

	if !ok {
		log.Debug("no connection for session, dropping push")
		return
	}

	if err := that.sendState(conn, "game:update", session, ""); err != nil {
		log.Error("failed to push session update", "error", err)
	}
}

func (that *Server) sendState(conn *connection, action string, session *entity.Session, errText string) error {
	return that.sendMessage(conn, action, StatePayload{
		Session: newSessionState(session),
		Error:   errText,
	})
}

func (that *Server) sendError(conn *connection, action, errText string) error {
	return that.sendMessage(conn, action, StatePayload{Error: errText})
}

func (that *Server) sendMessage(conn *connection, action string, payload StatePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return conn.writeJSON(Message{
		Action:  action,
		Payload: payloadJSON,
	})
}
