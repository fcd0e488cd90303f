package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quickgamelab/tictactoe-session/internal/apperror"
	"github.com/quickgamelab/tictactoe-session/internal/entity"
	"github.com/quickgamelab/tictactoe-session/internal/game"
)

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type moveSelector interface {
	SelectMove(board game.Board, mark string) (int, error)
}

// Notifier receives session state the presentation layer did not ask for,
// which today means the board after a delayed bot move.
type Notifier interface {
	SessionUpdated(ctx context.Context, session *entity.Session)
}

// SessionManager owns every mutation of a session: human moves, restarts,
// mode switches, and the scheduled bot replies. Mutations are serialized
// with a single mutex, events arrive one at a time anyway.
type SessionManager struct {
	logger *slog.Logger

	sessionRepo sessionRepo
	selector    moveSelector
	botDelay    time.Duration

	mu       sync.Mutex
	notifier Notifier
}

func NewSessionManager(logger *slog.Logger, sessionRepo sessionRepo, selector moveSelector, botDelay time.Duration) *SessionManager {
	return &SessionManager{
		logger: logger,

		sessionRepo: sessionRepo,
		selector:    selector,
		botDelay:    botDelay,
	}
}

// SetNotifier wires the presentation side in after construction; the
// transport needs the manager first and vice versa.
func (that *SessionManager) SetNotifier(notifier Notifier) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.notifier = notifier
}

// GetOrCreateSession resolves the session for a browser's ID, minting both
// the ID and the session on first contact.
func (that *SessionManager) GetOrCreateSession(ctx context.Context, id string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}

	session, err := that.sessionRepo.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		session = entity.NewSession(id)
		if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		return session, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	// a reconnect can land on a session whose bot move never resolved,
	// the bot still owes it
	if session.BotToMove() {
		that.scheduleBotMove(session.ID, session.Version)
	}

	return session, nil
}

// ApplyMove plays the human click. When the move hands the turn to the bot,
// the bot's reply is scheduled after the think delay and pushed through the
// notifier once it lands.
func (that *SessionManager) ApplyMove(ctx context.Context, sessionID string, cell int) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	// in bot mode the human only ever plays X; clicks while the bot's
	// move is pending target O's turn and are refused here even if the
	// UI forgot to block them
	if session.BotToMove() {
		return session, apperror.ErrNotYourTurn
	}

	if err = session.ApplyMove(cell); err != nil {
		return session, fmt.Errorf("failed to apply move: %w", err)
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if session.BotToMove() {
		that.scheduleBotMove(session.ID, session.Version)
	}

	return session, nil
}

// Restart begins a fresh round, keeping the score. Any pending bot move is
// invalidated by the version bump.
func (that *SessionManager) Restart(ctx context.Context, sessionID string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	session.Restart()

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, nil
}

// SetMode switches the opponent kind, implicitly restarting the round.
func (that *SessionManager) SetMode(ctx context.Context, sessionID, mode string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	if err = session.SetMode(mode); err != nil {
		return session, fmt.Errorf("failed to set mode: %w", err)
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, nil
}

// EndSession drops the session entirely; the next connect starts from zero.
func (that *SessionManager) EndSession(ctx context.Context, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// scheduleBotMove arms the bot's reply against the session version captured
// now. Caller holds the mutex.
func (that *SessionManager) scheduleBotMove(sessionID string, version uint64) {
	time.AfterFunc(that.botDelay, func() {
		ctx := context.Background()

		if err := that.applyBotMove(ctx, sessionID, version); err != nil {
			that.logger.Error("bot move failed", "sessionID", sessionID, "error", err)
		}
	})
}

// applyBotMove plays the bot's turn if the session still looks exactly like
// it did when the move was scheduled. A restart or mode switch in the
// meantime bumped the version, and the stale move is dropped silently.
func (that *SessionManager) applyBotMove(ctx context.Context, sessionID string, version uint64) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get session by id: %w", err)
	}

	if session.Version != version || !session.BotToMove() {
		that.logger.Debug("discarding stale bot move", "sessionID", sessionID, "version", version)
		return nil
	}

	cell, err := that.selector.SelectMove(session.Board, game.PlayerO)
	if err != nil {
		return fmt.Errorf("failed to select move: %w", err)
	}

	if err = session.ApplyMove(cell); err != nil {
		return fmt.Errorf("failed to apply bot move: %w", err)
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if that.notifier != nil {
		that.notifier.SessionUpdated(ctx, session)
	}

	return nil
}
