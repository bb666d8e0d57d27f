package services

import (
	"context"
	"fmt"

	apperrors "askme/errors"
	"askme/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionService struct {
	store  HistoryStore
	logger *zap.Logger
}

func NewSessionService(store HistoryStore, logger *zap.Logger) *SessionService {
	return &SessionService{
		store:  store,
		logger: logger,
	}
}

// CreateSession stores a new, empty session.
func (ss *SessionService) CreateSession(ctx context.Context) (types.Session, error) {
	sessionID, err := ss.store.CreateSession(ctx)
	if err != nil {
		ss.logger.Error("Failed to create session", zap.Error(err))
		return types.Session{}, fmt.Errorf("could not create session: %w", err)
	}
	session, err := ss.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return types.Session{}, fmt.Errorf("could not load new session: %w", err)
	}
	ss.logger.Info("Session created", zap.String("session_id", sessionID.String()))
	return session, nil
}

// ValidateAndGetSession loads a session. A missing session is not an error:
// shouldCreate tells the caller to start a new one instead.
func (ss *SessionService) ValidateAndGetSession(ctx context.Context, sessionID uuid.UUID) (*types.Session, bool, error) {
	session, err := ss.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, true, nil
		}
		ss.logger.Error("Failed to get session",
			zap.Error(err),
			zap.String("session_id", sessionID.String()))
		return nil, false, fmt.Errorf("could not load session: %w", err)
	}
	return &session, false, nil
}

// ResolveSession maps a cookie value to a session, creating one when the
// value is empty, malformed or names a session that no longer exists.
func (ss *SessionService) ResolveSession(ctx context.Context, cookie string) (types.Session, bool, error) {
	if cookie != "" {
		sessionID, err := uuid.Parse(cookie)
		if err == nil {
			session, shouldCreate, err := ss.ValidateAndGetSession(ctx, sessionID)
			if err != nil {
				return types.Session{}, false, err
			}
			if !shouldCreate {
				return *session, false, nil
			}
		} else {
			ss.logger.Debug("Ignoring malformed session cookie", zap.String("cookie", cookie))
		}
	}

	session, err := ss.CreateSession(ctx)
	if err != nil {
		return types.Session{}, false, err
	}
	return session, true, nil
}

// GetSessionsForSidebar lists sessions by recent activity.
// Returns empty slice on error to allow graceful degradation.
func (ss *SessionService) GetSessionsForSidebar(ctx context.Context) []types.Session {
	sessions, err := ss.store.GetSessions(ctx)
	if err != nil {
		ss.logger.Error("Failed to get sessions for sidebar", zap.Error(err))
		return []types.Session{}
	}
	return sessions
}
