package web

import (
	"context"
	"fmt"
	"time"

	"askme/config"
	apperrors "askme/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionDeleter is the part of the store cleanup needs.
type SessionDeleter interface {
	GetStaleSessions(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// SessionGuard reserves a session while it is deleted. WithSession returns
// ErrBusy when the session has a question in flight.
type SessionGuard interface {
	WithSession(sessionID uuid.UUID, fn func() error) error
}

// CleanupService removes sessions and their history.
type CleanupService struct {
	store  SessionDeleter
	guard  SessionGuard
	logger *zap.Logger
}

// NewCleanupService creates a cleanup service. guard may be nil; when set,
// every delete runs inside it.
func NewCleanupService(store SessionDeleter, guard SessionGuard, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// CleanupStaleSessions finds and deletes sessions idle for longer than maxAge.
// Returns the number of sessions deleted.
func (cs *CleanupService) CleanupStaleSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoffTime := time.Now().Add(-maxAge)

	cs.logger.Info("Starting stale session cleanup",
		zap.Time("cutoff_time", cutoffTime),
		zap.Duration("max_age", maxAge))

	staleSessions, err := cs.store.GetStaleSessions(ctx, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get stale sessions: %w", err)
	}

	if len(staleSessions) == 0 {
		cs.logger.Debug("No stale sessions found")
		return 0, nil
	}

	cs.logger.Info("Found stale sessions to clean up",
		zap.Int("count", len(staleSessions)))

	deletedCount := 0
	for _, sessionID := range staleSessions {
		if err := cs.DeleteSession(ctx, sessionID); err != nil {
			if apperrors.IsBusy(err) {
				cs.logger.Debug("Skipping session with answer in flight",
					zap.String("session_id", sessionID.String()))
				continue
			}
			cs.logger.Error("Failed to delete stale session",
				zap.Error(err),
				zap.String("session_id", sessionID.String()))
			// Continue with other sessions even if one fails
			continue
		}
		deletedCount++
	}

	cs.logger.Info("Stale session cleanup completed",
		zap.Int("sessions_deleted", deletedCount),
		zap.Int("sessions_skipped", len(staleSessions)-deletedCount))

	return deletedCount, nil
}

// DeleteSession deletes a session; its history entries cascade. It returns
// ErrBusy while the session has a question in flight.
func (cs *CleanupService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	remove := func() error {
		if err := cs.store.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session from database: %w", err)
		}
		return nil
	}
	var err error
	if cs.guard != nil {
		err = cs.guard.WithSession(sessionID, remove)
	} else {
		err = remove()
	}
	if err != nil {
		return err
	}
	cs.logger.Debug("Session deleted", zap.String("session_id", sessionID.String()))
	return nil
}

// StartSessionCleanup runs CleanupStaleSessions every CleanupInterval until
// ctx is done.
func StartSessionCleanup(ctx context.Context, cfg *config.Config, cs *CleanupService, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	logger.Info("Session cleanup scheduled",
		zap.Duration("interval", cfg.CleanupInterval),
		zap.Duration("retention", cfg.SessionRetentionAge))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cs.CleanupStaleSessions(ctx, cfg.SessionRetentionAge); err != nil {
				logger.Error("Session cleanup failed", zap.Error(err))
			}
		}
	}
}
