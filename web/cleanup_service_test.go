package web

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"askme/database"
	apperrors "askme/errors"
	"askme/web/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// busyGuard reports one session as having a question in flight.
type busyGuard struct {
	busy uuid.UUID
}

func (g busyGuard) WithSession(sessionID uuid.UUID, fn func() error) error {
	if sessionID == g.busy {
		return apperrors.WrapErrorf(apperrors.ErrBusy, "session %s", sessionID)
	}
	return fn()
}

// blockingDeleteStore holds DeleteSession open until release is closed.
type blockingDeleteStore struct {
	*database.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingDeleteStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	close(s.entered)
	<-s.release
	return s.Store.DeleteSession(ctx, sessionID)
}

func newCleanupStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.NewStore("sqlite", filepath.Join(t.TempDir(), "cleanup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestCleanupStaleSessions(t *testing.T) {
	ctx := context.Background()
	store := newCleanupStore(t)

	busy, err := store.CreateSession(ctx)
	require.NoError(t, err)
	idle, err := store.CreateSession(ctx)
	require.NoError(t, err)
	_, err = store.AppendEntry(ctx, idle, "old question")
	require.NoError(t, err)

	cs := NewCleanupService(store, busyGuard{busy: busy}, zap.NewNop())

	// Nothing is older than an hour.
	deleted, err := cs.CleanupStaleSessions(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, deleted)

	// A negative age puts the cutoff in the future, so every session is stale.
	deleted, err = cs.CleanupStaleSessions(ctx, -time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	sessions, err := store.GetSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, busy, sessions[0].ID)

	history, err := store.GetHistory(ctx, idle)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestDeleteSessionBusy(t *testing.T) {
	ctx := context.Background()
	store := newCleanupStore(t)
	sessionID, err := store.CreateSession(ctx)
	require.NoError(t, err)

	cs := NewCleanupService(store, busyGuard{busy: sessionID}, zap.NewNop())
	err = cs.DeleteSession(ctx, sessionID)
	require.True(t, apperrors.IsBusy(err), "got %v", err)

	_, err = store.GetSessionByID(ctx, sessionID)
	require.NoError(t, err)
}

func TestSubmitDuringSessionDelete(t *testing.T) {
	ctx := context.Background()
	store := &blockingDeleteStore{
		Store:   newCleanupStore(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	sessionID, err := store.CreateSession(ctx)
	require.NoError(t, err)

	chat := services.NewChatService(store, &stubProvider{chunks: []string{"ok"}}, services.ChatOptions{
		RequestTimeout: 5 * time.Second,
		TitleMaxLength: 60,
	}, zap.NewNop())
	t.Cleanup(func() { chat.Shutdown(context.Background()) })
	cs := NewCleanupService(store, chat, zap.NewNop())

	deleted := make(chan error, 1)
	go func() { deleted <- cs.DeleteSession(ctx, sessionID) }()
	<-store.entered

	_, err = chat.Submit(ctx, sessionID, "too late")
	require.True(t, apperrors.IsBusy(err), "got %v", err)

	close(store.release)
	require.NoError(t, <-deleted)
	require.False(t, chat.InFlight(sessionID))

	_, err = store.GetSessionByID(ctx, sessionID)
	require.True(t, apperrors.IsNotFound(err), "got %v", err)
}
