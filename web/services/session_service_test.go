package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ss := NewSessionService(store, zap.NewNop())

	created, isNew, err := ss.ResolveSession(ctx, "")
	require.NoError(t, err)
	require.True(t, isNew)

	same, isNew, err := ss.ResolveSession(ctx, created.ID.String())
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, created.ID, same.ID)

	fresh, isNew, err := ss.ResolveSession(ctx, "not-a-uuid")
	require.NoError(t, err)
	require.True(t, isNew)
	require.NotEqual(t, created.ID, fresh.ID)

	gone, isNew, err := ss.ResolveSession(ctx, uuid.NewString())
	require.NoError(t, err)
	require.True(t, isNew)
	require.NotEqual(t, created.ID, gone.ID)

	require.Len(t, ss.GetSessionsForSidebar(ctx), 3)
}

func TestValidateAndGetSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ss := NewSessionService(store, zap.NewNop())

	session, shouldCreate, err := ss.ValidateAndGetSession(ctx, uuid.New())
	require.NoError(t, err)
	require.True(t, shouldCreate)
	require.Nil(t, session)

	created, err := ss.CreateSession(ctx)
	require.NoError(t, err)
	session, shouldCreate, err = ss.ValidateAndGetSession(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, shouldCreate)
	require.Equal(t, created.Title, session.Title)
}

func TestGetSessionsForSidebarDegrades(t *testing.T) {
	store := newTestStore(t)
	ss := NewSessionService(store, zap.NewNop())
	require.NoError(t, store.Close())

	sessions := ss.GetSessionsForSidebar(context.Background())
	require.NotNil(t, sessions)
	require.Empty(t, sessions)
}
