package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "askme/errors"
	"askme/web/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestCreateSessionDefaults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx)
	require.NoError(t, err)

	sess, err := store.GetSessionByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, sess.ID)
	require.Equal(t, DefaultSessionTitle(time.Now()), sess.Title)
	require.Zero(t, sess.EntryCount)
}

func TestGetSessionByIDNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSessionByID(context.Background(), uuid.New())
	require.True(t, apperrors.IsNotFound(err), "got %v", err)
}

func TestAppendEntryAssignsContiguousPositions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, err := store.CreateSession(ctx)
	require.NoError(t, err)

	for i, q := range []string{"first?", "second?", "third?"} {
		entry, err := store.AppendEntry(ctx, id, q)
		require.NoError(t, err)
		require.Equal(t, i, entry.Position)
		require.Equal(t, types.StatusPending, entry.Status)
		require.Empty(t, entry.Answer)
	}

	history, err := store.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "first?", history[0].Question)
	require.Equal(t, "third?", history[2].Question)

	sess, err := store.GetSessionByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 3, sess.EntryCount)
}

func TestAppendEntryPositionsArePerSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a, _ := store.CreateSession(ctx)
	b, _ := store.CreateSession(ctx)

	_, err := store.AppendEntry(ctx, a, "a0")
	require.NoError(t, err)
	entry, err := store.AppendEntry(ctx, b, "b0")
	require.NoError(t, err)
	require.Equal(t, 0, entry.Position)
}

func TestAppendEntryUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AppendEntry(context.Background(), uuid.New(), "hello")
	require.True(t, apperrors.IsNotFound(err), "got %v", err)
}

func TestSetAnswer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)
	entry, err := store.AppendEntry(ctx, id, "what is go?")
	require.NoError(t, err)

	updated, err := store.SetAnswer(ctx, entry.ID, "A language.", types.StatusAnswered)
	require.NoError(t, err)
	require.Equal(t, "A language.", updated.Answer)
	require.Equal(t, types.StatusAnswered, updated.Status)
	require.NotNil(t, updated.AnsweredAt)

	pending, err := store.GetPendingEntries(ctx, id)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSetAnswerRejectsEmptyAndPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)
	entry, _ := store.AppendEntry(ctx, id, "q")

	_, err := store.SetAnswer(ctx, entry.ID, "", types.StatusAnswered)
	require.True(t, apperrors.IsInvalidInput(err))

	_, err = store.SetAnswer(ctx, entry.ID, "x", types.StatusPending)
	require.True(t, apperrors.IsInvalidInput(err))

	_, err = store.SetAnswer(ctx, uuid.New(), "x", types.StatusAnswered)
	require.True(t, apperrors.IsNotFound(err))
}

func TestFailPendingEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)
	answered, _ := store.AppendEntry(ctx, id, "done")
	_, err := store.SetAnswer(ctx, answered.ID, "yes", types.StatusAnswered)
	require.NoError(t, err)
	_, _ = store.AppendEntry(ctx, id, "left behind")

	n, err := store.FailPendingEntries(ctx, types.ErrorAnswer)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	history, err := store.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "yes", history[0].Answer)
	require.Equal(t, types.StatusFailed, history[1].Status)
	require.Equal(t, types.ErrorAnswer, history[1].Answer)
}

func TestGetSessionsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	older, _ := store.CreateSession(ctx)
	newer, _ := store.CreateSession(ctx)

	time.Sleep(5 * time.Millisecond)
	_, err := store.AppendEntry(ctx, older, "bump")
	require.NoError(t, err)

	sessions, err := store.GetSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, older, sessions[0].ID)
	require.Equal(t, newer, sessions[1].ID)
}

func TestUpdateSessionTitle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)

	require.NoError(t, store.UpdateSessionTitle(ctx, id, "Go questions"))
	sess, err := store.GetSessionByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Go questions", sess.Title)

	err = store.UpdateSessionTitle(ctx, uuid.New(), "nope")
	require.True(t, apperrors.IsNotFound(err))
}

func TestDeleteSessionsRemovesHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a, _ := store.CreateSession(ctx)
	b, _ := store.CreateSession(ctx)
	keep, _ := store.CreateSession(ctx)
	_, _ = store.AppendEntry(ctx, a, "qa")
	_, _ = store.AppendEntry(ctx, keep, "qk")

	n, err := store.DeleteSessions(ctx, []uuid.UUID{a, b})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	history, err := store.GetHistory(ctx, a)
	require.NoError(t, err)
	require.Empty(t, history)

	history, err = store.GetHistory(ctx, keep)
	require.NoError(t, err)
	require.Len(t, history, 1)

	err = store.DeleteSession(ctx, a)
	require.True(t, apperrors.IsNotFound(err))
}

func TestGetStaleSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)

	stale, err := store.GetStaleSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, stale)

	stale, err = store.GetStaleSessions(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{id}, stale)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id, _ := store.CreateSession(ctx)
	_, _ = store.AppendEntry(ctx, id, "one")
	_, _ = store.AppendEntry(ctx, id, "two")

	n, err := store.ClearHistory(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	entry, err := store.AppendEntry(ctx, id, "again")
	require.NoError(t, err)
	require.Equal(t, 0, entry.Position)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "pgx"}
	require.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))

	lite := &Store{driver: "sqlite"}
	require.Equal(t, "SELECT ?, ?", lite.rebind("SELECT ?, ?"))
	require.Equal(t, "?, ?, ?", placeholders(3))
	require.Equal(t, "", placeholders(0))
}
