package services

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"askme/llmclient"
	"askme/web/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionTitle(t *testing.T) {
	tests := []struct {
		name     string
		question string
		max      int
		want     string
	}{
		{"blank", "   ", 60, ""},
		{"collapses whitespace", "what   is\n\ta channel", 60, "what is a channel"},
		{"cuts on word boundary", "one two three four five", 12, "one two…"},
		{"no limit", "a fairly long question without any punctuation at all", 0, "a fairly long question without any punctuation at all"},
		{"fits exactly", "short", 5, "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SessionTitle(tt.question, tt.max))
		})
	}
}

func TestTruncateRunesCountsRunes(t *testing.T) {
	require.Equal(t, "héllo…", truncateRunes("héllo wörld", 8))
	require.Equal(t, "héllo wörld", truncateRunes("héllo wörld", 11))
}

func histEntry(pos int, q, a, status string) types.HistoryEntry {
	return types.HistoryEntry{ID: uuid.New(), Position: pos, Question: q, Answer: a, Status: status}
}

func TestBuildMessages(t *testing.T) {
	history := []types.HistoryEntry{
		histEntry(0, "q0", "a0", types.StatusAnswered),
		histEntry(1, "q1", types.ErrorAnswer, types.StatusFailed),
		histEntry(2, "q2", "a2", types.StatusAnswered),
		histEntry(3, "q3", "", types.StatusPending),
	}
	current := history[3]

	t.Run("question only", func(t *testing.T) {
		got := BuildMessages(history, current, false, 10)
		require.Equal(t, []llmclient.Message{{Role: llmclient.RoleUser, Text: "q3"}}, got)
	})

	t.Run("answered turns only", func(t *testing.T) {
		got := BuildMessages(history, current, true, 10)
		require.Equal(t, []llmclient.Message{
			{Role: llmclient.RoleUser, Text: "q0"},
			{Role: llmclient.RoleModel, Text: "a0"},
			{Role: llmclient.RoleUser, Text: "q2"},
			{Role: llmclient.RoleModel, Text: "a2"},
			{Role: llmclient.RoleUser, Text: "q3"},
		}, got)
	})

	t.Run("limited to last turns", func(t *testing.T) {
		got := BuildMessages(history, current, true, 1)
		require.Equal(t, []llmclient.Message{
			{Role: llmclient.RoleUser, Text: "q2"},
			{Role: llmclient.RoleModel, Text: "a2"},
			{Role: llmclient.RoleUser, Text: "q3"},
		}, got)
	})
}

func TestWriteSSEData(t *testing.T) {
	ss := NewStreamService(zap.NewNop())
	rec := httptest.NewRecorder()
	var mu sync.Mutex

	ss.Begin(rec)
	require.NoError(t, ss.WriteSSEData(context.Background(), rec, StreamData{Type: EventChunk, Content: "hi"}, &mu))
	require.NoError(t, ss.WriteSSEData(context.Background(), rec, StreamData{Type: EventEnd}, &mu))

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "data: {\"type\":\"chunk\",\"content\":\"hi\"}\n\ndata: {\"type\":\"end\"}\n\n", rec.Body.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ss.WriteSSEData(ctx, rec, StreamData{Type: EventChunk}, &mu), context.Canceled)
}
