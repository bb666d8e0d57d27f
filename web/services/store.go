package services

import (
	"context"

	"askme/web/types"

	"github.com/google/uuid"
)

// HistoryStore is the persistence the chat services need. *database.Store
// implements it.
type HistoryStore interface {
	CreateSession(ctx context.Context) (uuid.UUID, error)
	GetSessionByID(ctx context.Context, sessionID uuid.UUID) (types.Session, error)
	GetSessions(ctx context.Context) ([]types.Session, error)
	UpdateSessionTitle(ctx context.Context, sessionID uuid.UUID, title string) error

	AppendEntry(ctx context.Context, sessionID uuid.UUID, question string) (types.HistoryEntry, error)
	SetAnswer(ctx context.Context, entryID uuid.UUID, answer, status string) (types.HistoryEntry, error)
	GetEntry(ctx context.Context, entryID uuid.UUID) (types.HistoryEntry, error)
	GetHistory(ctx context.Context, sessionID uuid.UUID) ([]types.HistoryEntry, error)
	GetPendingEntries(ctx context.Context, sessionID uuid.UUID) ([]types.HistoryEntry, error)
	ClearHistory(ctx context.Context, sessionID uuid.UUID) (int64, error)
}
