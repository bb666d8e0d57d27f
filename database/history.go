package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "askme/errors"
	"askme/web/types"

	"github.com/google/uuid"
)

const entryColumns = `id, session_id, position, question, answer, status, created_at, answered_at`

func scanEntry(row interface{ Scan(...any) error }) (types.HistoryEntry, error) {
	var e types.HistoryEntry
	var id, sessionID string
	var createdAt int64
	var answeredAt sql.NullInt64
	if err := row.Scan(&id, &sessionID, &e.Position, &e.Question, &e.Answer, &e.Status, &createdAt, &answeredAt); err != nil {
		return types.HistoryEntry{}, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return types.HistoryEntry{}, fmt.Errorf("invalid entry id %q: %w", id, err)
	}
	if e.SessionID, err = uuid.Parse(sessionID); err != nil {
		return types.HistoryEntry{}, fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	e.CreatedAt = fromMillis(createdAt)
	if answeredAt.Valid {
		t := fromMillis(answeredAt.Int64)
		e.AnsweredAt = &t
	}
	return e, nil
}

// AppendEntry stores question as the next pending entry of the session.
// Positions are contiguous from 0 within a session.
func (s *Store) AppendEntry(ctx context.Context, sessionID uuid.UUID, question string) (types.HistoryEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: begin: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE sessions SET last_active = ? WHERE id = ?`), toMillis(now), sessionID.String())
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: touch session: %v", apperrors.ErrDatabaseOperation, err)
	}
	if err := requireAffected(res, "session", sessionID); err != nil {
		return types.HistoryEntry{}, err
	}

	var position int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(position), -1) + 1 FROM history_entries WHERE session_id = ?`),
		sessionID.String(),
	).Scan(&position)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: next position: %v", apperrors.ErrDatabaseOperation, err)
	}

	entry := types.HistoryEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Position:  position,
		Question:  question,
		Status:    types.StatusPending,
		CreatedAt: fromMillis(toMillis(now)),
	}
	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO history_entries (id, session_id, position, question, answer, status, created_at)
            VALUES (?, ?, ?, ?, '', ?, ?)`),
		entry.ID.String(), sessionID.String(), entry.Position, entry.Question, entry.Status, toMillis(now),
	)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: insert entry: %v", apperrors.ErrDatabaseOperation, err)
	}

	if err := tx.Commit(); err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: commit: %v", apperrors.ErrDatabaseOperation, err)
	}
	return entry, nil
}

// SetAnswer records the final answer of an entry. Only answered/failed are
// accepted, and the answer must be non-empty.
func (s *Store) SetAnswer(ctx context.Context, entryID uuid.UUID, answer, status string) (types.HistoryEntry, error) {
	if status != types.StatusAnswered && status != types.StatusFailed {
		return types.HistoryEntry{}, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "status %q", status)
	}
	if answer == "" {
		return types.HistoryEntry{}, apperrors.WrapError(apperrors.ErrInvalidInput, "empty answer")
	}

	now := time.Now()
	res, err := s.DB.ExecContext(ctx,
		s.rebind(`UPDATE history_entries SET answer = ?, status = ?, answered_at = ? WHERE id = ?`),
		answer, status, toMillis(now), entryID.String(),
	)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("%w: set answer: %v", apperrors.ErrDatabaseOperation, err)
	}
	if err := requireAffected(res, "entry", entryID); err != nil {
		return types.HistoryEntry{}, err
	}
	return s.GetEntry(ctx, entryID)
}

func (s *Store) GetEntry(ctx context.Context, entryID uuid.UUID) (types.HistoryEntry, error) {
	query := s.rebind(`SELECT ` + entryColumns + ` FROM history_entries WHERE id = ?`)
	entry, err := scanEntry(s.DB.QueryRowContext(ctx, query, entryID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.HistoryEntry{}, apperrors.WrapErrorf(apperrors.ErrNotFound, "entry %s", entryID)
		}
		return types.HistoryEntry{}, fmt.Errorf("%w: get entry: %v", apperrors.ErrDatabaseOperation, err)
	}
	return entry, nil
}

// GetHistory returns the entries of a session in question order.
func (s *Store) GetHistory(ctx context.Context, sessionID uuid.UUID) ([]types.HistoryEntry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM history_entries WHERE session_id = ? ORDER BY position ASC`,
		sessionID.String())
}

func (s *Store) GetPendingEntries(ctx context.Context, sessionID uuid.UUID) ([]types.HistoryEntry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM history_entries WHERE session_id = ? AND status = ? ORDER BY position ASC`,
		sessionID.String(), types.StatusPending)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]types.HistoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	entries := []types.HistoryEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", apperrors.ErrDatabaseOperation, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", apperrors.ErrDatabaseOperation, err)
	}
	return entries, nil
}

// FailPendingEntries closes every pending entry with answer. It runs at
// startup, when no answer can still be on its way.
func (s *Store) FailPendingEntries(ctx context.Context, answer string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		s.rebind(`UPDATE history_entries SET answer = ?, status = ?, answered_at = ? WHERE status = ?`),
		answer, types.StatusFailed, toMillis(time.Now()), types.StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: fail pending: %v", apperrors.ErrDatabaseOperation, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearHistory deletes every entry of the session but keeps the session.
func (s *Store) ClearHistory(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM history_entries WHERE session_id = ?`), sessionID.String())
	if err != nil {
		return 0, fmt.Errorf("%w: clear history: %v", apperrors.ErrDatabaseOperation, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
