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
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store persists chat sessions and their question/answer history.
type Store struct {
	DB     *sql.DB
	driver string
}

// NewStore opens the history database. driver is "postgres" or "sqlite";
// dsn is a connection string or a sqlite file path.
func NewStore(driver, dsn string) (*Store, error) {
	sqlDriver := "sqlite"
	if driver == "postgres" || driver == "pgx" {
		sqlDriver = "pgx"
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrDatabaseOperation, sqlDriver, err)
	}

	if sqlDriver == "sqlite" {
		// One writer; sqlite serialises anyway and this avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrDatabaseOperation, pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", apperrors.ErrDatabaseOperation, err)
	}
	return &Store{DB: db, driver: sqlDriver}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL DEFAULT '',
            created_at BIGINT NOT NULL,
            last_active BIGINT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active DESC)`,
		`CREATE TABLE IF NOT EXISTS history_entries (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            question TEXT NOT NULL,
            answer TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            created_at BIGINT NOT NULL,
            answered_at BIGINT,
            UNIQUE (session_id, position)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_history_entries_status ON history_entries(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema statement: %v", apperrors.ErrDatabaseOperation, err)
		}
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context) (uuid.UUID, error) {
	sessionID := uuid.New()
	now := time.Now()
	initialTitle := DefaultSessionTitle(now)

	query := s.rebind(`INSERT INTO sessions (id, title, created_at, last_active) VALUES (?, ?, ?, ?)`)
	if _, err := s.DB.ExecContext(ctx, query, sessionID.String(), initialTitle, toMillis(now), toMillis(now)); err != nil {
		return uuid.Nil, fmt.Errorf("%w: create session: %v", apperrors.ErrDatabaseOperation, err)
	}
	return sessionID, nil
}

// DefaultSessionTitle is the title a session carries until its first question.
func DefaultSessionTitle(t time.Time) string {
	return fmt.Sprintf("Chat from %s", t.Format("January 2, 2006"))
}

const sessionColumns = `s.id, s.title, s.created_at, s.last_active,
        (SELECT COUNT(*) FROM history_entries h WHERE h.session_id = s.id)`

func scanSession(row interface{ Scan(...any) error }) (types.Session, error) {
	var sess types.Session
	var id string
	var createdAt, lastActive int64
	if err := row.Scan(&id, &sess.Title, &createdAt, &lastActive, &sess.EntryCount); err != nil {
		return types.Session{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return types.Session{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	sess.ID = parsed
	sess.CreatedAt = fromMillis(createdAt)
	sess.LastActive = fromMillis(lastActive)
	return sess, nil
}

func (s *Store) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (types.Session, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions s WHERE s.id = ?`)
	sess, err := scanSession(s.DB.QueryRowContext(ctx, query, sessionID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s", sessionID)
		}
		return types.Session{}, fmt.Errorf("%w: get session: %v", apperrors.ErrDatabaseOperation, err)
	}
	return sess, nil
}

func (s *Store) GetSessions(ctx context.Context) ([]types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.last_active DESC, s.created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", apperrors.ErrDatabaseOperation, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", apperrors.ErrDatabaseOperation, err)
	}
	return sessions, nil
}

func (s *Store) UpdateSessionTitle(ctx context.Context, sessionID uuid.UUID, title string) error {
	query := s.rebind(`UPDATE sessions SET title = ? WHERE id = ?`)
	res, err := s.DB.ExecContext(ctx, query, title, sessionID.String())
	if err != nil {
		return fmt.Errorf("%w: update title: %v", apperrors.ErrDatabaseOperation, err)
	}
	return requireAffected(res, "session", sessionID)
}

// GetStaleSessions returns sessions with no activity since cutoff.
func (s *Store) GetStaleSessions(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := s.rebind(`SELECT id FROM sessions WHERE last_active < ?`)
	rows, err := s.DB.QueryContext(ctx, query, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("%w: stale sessions: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan stale session: %v", apperrors.ErrDatabaseOperation, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		ids = append(ids, parsed)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	n, err := s.DeleteSessions(ctx, []uuid.UUID{sessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s", sessionID)
	}
	return nil
}

// DeleteSessions removes the sessions and their history in one transaction
// and reports how many sessions were deleted.
func (s *Store) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", apperrors.ErrDatabaseOperation, err)
	}
	defer tx.Rollback()

	var where string
	var args []any
	if s.driver == "pgx" {
		where = "= ANY($1)"
		args = []any{pq.Array(strIDs)}
	} else {
		where = "IN (" + placeholders(len(strIDs)) + ")"
		for _, id := range strIDs {
			args = append(args, id)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries WHERE session_id `+where, args...); err != nil {
		return 0, fmt.Errorf("%w: delete history: %v", apperrors.ErrDatabaseOperation, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete sessions: %v", apperrors.ErrDatabaseOperation, err)
	}
	deleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", apperrors.ErrDatabaseOperation, err)
	}
	return deleted, nil
}

func requireAffected(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return apperrors.WrapErrorf(apperrors.ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
