package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "askme/errors"
	"askme/llmclient"
	"askme/web/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatOptions tunes how questions are sent to the model.
type ChatOptions struct {
	RequestTimeout      time.Duration
	IncludeHistory      bool
	HistoryContextTurns int
	TitleMaxLength      int
}

// ChatService owns the question/answer lifecycle of a session: a question
// is stored as a pending entry, answered in the background, and the answer
// (or an error text) replaces the empty answer. A session has at most one
// question in flight.
type ChatService struct {
	store    HistoryStore
	provider llmclient.Provider
	logger   *zap.Logger
	opts     ChatOptions

	mu       sync.Mutex
	inFlight map[uuid.UUID]*turn // by session
	byEntry  map[uuid.UUID]*turn
	wg       sync.WaitGroup
}

func NewChatService(store HistoryStore, provider llmclient.Provider, opts ChatOptions, logger *zap.Logger) *ChatService {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	return &ChatService{
		store:    store,
		provider: provider,
		logger:   logger,
		opts:     opts,
		inFlight: make(map[uuid.UUID]*turn),
		byEntry:  make(map[uuid.UUID]*turn),
	}
}

// reserved marks a session whose question is being stored but not yet running.
var reserved = &turn{}

// Submit stores question as the session's next entry and starts answering it.
// The returned entry is pending.
func (cs *ChatService) Submit(ctx context.Context, sessionID uuid.UUID, question string) (types.HistoryEntry, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return types.HistoryEntry{}, apperrors.WrapError(apperrors.ErrInvalidInput, "question is empty")
	}

	cs.mu.Lock()
	if _, busy := cs.inFlight[sessionID]; busy {
		cs.mu.Unlock()
		return types.HistoryEntry{}, apperrors.WrapErrorf(apperrors.ErrBusy, "session %s", sessionID)
	}
	cs.inFlight[sessionID] = reserved
	cs.mu.Unlock()

	// Pending entries nobody is answering were left by an earlier process.
	cs.closeAbandoned(ctx, sessionID)

	entry, err := cs.store.AppendEntry(ctx, sessionID, question)
	if err != nil {
		cs.release(sessionID, nil)
		return types.HistoryEntry{}, err
	}

	t := newTurn(entry)
	cs.mu.Lock()
	cs.inFlight[sessionID] = t
	cs.byEntry[entry.ID] = t
	cs.mu.Unlock()

	cs.logger.Info("Question submitted",
		zap.String("session_id", sessionID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.Int("position", entry.Position))

	if entry.Position == 0 {
		cs.setTitle(ctx, sessionID, question)
	}

	cs.wg.Add(1)
	go cs.answer(t)

	return entry, nil
}

func (cs *ChatService) closeAbandoned(ctx context.Context, sessionID uuid.UUID) {
	pending, err := cs.store.GetPendingEntries(ctx, sessionID)
	if err != nil {
		cs.logger.Warn("Failed to check for abandoned entries", zap.Error(err), zap.String("session_id", sessionID.String()))
		return
	}
	for _, entry := range pending {
		if _, err := cs.store.SetAnswer(ctx, entry.ID, types.ErrorAnswer, types.StatusFailed); err != nil {
			cs.logger.Warn("Failed to close abandoned entry", zap.Error(err), zap.String("entry_id", entry.ID.String()))
		}
	}
}

func (cs *ChatService) setTitle(ctx context.Context, sessionID uuid.UUID, question string) {
	title := SessionTitle(question, cs.opts.TitleMaxLength)
	if title == "" {
		return
	}
	if err := cs.store.UpdateSessionTitle(ctx, sessionID, title); err != nil {
		cs.logger.Warn("Failed to set session title", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
}

// answer runs outside any request: closing the page does not cancel it.
func (cs *ChatService) answer(t *turn) {
	defer cs.wg.Done()
	entry := t.entry
	sessionID := entry.SessionID

	ctx, cancel := context.WithTimeout(context.Background(), cs.opts.RequestTimeout)
	defer cancel()

	messages := []llmclient.Message{{Role: llmclient.RoleUser, Text: entry.Question}}
	if cs.opts.IncludeHistory {
		history, err := cs.store.GetHistory(ctx, sessionID)
		if err != nil {
			cs.logger.Warn("Failed to load history for context, sending question alone", zap.Error(err))
		} else {
			messages = BuildMessages(history, entry, true, cs.opts.HistoryContextTurns)
		}
	}

	start := time.Now()
	text, err := cs.provider.Generate(ctx, messages, t.publish)

	answer, status := text, types.StatusAnswered
	switch {
	case errors.Is(err, llmclient.ErrNoAnswer):
		cs.logger.Warn("Model returned no answer",
			zap.Error(err),
			zap.String("session_id", sessionID.String()),
			zap.String("entry_id", entry.ID.String()))
		answer = types.NoResponseAnswer
	case err != nil:
		cs.logger.Error("Error fetching answer",
			zap.Error(err),
			zap.String("session_id", sessionID.String()),
			zap.String("entry_id", entry.ID.String()))
		answer, status = types.ErrorAnswer, types.StatusFailed
	case strings.TrimSpace(text) == "":
		answer = types.NoResponseAnswer
	}

	// Use a fresh context: the answer must be stored even if generation timed out.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer saveCancel()

	final, saveErr := cs.store.SetAnswer(saveCtx, entry.ID, answer, status)
	if saveErr != nil {
		cs.logger.Error("Failed to save answer - CONVERSATION DATA MAY BE LOST",
			zap.Error(saveErr),
			zap.String("session_id", sessionID.String()),
			zap.String("entry_id", entry.ID.String()))
		final = entry
		final.Answer = answer
		final.Status = status
	} else {
		cs.logger.Info("Answer stored",
			zap.String("session_id", sessionID.String()),
			zap.String("entry_id", entry.ID.String()),
			zap.String("status", status),
			zap.String("provider", cs.provider.Name()),
			zap.Duration("elapsed", time.Since(start)))
	}

	cs.release(sessionID, t)
	t.finish(final)
}

func (cs *ChatService) release(sessionID uuid.UUID, t *turn) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.inFlight, sessionID)
	if t != nil {
		delete(cs.byEntry, t.entry.ID)
	}
}

// Subscribe follows the answer of entryID, which must belong to sessionID.
// Finished entries yield a subscription that is already complete.
func (cs *ChatService) Subscribe(ctx context.Context, sessionID, entryID uuid.UUID) (*Subscription, error) {
	cs.mu.Lock()
	t, running := cs.byEntry[entryID]
	cs.mu.Unlock()

	if running {
		if t.entry.SessionID != sessionID {
			return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "entry %s", entryID)
		}
		replay, ch := t.subscribe()
		return &Subscription{Replay: replay, Chunks: ch, turn: t, ch: ch}, nil
	}

	entry, err := cs.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.SessionID != sessionID {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "entry %s", entryID)
	}
	// The answer may have landed between the map lookup and the read.
	return finishedSubscription(entry), nil
}

// Follow streams the answer of entryID to onChunk and returns the stored
// entry. An onChunk error stops delivery; the answer is still awaited.
func (cs *ChatService) Follow(ctx context.Context, sessionID, entryID uuid.UUID, onChunk llmclient.ChunkFunc) (types.HistoryEntry, error) {
	sub, err := cs.Subscribe(ctx, sessionID, entryID)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	defer sub.Close()

	forward := onChunk != nil
	if forward && sub.Replay != "" {
		forward = onChunk(sub.Replay) == nil
	}
	for forward {
		select {
		case chunk, ok := <-sub.Chunks:
			forward = ok && onChunk(chunk) == nil
		case <-ctx.Done():
			return types.HistoryEntry{}, ctx.Err()
		}
	}
	return sub.Wait(ctx)
}

// Ask submits question and waits for its stored answer.
func (cs *ChatService) Ask(ctx context.Context, sessionID uuid.UUID, question string) (types.HistoryEntry, error) {
	entry, err := cs.Submit(ctx, sessionID, question)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	return cs.Follow(ctx, sessionID, entry.ID, nil)
}

// History returns the session's entries in order.
func (cs *ChatService) History(ctx context.Context, sessionID uuid.UUID) ([]types.HistoryEntry, error) {
	return cs.store.GetHistory(ctx, sessionID)
}

// ClearHistory deletes the session's entries unless an answer is in flight.
func (cs *ChatService) ClearHistory(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := cs.WithSession(sessionID, func() error {
		var err error
		n, err = cs.store.ClearHistory(ctx, sessionID)
		return err
	})
	return n, err
}

// WithSession runs fn with sessionID reserved, so no question can be
// submitted for it until fn returns. It returns ErrBusy without calling fn
// when the session already has a question in flight.
func (cs *ChatService) WithSession(sessionID uuid.UUID, fn func() error) error {
	cs.mu.Lock()
	if _, busy := cs.inFlight[sessionID]; busy {
		cs.mu.Unlock()
		return apperrors.WrapErrorf(apperrors.ErrBusy, "session %s", sessionID)
	}
	cs.inFlight[sessionID] = reserved
	cs.mu.Unlock()

	defer cs.release(sessionID, nil)
	return fn()
}

// InFlight reports whether sessionID has a question being answered.
func (cs *ChatService) InFlight(sessionID uuid.UUID) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.inFlight[sessionID]
	return ok
}

// Shutdown waits for in-flight answers to be stored.
func (cs *ChatService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight answers: %w", ctx.Err())
	}
}
