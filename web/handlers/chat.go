package handlers

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"askme/web/middleware"
	"askme/web/services"
	"askme/web/templates/components"
	"askme/web/templates/pages"
	"askme/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRemover deletes a session with its history.
type SessionRemover interface {
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

type ChatHandler struct {
	chat         *services.ChatService
	sessions     *services.SessionService
	stream       *services.StreamService
	remover      SessionRemover
	renderer     components.AnswerRenderer
	cookieSecure bool
	logger       *zap.Logger
}

type ChatRequest struct {
	Message string `json:"message" form:"message"`
}

type AskRequest struct {
	Question string `json:"question" form:"question"`
}

type ChatResponse struct {
	EntryID  uuid.UUID `json:"entry_id"`
	Position int       `json:"position"`
	HTML     string    `json:"html"`
}

func NewChatHandler(
	chat *services.ChatService,
	sessions *services.SessionService,
	stream *services.StreamService,
	remover SessionRemover,
	renderer components.AnswerRenderer,
	cookieSecure bool,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		chat:         chat,
		sessions:     sessions,
		stream:       stream,
		remover:      remover,
		renderer:     renderer,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

func currentSession(c *gin.Context) types.Session {
	return c.MustGet(middleware.SessionKey).(types.Session)
}

// Index shows the chat page of the cookie session.
func (h *ChatHandler) Index(c *gin.Context) {
	h.renderChat(c, currentSession(c))
}

// LoadSession switches the browser to a stored session.
func (h *ChatHandler) LoadSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid session ID")
		return
	}

	session, shouldCreate, err := h.sessions.ValidateAndGetSession(c.Request.Context(), sessionID)
	if err != nil {
		c.String(http.StatusInternalServerError, "Could not load session.")
		return
	}
	if shouldCreate {
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}

	middleware.SetSessionCookie(c, session.ID, h.cookieSecure)
	h.renderChat(c, *session)
}

func (h *ChatHandler) renderChat(c *gin.Context, session types.Session) {
	ctx := c.Request.Context()

	entries, err := h.chat.History(ctx, session.ID)
	if err != nil {
		h.logger.Error("Failed to load history", zap.Error(err), zap.String("session_id", session.ID.String()))
		c.String(http.StatusInternalServerError, "Could not load conversation.")
		return
	}

	data := pages.ChatPageData{
		Session:  session,
		Sessions: h.sessions.GetSessionsForSidebar(ctx),
		Entries:  entries,
		Renderer: h.renderer,
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := pages.ChatPage(data).Render(ctx, c.Writer); err != nil {
		h.logger.Error("Failed to render chat page", zap.Error(err))
	}
}

// NewSession starts an empty conversation.
func (h *ChatHandler) NewSession(c *gin.Context) {
	session, err := h.sessions.CreateSession(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, "Could not create session.")
		return
	}
	middleware.SetSessionCookie(c, session.ID, h.cookieSecure)
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// DeleteSession removes a stored session. Deleting the cookie session makes
// the next request start a fresh one.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid session ID")
		return
	}
	if err := h.remover.DeleteSession(c.Request.Context(), sessionID); err != nil {
		respondWithServiceError(c, err, h.logger, zap.String("session_id", sessionID.String()))
		return
	}
	h.logger.Info("Session deleted by user", zap.String("session_id", sessionID.String()))
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// SendMessage stores the question and returns the markup for the question
// with its loading answer. The answer arrives on StreamResponse.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Failed to bind chat request", zap.Error(err))
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	session := currentSession(c)
	ctx := c.Request.Context()

	entry, err := h.chat.Submit(ctx, session.ID, req.Message)
	if err != nil {
		respondWithServiceError(c, err, h.logger, zap.String("session_id", session.ID.String()))
		return
	}

	var buf bytes.Buffer
	if err := components.ConversationEntry(entry, h.renderer).Render(ctx, &buf); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "Could not render message", h.logger)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		EntryID:  entry.ID,
		Position: entry.Position,
		HTML:     buf.String(),
	})
}

// StreamResponse follows an entry's answer as server-sent events.
func (h *ChatHandler) StreamResponse(c *gin.Context) {
	session := currentSession(c)
	ctx := c.Request.Context()
	var writeMu sync.Mutex

	write := func(data services.StreamData) error {
		return h.stream.WriteSSEData(ctx, c.Writer, data, &writeMu)
	}

	h.stream.Begin(c.Writer)

	entryID, err := uuid.Parse(c.Query("entry_id"))
	if err != nil {
		write(services.StreamData{Type: services.EventError, Content: "Invalid entry ID"})
		write(services.StreamData{Type: services.EventEnd})
		return
	}

	if err := write(services.StreamData{Type: services.EventConnectionEstablished}); err != nil {
		return
	}

	entry, err := h.chat.Follow(ctx, session.ID, entryID, func(chunk string) error {
		return write(services.StreamData{Type: services.EventChunk, Content: chunk})
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("Client disconnected, answer continues in background",
				zap.String("session_id", session.ID.String()),
				zap.String("entry_id", entryID.String()))
			return
		}
		h.logger.Warn("Cannot stream entry",
			zap.Error(err),
			zap.String("session_id", session.ID.String()),
			zap.String("entry_id", entryID.String()))
		write(services.StreamData{Type: services.EventError, Content: "Entry not found"})
		write(services.StreamData{Type: services.EventEnd})
		return
	}

	// A finished turn whose entry is still pending lost its answer on save.
	if entry.IsPending() {
		h.logger.Warn("Entry has no stored answer",
			zap.String("session_id", session.ID.String()),
			zap.String("entry_id", entryID.String()))
		write(services.StreamData{Type: services.EventError, Content: "The answer could not be saved"})
		write(services.StreamData{Type: services.EventEnd})
		return
	}

	var buf bytes.Buffer
	if err := components.AnswerBubble(entry, h.renderer).Render(ctx, &buf); err != nil {
		h.logger.Error("Failed to render answer", zap.Error(err))
	}
	if err := write(services.StreamData{Type: services.EventAnswer, Content: buf.String()}); err != nil {
		return
	}
	if err := write(services.StreamData{Type: services.EventEnd}); err != nil {
		h.logger.Debug("Failed to send end message", zap.Error(err))
	}
}
