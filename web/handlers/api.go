package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetHistory returns the cookie session's entries.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	session := currentSession(c)
	entries, err := h.chat.History(c.Request.Context(), session.ID)
	if err != nil {
		respondWithServiceError(c, err, h.logger, zap.String("session_id", session.ID.String()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "entries": entries})
}

// ClearHistory deletes the cookie session's entries.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	session := currentSession(c)
	deleted, err := h.chat.ClearHistory(c.Request.Context(), session.ID)
	if err != nil {
		respondWithServiceError(c, err, h.logger, zap.String("session_id", session.ID.String()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Ask answers a question synchronously and returns the stored entry.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	session := currentSession(c)
	entry, err := h.chat.Ask(c.Request.Context(), session.ID, req.Question)
	if err != nil {
		respondWithServiceError(c, err, h.logger, zap.String("session_id", session.ID.String()))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListSessions returns all sessions by recent activity.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.GetSessionsForSidebar(c.Request.Context())})
}
