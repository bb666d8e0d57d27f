package handlers

import (
	"net/http"

	"askme/web/middleware"
	"askme/web/services"
	"askme/web/templates/pages"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HomeHandler struct {
	sessions *services.SessionService
	logger   *zap.Logger
}

func NewHomeHandler(sessions *services.SessionService, logger *zap.Logger) *HomeHandler {
	return &HomeHandler{sessions: sessions, logger: logger}
}

func (h *HomeHandler) Home(c *gin.Context) {
	ctx := c.Request.Context()
	current := c.MustGet(middleware.SessionIDKey).(uuid.UUID)

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := pages.HomePage(h.sessions.GetSessionsForSidebar(ctx), current).Render(ctx, c.Writer); err != nil {
		h.logger.Error("Failed to render home page", zap.Error(err))
	}
}
