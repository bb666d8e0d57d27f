package middleware

import (
	"context"
	"net/http"

	"askme/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SessionCookieName = "askme_session"
const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// Context keys set by SessionMiddleware.
const (
	SessionIDKey = "sessionID"
	SessionKey   = "session"
)

// SessionResolver maps a cookie value to a session, creating one if needed.
type SessionResolver interface {
	ResolveSession(ctx context.Context, cookie string) (types.Session, bool, error)
}

// SetSessionCookie points the browser at sessionID.
func SetSessionCookie(c *gin.Context, sessionID uuid.UUID, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, sessionID.String(), CookieMaxAge, "/", "", secure, true)
}

func SessionMiddleware(resolver SessionResolver, secure bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A missing cookie reads as "" and gets a new session like a bad one.
		cookie, _ := c.Cookie(SessionCookieName)

		session, created, err := resolver.ResolveSession(c.Request.Context(), cookie)
		if err != nil {
			logger.Error("Failed to resolve session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
			return
		}
		if created {
			SetSessionCookie(c, session.ID, secure)
		}

		c.Set(SessionIDKey, session.ID)
		c.Set(SessionKey, session)
		c.Next()
	}
}
