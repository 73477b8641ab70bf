package middleware

import (
	"context"
	"log/slog"
	"time"

	"tasknotes/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionToucher extends the lifetime of an active session.
type SessionToucher interface {
	Touch(ctx context.Context, id session.Identity) error
}

// SessionActivityMiddleware refreshes the session TTL after each authenticated request.
func SessionActivityMiddleware(sessions SessionToucher, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		id, ok := IdentityFrom(c)
		if !ok || id.SessionID == "" {
			return
		}
		// 登出请求已撤销会话，不再续期
		if c.GetBool(sessionRevokedKey) {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
		defer cancel()

		if err := sessions.Touch(ctx, id); err != nil && logger != nil {
			logger.Warn("touch session failed", slog.String("error", err.Error()))
		}
	}
}

const sessionRevokedKey = "session_revoked"

// MarkRevoked tells SessionActivityMiddleware not to refresh the session.
func MarkRevoked(c *gin.Context) {
	c.Set(sessionRevokedKey, true)
}
