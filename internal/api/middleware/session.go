package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tasknotes/internal/apperr"
	"tasknotes/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "session"

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

// SessionResolver turns a token into the caller's identity.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Identity, error)
}

// AuthMiddleware 从 Cookie 或 Authorization 头读取会话令牌，解析出身份并写入上下文。
// 未登录时返回 401 并提示跳转到登录页。
func AuthMiddleware(sessions SessionResolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			abortLoginRequired(c)
			return
		}

		id, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, apperr.ErrAuth) {
				if logger != nil {
					logger.Error("resolve session failed", slog.String("error", err.Error()))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			abortLoginRequired(c)
			return
		}

		c.Set(identityKey, id)
		c.Set(userIDKey, id.UserID)
		c.Next()
	}
}

// OptionalAuth 解析会话但不强制登录，用于首页。
func OptionalAuth(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := TokenFromRequest(c); token != "" {
			if id, err := sessions.Resolve(c.Request.Context(), token); err == nil {
				c.Set(identityKey, id)
				c.Set(userIDKey, id.UserID)
			}
		}
		c.Next()
	}
}

// TokenFromRequest prefers the Bearer header over the session cookie.
func TokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// IdentityFrom returns the identity set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (session.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return session.Identity{}, false
	}
	id, ok := v.(session.Identity)
	return id, ok
}

// SetIdentity stores id on the context. Tests use it to skip the session store.
func SetIdentity(c *gin.Context, id session.Identity) {
	c.Set(identityKey, id)
	c.Set(userIDKey, id.UserID)
}

func abortLoginRequired(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required", "redirect": "/login"})
}
