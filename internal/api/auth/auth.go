package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tasknotes/internal/api/middleware"
	"tasknotes/internal/apperr"
	"tasknotes/internal/ledger"
	"tasknotes/internal/model"
	"tasknotes/internal/pkg/metrics"
	"tasknotes/internal/pkg/notify"
	"tasknotes/internal/session"

	"github.com/gin-gonic/gin"
)

// AccountStore 是注册与登录所需的账户操作。
type AccountStore interface {
	Register(ctx context.Context, in ledger.RegisterInput) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
}

// SessionStore 是登录与登出所需的会话操作。
type SessionStore interface {
	Create(ctx context.Context, userID uint) (*session.Session, error)
	Revoke(ctx context.Context, id session.Identity) error
}

// CookieOptions controls the session cookie written on login.
type CookieOptions struct {
	Secure bool
	TTL    time.Duration
}

// Handler 提供注册、登录与登出接口。
type Handler struct {
	accounts AccountStore
	sessions SessionStore
	mailer   notify.Notifier
	cookie   CookieOptions
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。mailer 可以为 nil。
func NewHandler(accounts AccountStore, sessions SessionStore, mailer notify.Notifier, cookie CookieOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		mailer:   mailer,
		cookie:   cookie,
		logger:   logger,
	}
}

type registerRequest struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

type loginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Redirect string `json:"redirect"`
}

// RegisterForm 返回注册表单字段。
func (h *Handler) RegisterForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": []string{"username", "email", "password", "confirm_password"}})
}

// Register 创建新用户。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), ledger.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("register", "rejected").Inc()
		h.fail(c, "register", err, gin.H{"username": req.Username, "email": req.Email})
		return
	}
	metrics.AuthEventsTotal.WithLabelValues("register", "ok").Inc()

	if h.mailer != nil {
		if err := h.mailer.SendWelcome(c.Request.Context(), user.Email, user.Username); err != nil {
			h.logger.Warn("send welcome email failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("user registered", slog.String("username", user.Username), slog.String("email", user.Email))
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Your account has been created! You can now log in.",
		"redirect": "/login",
	})
}

// LoginForm 返回登录表单字段。
func (h *Handler) LoginForm(c *gin.Context) {
	resp := gin.H{"fields": []string{"email", "password"}}
	if next := safeNext(c.Query("next")); next != "" {
		resp["next"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// Login 校验用户，开启会话并写入 Cookie。
//
// ?next= 只接受站内相对路径，否则跳转到 /dashboard。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("login", "rejected").Inc()
		h.fail(c, "login", err, gin.H{"email": req.Email})
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		metrics.AuthEventsTotal.WithLabelValues("login", "error").Inc()
		h.fail(c, "login", err, nil)
		return
	}
	metrics.AuthEventsTotal.WithLabelValues("login", "ok").Inc()

	maxAge := int(h.cookie.TTL / time.Second)
	if maxAge <= 0 {
		maxAge = int(time.Until(sess.ExpiresAt) / time.Second)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sess.Token, maxAge, "/", "", h.cookie.Secure, true)

	redirect := safeNext(c.Query("next"))
	if redirect == "" {
		redirect = "/dashboard"
	}
	h.logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, tokenResponse{Token: sess.Token, Redirect: redirect})
}

// Logout 撤销当前会话并清除 Cookie。
func (h *Handler) Logout(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required", "redirect": "/login"})
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), id); err != nil {
		metrics.AuthEventsTotal.WithLabelValues("logout", "error").Inc()
		h.fail(c, "logout", err, nil)
		return
	}
	middleware.MarkRevoked(c)
	metrics.AuthEventsTotal.WithLabelValues("logout", "ok").Inc()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cookie.Secure, true)
	h.logger.Info("user logged out", slog.Uint64("user_id", uint64(id.UserID)))
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "redirect": "/"})
}

// fail 将错误映射为状态码。已知错误返回其提示文本，其余记录日志并返回通用信息。
func (h *Handler) fail(c *gin.Context, op string, err error, echo gin.H) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	resp := gin.H{"error": apperr.Message(err, "internal error")}
	for k, v := range echo {
		resp[k] = v
	}
	c.JSON(status, resp)
}

// safeNext 只保留形如 "/path" 的站内地址。
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}
