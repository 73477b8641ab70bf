package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tasknotes/internal/api/auth"
	"tasknotes/internal/api/middleware"
	"tasknotes/internal/config"
	"tasknotes/internal/ledger"
	"tasknotes/internal/model"
	"tasknotes/internal/pkg/cache"
	"tasknotes/internal/pkg/database"
	"tasknotes/internal/pkg/mailqueue"
	"tasknotes/internal/pkg/notify"
	"tasknotes/internal/pkg/ratelimit"
	"tasknotes/internal/pkg/summarize"
	"tasknotes/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、各账本以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	router   *gin.Engine
	auth     *auth.Handler
	sessions SessionStore
	accounts AccountReader
	tasks    TaskLedger
	notes    NoteLedger
	summary  summarize.Summarizer
	cache    SummaryCache
	limiter  RateLimiter
	mail     *mailqueue.Worker
}

// SessionStore 是路由中间件需要的会话操作。
type SessionStore interface {
	middleware.SessionResolver
	middleware.SessionToucher
}

type AccountReader interface {
	Get(ctx context.Context, id uint) (*model.User, error)
}

type TaskLedger interface {
	Today() model.Date
	CreateTask(ctx context.Context, owner uint, in ledger.TaskInput) (*model.Task, error)
	ListTasks(ctx context.Context, owner uint, key ledger.SortKey) ([]model.Task, error)
	GetTask(ctx context.Context, owner, id uint) (*model.Task, error)
	SetCompletion(ctx context.Context, owner, id uint, completed bool) (*model.Task, error)
	EditTask(ctx context.Context, owner, id uint, in ledger.TaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, owner, id uint) error
	Dashboard(ctx context.Context, owner uint) (*ledger.Dashboard, error)
}

type NoteLedger interface {
	CreateNote(ctx context.Context, owner uint, in ledger.NoteInput) (*model.Note, error)
	ListNotes(ctx context.Context, owner uint, order ledger.NoteOrder) ([]model.Note, error)
	GetNote(ctx context.Context, owner, id uint) (*model.Note, error)
	EditNote(ctx context.Context, owner, id uint, in ledger.NoteInput) (*model.Note, error)
	DeleteNote(ctx context.Context, owner, id uint) error
}

type SummaryCache interface {
	Get(ctx context.Context, content string) (string, bool, error)
	Set(ctx context.Context, content, summary string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接数据库并执行自动迁移
// 2. 连接 Redis
// 3. 组装账本、会话、摘要与限流组件
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := database.Open(cfg.Database, cfg.App.LogLevel == "debug")
	if err != nil {
		return nil, err
	}
	if err := ledger.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = database.Close(db)
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s, err := newServer(cfg, logger, db, rdb)
	if err != nil {
		_ = database.Close(db)
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

// newServer 在已建立的连接上组装服务器。
func newServer(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	sessions, err := session.NewStore(rdb, cfg.Security.JWTSecret, cfg.Security.SessionTTL)
	if err != nil {
		return nil, err
	}
	accounts := ledger.NewAccounts(db, cfg.Security.BcryptCost)
	mailQueue := mailqueue.New(rdb, logger)
	var mailer notify.Notifier
	if cfg.Email.WelcomeOnRegister {
		mailer = mailqueue.NewOutbox(mailQueue)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		auth: auth.NewHandler(accounts, sessions, mailer, auth.CookieOptions{
			Secure: cfg.Security.CookieSecure,
			TTL:    sessions.TTL(),
		}, logger),
		sessions: sessions,
		accounts: accounts,
		tasks:    ledger.NewTasks(db, cfg.Location()),
		notes:    ledger.NewNotes(db),
		summary:  summarize.New(cfg.Summarizer),
		cache:    cache.NewSummaryCache(rdb, cfg.Summarizer.CacheTTL),
		limiter: ratelimit.NewRedisRateLimiter(rdb, logger, "tasknotes:ratelimit:summarize:",
			cfg.Summarizer.RateLimit, cfg.Summarizer.RateBurst),
		mail: mailqueue.NewWorker(mailQueue, notify.NewEmailNotifier(&cfg.Email, logger), logger),
	}
	s.registerRoutes()
	return s, nil
}

// StartMailWorker 在后台投递队列中的邮件，ctx 取消后退出。
func (s *Server) StartMailWorker(ctx context.Context) {
	go func() {
		if err := s.mail.Run(ctx); err != nil {
			s.logger.Error("mail worker exited", slog.String("error", err.Error()))
		}
	}()
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if err := database.Close(s.db); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/", middleware.OptionalAuth(s.sessions), s.handleIndex)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.GET("/register", s.auth.RegisterForm)
	s.router.POST("/register", s.auth.Register)
	s.router.GET("/login", s.auth.LoginForm)
	s.router.POST("/login", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.SessionActivityMiddleware(s.sessions, s.logger))
	authed.Use(middleware.AuthMiddleware(s.sessions, s.logger))
	authed.GET("/logout", s.auth.Logout)
	authed.GET("/dashboard", s.handleDashboard)

	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.POST("/update_task_completion/:id", s.handleUpdateTaskCompletion)
	authed.GET("/edit_task/:id", s.handleGetTask)
	authed.POST("/edit_task/:id", s.handleEditTask)
	authed.POST("/delete_task/:id", s.handleDeleteTask)

	authed.GET("/notes", s.handleListNotes)
	authed.GET("/add_note", s.handleNoteForm)
	authed.POST("/add_note", s.handleCreateNote)
	authed.GET("/edit_note/:id", s.handleGetNote)
	authed.POST("/edit_note/:id", s.handleEditNote)
	authed.GET("/delete_note/:id", s.handleDeleteNote)
	authed.POST("/delete_note/:id", s.handleDeleteNote)

	authed.GET("/summery", s.handleSummaryPage)
	authed.POST("/api/summarize_note", s.handleSummarizeNote)
}

// handleIndex 首页：未登录显示登录/注册入口，已登录指向仪表盘。
func (s *Server) handleIndex(c *gin.Context) {
	_, authed := middleware.IdentityFrom(c)
	c.JSON(http.StatusOK, gin.H{"service": "tasknotes", "authenticated": authed})
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
