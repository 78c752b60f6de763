package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taskboard/internal/api/auth"
	"taskboard/internal/api/middleware"
	"taskboard/internal/config"
	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/notify"
	"taskboard/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrTaskNotFound 任务不存在，或存在但属于其他用户（对调用者不可区分）。
var ErrTaskNotFound = errors.New("task not found")

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端（登录限流）、邮件通知器以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	mailer    notify.Mailer
	taskStore TaskStore
}

// TaskStore 是任务持久化的抽象。所有读写都带 owner 条件：
// 其他用户的任务与不存在的任务在这里不可区分。
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	ListByOwner(ctx context.Context, ownerID uint, f TaskFilter) ([]model.Task, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Task, error)
	Save(ctx context.Context, task *model.Task) error
	DeleteByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Task, error)
}

// TaskFilter 列表查询条件。
type TaskFilter struct {
	Completed *bool  // nil 表示不过滤
	SortField string // 数据库列名，空表示不排序
	SortDesc  bool
	Limit     int // <= 0 表示不限制
	Skip      int
}

type dbTaskStore struct {
	db *gorm.DB
}

func (s dbTaskStore) Create(ctx context.Context, task *model.Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s dbTaskStore) ListByOwner(ctx context.Context, ownerID uint, f TaskFilter) ([]model.Task, error) {
	tasks := []model.Task{} // keep JSON output [] instead of null
	query := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if f.Completed != nil {
		query = query.Where("completed = ?", *f.Completed)
	}
	if f.SortField != "" {
		order := f.SortField
		if f.SortDesc {
			order += " DESC"
		}
		query = query.Order(order)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Skip > 0 {
		query = query.Offset(f.Skip)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s dbTaskStore) GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s dbTaskStore) Save(ctx context.Context, task *model.Task) error {
	return s.db.WithContext(ctx).Save(task).Error
}

func (s dbTaskStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Task, error) {
	task, err := s.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（登录限流与健康检查）
// 3. 初始化邮件通知器与 Gin 路由引擎
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
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.SessionToken{}, &model.Task{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	mailer := notify.NewEmailNotifier(&cfg.Email, logger)
	limiter := ratelimit.NewLimiter(rdb, cfg.App.LoginRateLimit, cfg.App.LoginRateWindow)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(db, cfg.Security.JWTSecret, cfg.App.TokenTTL, mailer, limiter, logger),
		mailer:    mailer,
		taskStore: dbTaskStore{db: db},
	}
	s.registerRoutes(limiter)
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与 Redis 连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(limiter *ratelimit.Limiter) {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	// 凭证类接口带限流
	credentials := s.router.Group("/")
	credentials.Use(middleware.LoginRateLimit(limiter, s.logger))
	credentials.POST("/users", s.auth.Signup)
	credentials.POST("/users/login", s.auth.Login)

	// 头像读取是公开的二进制端点
	s.router.GET("/users/:id/avatar", s.handleGetAvatar)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.db, s.cfg.Security.JWTSecret))
	authed.POST("/users/logout", s.auth.Logout)
	authed.POST("/users/logoutAll", s.auth.LogoutAll)
	authed.GET("/users/me", s.handleGetProfile)
	authed.PATCH("/users/me", s.handleUpdateProfile)
	authed.DELETE("/users/me", s.handleDeleteAccount)
	authed.POST("/users/me/avatar", s.handleUploadAvatar)
	authed.DELETE("/users/me/avatar", s.handleDeleteAvatar)
	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PATCH("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
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
