package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/api/middleware"
	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/notify"
	"taskboard/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// bcryptCost 与明文密码规则保持一致的哈希开销。
const bcryptCost = 8

// Handler 提供注册、登录与登出接口。
type Handler struct {
	db        *gorm.DB
	jwtSecret []byte
	tokenTTL  time.Duration
	mailer    notify.Mailer
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, jwtSecret string, tokenTTL time.Duration, mailer notify.Mailer, limiter *ratelimit.Limiter, logger *slog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &Handler{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		mailer:    mailer,
		limiter:   limiter,
		logger:    logger,
	}
}

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Age      *int   `json:"age" binding:"required,gte=0"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=7"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup 创建新用户并签发第一个会话 token。
//
// POST /users
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := CheckPasswordRules(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var existing model.User
	err := h.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already in use"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Name:     strings.TrimSpace(req.Name),
		Age:      *req.Age,
		Email:    email,
		Password: string(hash),
	}
	if err := h.db.Create(&user).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	// 欢迎邮件完全不影响注册结果
	h.sendAsync(func() error { return h.mailer.SendWelcome(user.Email, user.Name) })

	token, err := h.IssueToken(&user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("issue token failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	metrics.UserSignupsTotal.Inc()
	if h.logger != nil {
		h.logger.Info("user registered", slog.String("email", email))
	}
	c.JSON(http.StatusCreated, sessionResponse{User: &user, Token: token})
}

// Login 校验凭证并签发会话 token。
//
// POST /users/login
//
// 未知邮箱与密码错误返回完全相同的应答，避免账号枚举。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.findByCredentials(email, req.Password)
	if err != nil {
		metrics.LoginFailuresTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to login"})
		return
	}

	token, err := h.IssueToken(user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("issue token failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	// 成功登录后清掉该 IP 的失败计数
	if err := h.limiter.Reset(c.Request.Context(), "login:"+c.ClientIP()); err != nil && h.logger != nil {
		h.logger.Warn("rate limit reset failed", slog.String("error", err.Error()))
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("email", email))
	}
	c.JSON(http.StatusOK, sessionResponse{User: user, Token: token})
}

// Logout 吊销本次请求携带的那一个 token，其他会话不受影响。
//
// POST /users/logout
func (h *Handler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)
	token := middleware.CurrentToken(c)
	if user == nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "please authenticate"})
		return
	}

	if err := h.db.Where("user_id = ? AND token = ?", user.ID, token).Delete(&model.SessionToken{}).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("logout failed", slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll 吊销该用户的全部会话 token。
//
// POST /users/logoutAll
func (h *Handler) LogoutAll(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "please authenticate"})
		return
	}

	if err := h.db.Where("user_id = ?", user.ID).Delete(&model.SessionToken{}).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("logout all failed", slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out from all sessions"})
}

// findByCredentials 按邮箱 + 明文密码查找用户。
//
// 无论邮箱不存在还是密码不匹配都返回同一个错误。
func (h *Handler) findByCredentials(email, password string) (*model.User, error) {
	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, errors.New("unable to login")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errors.New("unable to login")
	}
	return &user, nil
}

// IssueToken 为用户签发一个新的会话 token 并持久化，支持逐个吊销。
func (h *Handler) IssueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", err
	}

	session := model.SessionToken{UserID: user.ID, Token: signed}
	if err := h.db.Create(&session).Error; err != nil {
		return "", err
	}
	return signed, nil
}

// CheckPasswordRules 校验明文密码规则：长度 >= 7 且不得包含 "password"。
func CheckPasswordRules(password string) error {
	if len(password) < 7 {
		return errors.New("password must be at least 7 characters")
	}
	if strings.Contains(strings.ToLower(password), "password") {
		return errors.New("password cannot contain 'password'")
	}
	return nil
}

func (h *Handler) sendAsync(send func() error) {
	if h.mailer == nil {
		return
	}
	go func() {
		if err := send(); err != nil {
			metrics.EmailSendFailuresTotal.Inc()
			if h.logger != nil {
				h.logger.Warn("send notification email failed", slog.String("error", err.Error()))
			}
		}
	}()
}
