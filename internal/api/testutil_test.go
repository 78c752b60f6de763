package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskboard/internal/api/auth"
	"taskboard/internal/config"
	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"
	"taskboard/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const testJWTSecret = "test_secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.SessionToken{}, &model.Task{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestServer 在 sqlite 内存库上组装一个完整的 Server，限流关闭。
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		App: config.AppConfig{
			TokenTTL:       7 * 24 * time.Hour,
			MaxAvatarBytes: 1000000,
		},
		Security: config.SecurityConfig{JWTSecret: testJWTSecret},
	}
	limiter := ratelimit.NewLimiter(nil, 0, 0)

	r := gin.New()
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		router:    r,
		auth:      auth.NewHandler(db, testJWTSecret, cfg.App.TokenTTL, nil, limiter, logger),
		taskStore: dbTaskStore{db: db},
	}
	s.registerRoutes(limiter)
	return s
}

// signupUser 通过 HTTP 注册一个用户，返回会话 token。
func signupUser(t *testing.T, s *Server, name, email, password string) string {
	t.Helper()
	w := doJSON(s, http.MethodPost, "/users", map[string]any{
		"name":     name,
		"age":      30,
		"email":    email,
		"password": password,
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d (%s)", email, w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("signup returned empty token")
	}
	return resp.Token
}

func doJSON(s *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}
