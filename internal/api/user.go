package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"taskboard/internal/api/auth"
	"taskboard/internal/api/middleware"
	"taskboard/internal/model"
	"taskboard/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// userAllowedUpdates PATCH /users/me 允许修改的字段。
var userAllowedUpdates = map[string]bool{
	"name":     true,
	"email":    true,
	"age":      true,
	"password": true,
}

type updateProfileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Age      *int    `json:"age"`
	Password *string `json:"password"`
}

// handleGetProfile 返回当前用户。
//
// GET /users/me
func (s *Server) handleGetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

// handleUpdateProfile 更新当前用户资料。
//
// PATCH /users/me
//
// 请求体出现允许列表之外的任何字段时整体拒绝，不做部分应用。
func (s *Server) handleUpdateProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}
	for key := range raw {
		if !userAllowedUpdates[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid updates"})
			return
		}
	}

	var req updateProfileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		user.Name = name
	}
	if req.Age != nil {
		if *req.Age < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid age"})
			return
		}
		user.Age = *req.Age
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		user.Email = email
	}
	if req.Password != nil {
		if err := auth.CheckPasswordRules(*req.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), 8)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		user.Password = string(hash)
	}

	if err := s.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		// uniqueIndex 冲突最常见于改邮箱
		if req.Email != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already in use"})
			return
		}
		s.logger.Error("update profile failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// handleDeleteAccount 注销账户并级联清理任务与会话。
//
// DELETE /users/me
func (s *Server) handleDeleteAccount(c *gin.Context) {
	user := middleware.CurrentUser(c)

	tx := s.db.WithContext(c.Request.Context()).Begin()
	if tx.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction failed"})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("user_id = ?", user.ID).Delete(&model.Task{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete tasks failed"})
		return
	}
	if err := tx.Where("user_id = ?", user.ID).Delete(&model.SessionToken{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete sessions failed"})
		return
	}
	if err := tx.Where("id = ?", user.ID).Delete(&model.User{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit failed"})
		return
	}

	// 告别邮件不影响注销结果
	if s.mailer != nil {
		email, name := user.Email, user.Name
		go func() {
			if err := s.mailer.SendCancellation(email, name); err != nil {
				metrics.EmailSendFailuresTotal.Inc()
				s.logger.Warn("send cancellation email failed", slog.String("error", err.Error()))
			}
		}()
	}

	if s.logger != nil {
		s.logger.Info("user deleted", slog.String("email", user.Email))
	}
	c.JSON(http.StatusOK, user)
}
