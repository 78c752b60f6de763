package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"taskboard/internal/api/middleware"
	"taskboard/internal/model"
	"taskboard/internal/pkg/avatar"
	"taskboard/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// handleUploadAvatar 上传头像。
//
// POST /users/me/avatar (multipart, 字段名 "avatar")
//
// 扩展名或大小不合规的文件在任何解码发生之前拒绝；
// 通过校验的图片统一归一化为 250x250 PNG 存到用户行上。
func (s *Server) handleUploadAvatar(c *gin.Context) {
	user := middleware.CurrentUser(c)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file required"})
		return
	}

	if err := avatar.ValidateUpload(fileHeader.Filename, fileHeader.Size, s.cfg.App.MaxAvatarBytes); err != nil {
		metrics.AvatarUploadRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open upload failed"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return
	}

	normalized, err := avatar.Normalize(data)
	if err != nil {
		metrics.AvatarUploadRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload must be an image file"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("avatar", normalized).Error; err != nil {
		s.logger.Error("save avatar failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save avatar failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// handleDeleteAvatar 清除当前用户头像。
//
// DELETE /users/me/avatar
func (s *Server) handleDeleteAvatar(c *gin.Context) {
	user := middleware.CurrentUser(c)

	if err := s.db.WithContext(c.Request.Context()).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("avatar", nil).Error; err != nil {
		s.logger.Error("delete avatar failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete avatar failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleGetAvatar 公开的头像读取端点，返回原始 PNG 字节。
//
// GET /users/:id/avatar
//
// 用户不存在或没有头像时一律 404。
func (s *Server) handleGetAvatar(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var user model.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, uint(id)).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("load avatar failed", slog.String("error", err.Error()))
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if len(user.Avatar) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.Data(http.StatusOK, "image/png", user.Avatar)
}
