package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"taskboard/internal/api/middleware"
	"taskboard/internal/model"

	"github.com/gin-gonic/gin"
)

// taskAllowedUpdates PATCH /tasks/:id 允许修改的字段。
var taskAllowedUpdates = map[string]bool{
	"text":        true,
	"description": true,
	"completed":   true,
}

type createTaskRequest struct {
	Text        string `json:"text" binding:"required"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type updateTaskRequest struct {
	Text        *string `json:"text"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// handleCreateTask 创建任务。owner 永远取自鉴权上下文，客户端无法指定。
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := strings.ToLower(strings.TrimSpace(req.Text))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid text"})
		return
	}

	task := model.Task{
		UserID:      user.ID,
		Text:        text,
		Description: req.Description,
		Completed:   req.Completed,
	}
	if err := s.taskStore.Create(c.Request.Context(), &task); err != nil {
		s.logger.Error("create task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed"})
		return
	}

	c.JSON(http.StatusCreated, task)
}

// handleListTasks 返回当前用户的任务列表。
//
// GET /tasks?completed=&sortBy=&limit=&skip=
//
// sortBy 形如 "createdAt:desc"，省略方向时为升序。
func (s *Server) handleListTasks(c *gin.Context) {
	user := middleware.CurrentUser(c)

	filter := TaskFilter{
		Limit: parseQueryInt(c, "limit", 0),
		Skip:  parseQueryInt(c, "skip", 0),
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	if v := c.Query("completed"); v != "" {
		completed := v == "true"
		filter.Completed = &completed
	}

	if v := c.Query("sortBy"); v != "" {
		field, desc, ok := mapSortBy(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort"})
			return
		}
		filter.SortField = field
		filter.SortDesc = desc
	}

	tasks, err := s.taskStore.ListByOwner(c.Request.Context(), user.ID, filter)
	if err != nil {
		s.logger.Error("list tasks failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tasks failed"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleGetTask 按 id 读取当前用户的任务。
//
// GET /tasks/:id
//
// 属于其他用户的任务与不存在的任务一样返回 404，不泄露存在性。
func (s *Server) handleGetTask(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := s.taskStore.GetByIDAndOwner(c.Request.Context(), id, user.ID)
	if err != nil {
		s.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleUpdateTask 更新当前用户的任务。
//
// PATCH /tasks/:id
//
// 请求体出现允许列表之外的字段时整体拒绝，不做部分应用。
func (s *Server) handleUpdateTask(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

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
		if !taskAllowedUpdates[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid updates"})
			return
		}
	}

	var req updateTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	// 先做所有校验，再碰存储
	task, err := s.taskStore.GetByIDAndOwner(c.Request.Context(), id, user.ID)
	if err != nil {
		s.respondTaskError(c, err)
		return
	}

	if req.Text != nil {
		text := strings.ToLower(strings.TrimSpace(*req.Text))
		if text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid text"})
			return
		}
		task.Text = text
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}

	if err := s.taskStore.Save(c.Request.Context(), task); err != nil {
		s.logger.Error("update task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleDeleteTask 删除当前用户的任务。
//
// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := s.taskStore.DeleteByIDAndOwner(c.Request.Context(), id, user.ID)
	if err != nil {
		s.respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) respondTaskError(c *gin.Context, err error) {
	if errors.Is(err, ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	s.logger.Error("task store failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// mapSortBy 解析 sortBy=field:dir 为数据库列与方向。
func mapSortBy(v string) (field string, desc bool, ok bool) {
	parts := strings.SplitN(v, ":", 2)

	switch parts[0] {
	case "createdAt":
		field = "created_at"
	case "updatedAt":
		field = "updated_at"
	case "completed":
		field = "completed"
	case "text":
		field = "text"
	default:
		return "", false, false
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "desc":
			desc = true
		case "asc", "":
		default:
			return "", false, false
		}
	}
	return field, desc, true
}

func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		// 非数字 id 等同于不存在
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return 0, false
	}
	return uint(id), true
}

// parseQueryInt 解析查询参数中的整数值，缺失或非法时返回默认值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}
