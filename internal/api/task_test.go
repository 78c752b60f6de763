package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"taskboard/internal/model"
)

func createTask(t *testing.T, s *Server, token, text string) model.Task {
	t.Helper()
	w := doJSON(s, http.MethodPost, "/tasks", map[string]any{"text": text}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var task model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func TestCreateTask_OwnerForcedFromToken(t *testing.T) {
	s := newTestServer(t)
	tokenA := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")

	// 客户端试图冒充 owner，字段必须被忽略（不在绑定结构里）
	w := doJSON(s, http.MethodPost, "/tasks", map[string]any{"text": "Buy Milk", "owner": 999}, tokenA)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var task model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var stored model.Task
	if err := s.db.First(&stored, task.ID).Error; err != nil {
		t.Fatalf("load stored task: %v", err)
	}
	var alice model.User
	if err := s.db.Where("email = ?", "alice@example.com").First(&alice).Error; err != nil {
		t.Fatalf("load alice: %v", err)
	}
	if stored.UserID != alice.ID {
		t.Fatalf("expected owner %d, got %d", alice.ID, stored.UserID)
	}
	if stored.Text != "buy milk" {
		t.Fatalf("expected lowercased text, got %q", stored.Text)
	}
}

func TestTask_ForeignOwnerIs404(t *testing.T) {
	s := newTestServer(t)
	tokenA := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")
	tokenB := signupUser(t, s, "Bob", "bob@example.com", "horsestaple")

	task := createTask(t, s, tokenA, "secret errand")
	path := fmt.Sprintf("/tasks/%d", task.ID)

	if w := doJSON(s, http.MethodGet, path, nil, tokenB); w.Code != http.StatusNotFound {
		t.Fatalf("read: expected 404 for foreign task, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodPatch, path, map[string]any{"completed": true}, tokenB); w.Code != http.StatusNotFound {
		t.Fatalf("update: expected 404 for foreign task, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodDelete, path, nil, tokenB); w.Code != http.StatusNotFound {
		t.Fatalf("delete: expected 404 for foreign task, got %d", w.Code)
	}

	// owner 自己仍然可以读到
	if w := doJSON(s, http.MethodGet, path, nil, tokenA); w.Code != http.StatusOK {
		t.Fatalf("owner read: expected 200, got %d", w.Code)
	}
}

func TestUpdateTask_AllowListRejectedWholesale(t *testing.T) {
	s := newTestServer(t)
	token := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")
	task := createTask(t, s, token, "water plants")

	w := doJSON(s, http.MethodPatch, fmt.Sprintf("/tasks/%d", task.ID), map[string]any{
		"completed": true,
		"priority":  "high",
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for disallowed field, got %d", w.Code)
	}

	// 不允许部分应用：completed 不能被改掉
	var stored model.Task
	if err := s.db.First(&stored, task.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if stored.Completed {
		t.Fatalf("expected no partial application")
	}
}

func TestUpdateTask_AllowedFields(t *testing.T) {
	s := newTestServer(t)
	token := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")
	task := createTask(t, s, token, "water plants")

	w := doJSON(s, http.MethodPatch, fmt.Sprintf("/tasks/%d", task.ID), map[string]any{
		"text":        "Feed Cat",
		"description": "dry food only",
		"completed":   true,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var stored model.Task
	if err := s.db.First(&stored, task.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if stored.Text != "feed cat" || stored.Description != "dry food only" || !stored.Completed {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestListTasks_FilterAndSort(t *testing.T) {
	s := newTestServer(t)
	token := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")

	createTask(t, s, token, "alpha")
	second := createTask(t, s, token, "beta")
	createTask(t, s, token, "gamma")

	w := doJSON(s, http.MethodPatch, fmt.Sprintf("/tasks/%d", second.ID), map[string]any{"completed": true}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("complete task: %d", w.Code)
	}

	var tasks []model.Task
	w = doJSON(s, http.MethodGet, "/tasks?completed=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list completed: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != second.ID {
		t.Fatalf("expected only the completed task, got %+v", tasks)
	}

	w = doJSON(s, http.MethodGet, "/tasks?sortBy=text:desc", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list sorted: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Text != "gamma" || tasks[2].Text != "alpha" {
		t.Fatalf("unexpected sort order: %+v", tasks)
	}

	w = doJSON(s, http.MethodGet, "/tasks?sortBy=text:asc&limit=1&skip=1", nil, token)
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "beta" {
		t.Fatalf("expected paged result beta, got %+v", tasks)
	}
}

func TestListTasks_InvalidSortRejected(t *testing.T) {
	s := newTestServer(t)
	token := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")

	w := doJSON(s, http.MethodGet, "/tasks?sortBy=password:desc", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sort field, got %d", w.Code)
	}
}

func TestListTasks_ScopedToCaller(t *testing.T) {
	s := newTestServer(t)
	tokenA := signupUser(t, s, "Alice", "alice@example.com", "horsestaple")
	tokenB := signupUser(t, s, "Bob", "bob@example.com", "horsestaple")

	createTask(t, s, tokenA, "alice task")

	w := doJSON(s, http.MethodGet, "/tasks", nil, tokenB)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var tasks []model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty list for other user, got %+v", tasks)
	}
}
