package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
)

// --- モック定義 ---

type mockTaskService struct {
	CreateFunc func(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error)
	ListFunc   func(ctx context.Context, callerID string) ([]*model.Task, error)
	UpdateFunc func(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error)
	DeleteFunc func(ctx context.Context, callerID, taskID string) error
}

var _ TaskServiceInterface = (*mockTaskService)(nil)

func (m *mockTaskService) Create(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error) {
	return m.CreateFunc(ctx, callerID, fields)
}

func (m *mockTaskService) List(ctx context.Context, callerID string) ([]*model.Task, error) {
	return m.ListFunc(ctx, callerID)
}

func (m *mockTaskService) Update(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error) {
	return m.UpdateFunc(ctx, callerID, taskID, fields)
}

func (m *mockTaskService) Delete(ctx context.Context, callerID, taskID string) error {
	return m.DeleteFunc(ctx, callerID, taskID)
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

// withURLParam はchiのURLパラメータをリクエストコンテキストに注入する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

const validTaskBody = `{
	"title": "配線確認",
	"description": "3階の配線をチェックする",
	"start_date": "2026-08-01",
	"end_date": "2026-08-10",
	"status": "in progress",
	"type": "点検",
	"site": "東京第一"
}`

func sampleTask() *model.Task {
	end := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	return &model.Task{
		ID:          "task-1",
		UserID:      "user-1",
		Title:       "配線確認",
		Description: "3階の配線をチェックする",
		StartDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     &end,
		Status:      model.StatusInProgress,
		Type:        "点検",
		Site:        "東京第一",
		CreatedAt:   time.Now(),
	}
}

func TestCreateTask_Success(t *testing.T) {
	var gotFields model.TaskFields
	service := &mockTaskService{
		CreateFunc: func(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error) {
			gotFields = fields
			return sampleTask(), nil
		},
	}
	h := NewTaskHandler(service)

	w := httptest.NewRecorder()
	h.CreateTask(w, authedRequest(http.MethodPost, "/api/tasks", validTaskBody))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotFields.Title != "配線確認" {
		t.Errorf("Title = %q", gotFields.Title)
	}
	if gotFields.EndDate == nil || gotFields.EndDate.Format("2006-01-02") != "2026-08-10" {
		t.Errorf("EndDate not parsed: %v", gotFields.EndDate)
	}

	var resp taskResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ID != "task-1" || resp.Warning != nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// ミラー書き込み失敗でもタスクは作成済みなので201と警告を返す
func TestCreateTask_MirrorFailureReturnsWarning(t *testing.T) {
	service := &mockTaskService{
		CreateFunc: func(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error) {
			return sampleTask(), model.NewMirrorWriteFailedError("disk full")
		},
	}
	h := NewTaskHandler(service)

	w := httptest.NewRecorder()
	h.CreateTask(w, authedRequest(http.MethodPost, "/api/tasks", validTaskBody))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp taskResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Warning == nil {
		t.Fatal("response should carry a warning")
	}
	if resp.Warning.Code != model.ErrCodeMirrorWriteFailed {
		t.Errorf("warning code = %q, want %q", resp.Warning.Code, model.ErrCodeMirrorWriteFailed)
	}
}

func TestCreateTask_InvalidDateFormat(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})
	body := strings.Replace(validTaskBody, "2026-08-01", "01/08/2026", 1)

	w := httptest.NewRecorder()
	h.CreateTask(w, authedRequest(http.MethodPost, "/api/tasks", body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateTask_InvalidStatus(t *testing.T) {
	service := &mockTaskService{
		CreateFunc: func(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error) {
			return nil, model.NewInvalidStatusError(string(fields.Status))
		},
	}
	h := NewTaskHandler(service)
	body := strings.Replace(validTaskBody, "in progress", "paused", 1)

	w := httptest.NewRecorder()
	h.CreateTask(w, authedRequest(http.MethodPost, "/api/tasks", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Code != model.ErrCodeInvalidStatus {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeInvalidStatus)
	}
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(validTaskBody))

	w := httptest.NewRecorder()
	h.CreateTask(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestListTasks_ReturnsOwnTasks(t *testing.T) {
	service := &mockTaskService{
		ListFunc: func(ctx context.Context, callerID string) ([]*model.Task, error) {
			if callerID != "user-1" {
				t.Errorf("List called with %q, want user-1", callerID)
			}
			return []*model.Task{sampleTask()}, nil
		},
	}
	h := NewTaskHandler(service)

	w := httptest.NewRecorder()
	h.ListTasks(w, authedRequest(http.MethodGet, "/api/tasks", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp []taskResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp) != 1 || resp[0].ID != "task-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp[0].StartDate != "2026-08-01" || resp[0].EndDate != "2026-08-10" {
		t.Errorf("dates not formatted: %+v", resp[0])
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	service := &mockTaskService{
		UpdateFunc: func(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error) {
			return nil, model.NewTaskNotFoundError(taskID)
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(authedRequest(http.MethodPut, "/api/tasks/missing", validTaskBody), "id", "missing")
	w := httptest.NewRecorder()
	h.UpdateTask(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateTask_ForbiddenForNonOwner(t *testing.T) {
	service := &mockTaskService{
		UpdateFunc: func(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(authedRequest(http.MethodPut, "/api/tasks/task-9", validTaskBody), "id", "task-9")
	w := httptest.NewRecorder()
	h.UpdateTask(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestDeleteTask_Success(t *testing.T) {
	var deletedID string
	service := &mockTaskService{
		DeleteFunc: func(ctx context.Context, callerID, taskID string) error {
			deletedID = taskID
			return nil
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(authedRequest(http.MethodDelete, "/api/tasks/task-1", ""), "id", "task-1")
	w := httptest.NewRecorder()
	h.DeleteTask(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if deletedID != "task-1" {
		t.Errorf("deleted ID = %q, want task-1", deletedID)
	}
}

func TestDeleteTask_MirrorFailureReturnsWarning(t *testing.T) {
	service := &mockTaskService{
		DeleteFunc: func(ctx context.Context, callerID, taskID string) error {
			return model.NewMirrorWriteFailedError("file locked")
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(authedRequest(http.MethodDelete, "/api/tasks/task-1", ""), "id", "task-1")
	w := httptest.NewRecorder()
	h.DeleteTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]*apiErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["warning"] == nil || resp["warning"].Code != model.ErrCodeMirrorWriteFailed {
		t.Errorf("unexpected response: %+v", resp)
	}
}
