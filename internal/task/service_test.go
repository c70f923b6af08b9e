package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/taskdeck/internal/mirror"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
)

// --- モック定義 ---

type mockTaskRepo struct {
	CreateFunc           func(ctx context.Context, task *model.Task) error
	FindByIDFunc         func(ctx context.Context, id string) (*model.Task, error)
	ListByUserIDFunc     func(ctx context.Context, userID string) ([]*model.Task, error)
	ListAllWithOwnerFunc func(ctx context.Context) ([]model.TaskWithOwner, error)
	UpdateFunc           func(ctx context.Context, task *model.Task) error
	DeleteByIDFunc       func(ctx context.Context, id string) error
}

var _ repository.TaskRepository = (*mockTaskRepo)(nil)

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) error {
	return m.CreateFunc(ctx, task)
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return m.FindByIDFunc(ctx, id)
}

func (m *mockTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	return m.ListByUserIDFunc(ctx, userID)
}

func (m *mockTaskRepo) ListAllWithOwner(ctx context.Context) ([]model.TaskWithOwner, error) {
	return m.ListAllWithOwnerFunc(ctx)
}

func (m *mockTaskRepo) Update(ctx context.Context, task *model.Task) error {
	return m.UpdateFunc(ctx, task)
}

func (m *mockTaskRepo) DeleteByID(ctx context.Context, id string) error {
	return m.DeleteByIDFunc(ctx, id)
}

type mockUserRepo struct {
	FindByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	panic("not implemented")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, id)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	panic("not implemented")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	panic("not implemented")
}

type mockMirror struct {
	AppendFunc          func(row mirror.Row) error
	ReplaceMatchingFunc func(taskID string, row mirror.Row) error
	RemoveMatchingFunc  func(taskID string) error
	RebuildFunc         func(rows []mirror.Row) error
}

var _ mirror.Store = (*mockMirror)(nil)

func (m *mockMirror) Append(row mirror.Row) error {
	return m.AppendFunc(row)
}

func (m *mockMirror) ReplaceMatching(taskID string, row mirror.Row) error {
	return m.ReplaceMatchingFunc(taskID, row)
}

func (m *mockMirror) RemoveMatching(taskID string) error {
	return m.RemoveMatchingFunc(taskID)
}

func (m *mockMirror) Rebuild(rows []mirror.Row) error {
	return m.RebuildFunc(rows)
}

func (m *mockMirror) FullExport() ([]byte, error) {
	panic("not implemented")
}

func (m *mockMirror) Rows() ([]mirror.Row, error) {
	panic("not implemented")
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizePlain(s string) string { return s }

// --- テストヘルパー ---

func validFields() model.TaskFields {
	return model.TaskFields{
		Title:       "配線確認",
		Description: "3階の配線をチェックする",
		StartDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Status:      model.StatusInProgress,
		Type:        "点検",
		Site:        "東京第一",
		Challenges:  "",
	}
}

func testOwner() *model.User {
	return &model.User{ID: "user-1", Username: "tanaka", Role: model.RoleUser}
}

func TestCreate_Success(t *testing.T) {
	var created *model.Task
	var appended *mirror.Row

	taskRepo := &mockTaskRepo{
		CreateFunc: func(ctx context.Context, task *model.Task) error {
			created = task
			return nil
		},
	}
	userRepo := &mockUserRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return testOwner(), nil
		},
	}
	mir := &mockMirror{
		AppendFunc: func(row mirror.Row) error {
			appended = &row
			return nil
		},
	}

	svc := NewService(taskRepo, userRepo, mir, passthroughSanitizer{}, nil)
	task, err := svc.Create(context.Background(), "user-1", validFields())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID == "" {
		t.Error("task ID should be assigned")
	}
	if task.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", task.UserID)
	}
	if created == nil {
		t.Fatal("task should be persisted")
	}
	if appended == nil {
		t.Fatal("mirror Append should be called")
	}
	if appended.TaskID != task.ID {
		t.Errorf("mirror row TaskID = %q, want %q", appended.TaskID, task.ID)
	}
	if appended.Owner != "tanaka" {
		t.Errorf("mirror row Owner = %q, want tanaka", appended.Owner)
	}
}

func TestCreate_MirrorFailureReturnsTaskAndWarning(t *testing.T) {
	taskRepo := &mockTaskRepo{
		CreateFunc: func(ctx context.Context, task *model.Task) error { return nil },
	}
	userRepo := &mockUserRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return testOwner(), nil
		},
	}
	mir := &mockMirror{
		AppendFunc: func(row mirror.Row) error { return errors.New("disk full") },
	}

	svc := NewService(taskRepo, userRepo, mir, passthroughSanitizer{}, nil)
	task, err := svc.Create(context.Background(), "user-1", validFields())

	// ミラー失敗でもリレーショナルストアの書き込みは取り消さない
	if task == nil {
		t.Fatal("task should be returned even when mirror write fails")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeMirrorWriteFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeMirrorWriteFailed)
	}
}

func TestCreate_InvalidStatus(t *testing.T) {
	svc := NewService(&mockTaskRepo{}, &mockUserRepo{}, &mockMirror{}, passthroughSanitizer{}, nil)
	fields := validFields()
	fields.Status = "paused"
	_, err := svc.Create(context.Background(), "user-1", fields)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidStatus {
		t.Errorf("want INVALID_STATUS error, got %v", err)
	}
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	svc := NewService(&mockTaskRepo{}, &mockUserRepo{}, &mockMirror{}, passthroughSanitizer{}, nil)
	fields := validFields()
	fields.Title = ""
	_, err := svc.Create(context.Background(), "user-1", fields)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("want INVALID_REQUEST error, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	createdAt := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	existing := &model.Task{
		ID:        "task-1",
		UserID:    "user-1",
		Title:     "旧タイトル",
		CreatedAt: createdAt,
	}

	var updated *model.Task
	var replacedID string

	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return existing, nil
		},
		UpdateFunc: func(ctx context.Context, task *model.Task) error {
			updated = task
			return nil
		},
	}
	userRepo := &mockUserRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return testOwner(), nil
		},
	}
	mir := &mockMirror{
		ReplaceMatchingFunc: func(taskID string, row mirror.Row) error {
			replacedID = taskID
			return nil
		},
	}

	svc := NewService(taskRepo, userRepo, mir, passthroughSanitizer{}, nil)
	fields := validFields()
	fields.Title = "新タイトル"
	task, err := svc.Update(context.Background(), "user-1", "task-1", fields)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if task.Title != "新タイトル" {
		t.Errorf("Title = %q, want 新タイトル", task.Title)
	}
	// 所有者と作成日時は引き継がれる
	if task.UserID != "user-1" || !task.CreatedAt.Equal(createdAt) {
		t.Error("owner and created_at should be preserved")
	}
	if updated == nil {
		t.Fatal("task should be persisted")
	}
	if replacedID != "task-1" {
		t.Errorf("mirror ReplaceMatching called with %q, want task-1", replacedID)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return nil, nil
		},
	}
	svc := NewService(taskRepo, &mockUserRepo{}, &mockMirror{}, passthroughSanitizer{}, nil)
	_, err := svc.Update(context.Background(), "user-1", "missing", validFields())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTaskNotFound {
		t.Errorf("want TASK_NOT_FOUND error, got %v", err)
	}
}

func TestUpdate_ForbiddenForNonOwner(t *testing.T) {
	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: "task-1", UserID: "someone-else"}, nil
		},
	}
	svc := NewService(taskRepo, &mockUserRepo{}, &mockMirror{}, passthroughSanitizer{}, nil)
	_, err := svc.Update(context.Background(), "user-1", "task-1", validFields())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("want FORBIDDEN error, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	var deletedID, removedID string
	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1"}, nil
		},
		DeleteByIDFunc: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	mir := &mockMirror{
		RemoveMatchingFunc: func(taskID string) error {
			removedID = taskID
			return nil
		},
	}

	svc := NewService(taskRepo, &mockUserRepo{}, mir, passthroughSanitizer{}, nil)
	if err := svc.Delete(context.Background(), "user-1", "task-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deletedID != "task-1" || removedID != "task-1" {
		t.Errorf("deleted=%q removed=%q, want task-1 for both", deletedID, removedID)
	}
}

func TestDelete_MirrorFailureReturnsWarning(t *testing.T) {
	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1"}, nil
		},
		DeleteByIDFunc: func(ctx context.Context, id string) error { return nil },
	}
	mir := &mockMirror{
		RemoveMatchingFunc: func(taskID string) error { return errors.New("file locked") },
	}

	svc := NewService(taskRepo, &mockUserRepo{}, mir, passthroughSanitizer{}, nil)
	err := svc.Delete(context.Background(), "user-1", "task-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeMirrorWriteFailed {
		t.Errorf("want MIRROR_WRITE_FAILED error, got %v", err)
	}
}

func TestDelete_ForbiddenForNonOwner(t *testing.T) {
	taskRepo := &mockTaskRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "someone-else"}, nil
		},
	}
	svc := NewService(taskRepo, &mockUserRepo{}, &mockMirror{}, passthroughSanitizer{}, nil)
	err := svc.Delete(context.Background(), "user-1", "task-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("want FORBIDDEN error, got %v", err)
	}
}

func TestRebuildMirror(t *testing.T) {
	snapshot := []model.TaskWithOwner{
		{Task: model.Task{ID: "t1", StartDate: time.Now()}, OwnerUsername: "tanaka"},
		{Task: model.Task{ID: "t2", StartDate: time.Now()}, OwnerUsername: "suzuki"},
	}
	var rebuilt []mirror.Row
	taskRepo := &mockTaskRepo{
		ListAllWithOwnerFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
			return snapshot, nil
		},
	}
	mir := &mockMirror{
		RebuildFunc: func(rows []mirror.Row) error {
			rebuilt = rows
			return nil
		},
	}

	svc := NewService(taskRepo, &mockUserRepo{}, mir, passthroughSanitizer{}, nil)
	n, err := svc.RebuildMirror(context.Background())
	if err != nil {
		t.Fatalf("RebuildMirror failed: %v", err)
	}
	if n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}
	if len(rebuilt) != 2 || rebuilt[0].TaskID != "t1" || rebuilt[1].TaskID != "t2" {
		t.Errorf("unexpected rebuilt rows: %+v", rebuilt)
	}
}

func TestCreate_SanitizesFreeTextFields(t *testing.T) {
	var created *model.Task
	taskRepo := &mockTaskRepo{
		CreateFunc: func(ctx context.Context, task *model.Task) error {
			created = task
			return nil
		},
	}
	userRepo := &mockUserRepo{
		FindByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return testOwner(), nil
		},
	}
	mir := &mockMirror{
		AppendFunc: func(row mirror.Row) error { return nil },
	}

	sanitizer := security.NewTextSanitizer()
	svc := NewService(taskRepo, userRepo, mir, sanitizer, nil)
	fields := validFields()
	fields.Title = "<script>alert(1)</script>配線確認"
	if _, err := svc.Create(context.Background(), "user-1", fields); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Title != "配線確認" {
		t.Errorf("Title = %q, want 配線確認", created.Title)
	}
}
