package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	// Create は新規タスクを作成する。
	Create(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error)
	// List は呼び出し元ユーザーのタスク一覧を返す。
	List(ctx context.Context, callerID string) ([]*model.Task, error)
	// Update は既存タスクを更新する。
	Update(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error)
	// Delete は既存タスクを削除する。
	Delete(ctx context.Context, callerID, taskID string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

const taskDateLayout = "2006-01-02"

// taskRequest はタスク作成・更新リクエストのボディ。
// 日付はYYYY-MM-DD形式の文字列で受け取る。
type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Site        string `json:"site"`
	Challenges  string `json:"challenges"`
}

// taskResponse はタスク情報のAPIレスポンス。
// ミラー書き込みに失敗した場合はwarningフィールドに詳細を含める。
type taskResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date,omitempty"`
	Status      string            `json:"status"`
	Type        string            `json:"type"`
	Site        string            `json:"site"`
	Challenges  string            `json:"challenges"`
	CreatedAt   time.Time         `json:"created_at"`
	Warning     *apiErrorResponse `json:"warning,omitempty"`
}

// CreateTask はタスク作成を処理する。
// リレーショナルストアへの書き込みが成功していればミラー書き込みが
// 失敗しても201を返し、warningフィールドで失敗を通知する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	fields, apiErr := parseTaskRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	task, err := h.service.Create(r.Context(), userID, fields)
	if task == nil && err != nil {
		handleServiceError(w, err)
		return
	}

	writeTaskResponse(w, http.StatusCreated, task, mirrorWarning(err))
}

// ListTasks は呼び出し元ユーザーのタスク一覧を返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	tasks, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, toTaskResponse(t, nil))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// UpdateTask はタスク更新を処理する。ミラー失敗時の扱いはCreateTaskと同じ。
// PUT /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	taskID := chi.URLParam(r, "id")
	fields, apiErr := parseTaskRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	task, err := h.service.Update(r.Context(), userID, taskID, fields)
	if task == nil && err != nil {
		handleServiceError(w, err)
		return
	}

	writeTaskResponse(w, http.StatusOK, task, mirrorWarning(err))
}

// DeleteTask はタスク削除を処理する。
// ミラーからの削除に失敗した場合も200を返し、warningで通知する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	taskID := chi.URLParam(r, "id")
	err = h.service.Delete(r.Context(), userID, taskID)
	if err != nil {
		if warning := mirrorWarning(err); warning != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]*apiErrorResponse{"warning": warning})
			return
		}
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseTaskRequest はリクエストボディを解析してTaskFieldsに変換する。
func parseTaskRequest(r *http.Request) (model.TaskFields, *model.APIError) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.TaskFields{}, model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}

	startDate, err := time.Parse(taskDateLayout, req.StartDate)
	if err != nil {
		return model.TaskFields{}, model.NewInvalidRequestError("開始日はYYYY-MM-DD形式で指定してください")
	}

	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse(taskDateLayout, req.EndDate)
		if err != nil {
			return model.TaskFields{}, model.NewInvalidRequestError("終了日はYYYY-MM-DD形式で指定してください")
		}
		endDate = &parsed
	}

	return model.TaskFields{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      model.Status(req.Status),
		Type:        req.Type,
		Site:        req.Site,
		Challenges:  req.Challenges,
	}, nil
}

// mirrorWarning はミラー書き込み失敗エラーをレスポンス用のwarningに変換する。
// それ以外のエラー（またはnil）にはnilを返す。
func mirrorWarning(err error) *apiErrorResponse {
	if err == nil {
		return nil
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeMirrorWriteFailed {
		return &apiErrorResponse{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
	}
	return nil
}

// writeTaskResponse はタスクとオプションのwarningをJSONで書き込む。
func writeTaskResponse(w http.ResponseWriter, statusCode int, task *model.Task, warning *apiErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(toTaskResponse(task, warning))
}

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(task *model.Task, warning *apiErrorResponse) taskResponse {
	resp := taskResponse{
		ID:          task.ID,
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		StartDate:   task.StartDate.Format(taskDateLayout),
		Status:      string(task.Status),
		Type:        task.Type,
		Site:        task.Site,
		Challenges:  task.Challenges,
		CreatedAt:   task.CreatedAt,
		Warning:     warning,
	}
	if task.EndDate != nil {
		resp.EndDate = task.EndDate.Format(taskDateLayout)
	}
	return resp
}

// --- 共通ヘルパー ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeDuplicateUsername, model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeUserNotFound, model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidCredential, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidStatus, model.ErrCodeInvalidRole, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeExportError, model.ErrCodeMirrorWriteFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
