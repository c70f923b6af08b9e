// Package task はタスクのCRUDとスプレッドシートミラーへの反映を提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/mirror"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
)

// MetricsRecorder はタスク操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordTaskMutation(op string)
	RecordMirrorWriteFailure(op string)
}

// nopMetrics はメトリクス未構成時のフォールバック。
type nopMetrics struct{}

func (nopMetrics) RecordTaskMutation(string)       {}
func (nopMetrics) RecordMirrorWriteFailure(string) {}

// Service はタスクに関するビジネスロジックを提供する。
//
// 書き込み系の操作はリレーショナルストアへの書き込みが成功した後に
// ミラーへ反映する。ミラーへの書き込みが失敗してもロールバックは行わず、
// MIRROR_WRITE_FAILEDエラーを成功した結果と併せて返す。
// リレーショナルストアが常に正であり、ミラーは再構築可能な複製である。
type Service struct {
	taskRepo  repository.TaskRepository
	userRepo  repository.UserRepository
	mirror    mirror.Store
	sanitizer security.TextSanitizerService
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。metricsがnilの場合は記録を行わない。
func NewService(
	taskRepo repository.TaskRepository,
	userRepo repository.UserRepository,
	mirrorStore mirror.Store,
	sanitizer security.TextSanitizerService,
	metrics MetricsRecorder,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		taskRepo:  taskRepo,
		userRepo:  userRepo,
		mirror:    mirrorStore,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// Create は新規タスクを作成する。所有者は呼び出し元のcallerIDで確定する。
// リレーショナルストアへの書き込み成功後、ミラーに行を追加する。
// ミラー書き込みが失敗した場合は作成済みタスクとMIRROR_WRITE_FAILEDエラーの両方を返す。
func (s *Service) Create(ctx context.Context, callerID string, fields model.TaskFields) (*model.Task, error) {
	fields = s.sanitizeFields(fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	owner, err := s.userRepo.FindByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find caller: %w", err)
	}
	if owner == nil {
		return nil, model.NewUnauthenticatedError()
	}

	task := &model.Task{
		ID:          uuid.New().String(),
		UserID:      callerID,
		Title:       fields.Title,
		Description: fields.Description,
		StartDate:   fields.StartDate,
		EndDate:     fields.EndDate,
		Status:      fields.Status,
		Type:        fields.Type,
		Site:        fields.Site,
		Challenges:  fields.Challenges,
		CreatedAt:   time.Now(),
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.metrics.RecordTaskMutation("create")

	row := mirror.RowFromTask(model.TaskWithOwner{Task: *task, OwnerUsername: owner.Username})
	if err := s.mirror.Append(row); err != nil {
		return task, s.mirrorFailure("create", task.ID, err)
	}

	return task, nil
}

// List は呼び出し元ユーザーのタスク一覧を返す。
func (s *Service) List(ctx context.Context, callerID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByUserID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// ListAll は全ユーザーのタスクを所有者ユーザー名付きで返す。
// 集計エンジンとミラー再構築のための管理者スコープの読み取りであり、
// 呼び出し元の権限確認はハンドラー層の管理者ゲートが行う。
func (s *Service) ListAll(ctx context.Context) ([]model.TaskWithOwner, error) {
	tasks, err := s.taskRepo.ListAllWithOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all tasks: %w", err)
	}
	return tasks, nil
}

// Update は既存タスクの可変フィールドを上書きする。
// タスクが存在しない場合はTASK_NOT_FOUND、呼び出し元が所有者でない場合はFORBIDDENを返す。
// 所有者と作成日時は変更されない。
func (s *Service) Update(ctx context.Context, callerID, taskID string, fields model.TaskFields) (*model.Task, error) {
	fields = s.sanitizeFields(fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	existing, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if existing == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if existing.UserID != callerID {
		return nil, model.NewForbiddenError()
	}

	updated := &model.Task{
		ID:          existing.ID,
		UserID:      existing.UserID,
		Title:       fields.Title,
		Description: fields.Description,
		StartDate:   fields.StartDate,
		EndDate:     fields.EndDate,
		Status:      fields.Status,
		Type:        fields.Type,
		Site:        fields.Site,
		Challenges:  fields.Challenges,
		CreatedAt:   existing.CreatedAt,
	}

	if err := s.taskRepo.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.metrics.RecordTaskMutation("update")

	owner, err := s.userRepo.FindByID(ctx, existing.UserID)
	if err != nil || owner == nil {
		return updated, s.mirrorFailure("update", taskID, fmt.Errorf("owner lookup failed: %w", err))
	}

	row := mirror.RowFromTask(model.TaskWithOwner{Task: *updated, OwnerUsername: owner.Username})
	if err := s.mirror.ReplaceMatching(taskID, row); err != nil {
		return updated, s.mirrorFailure("update", taskID, err)
	}

	return updated, nil
}

// Delete は既存タスクを削除する。所有権チェックはUpdateと同一。
func (s *Service) Delete(ctx context.Context, callerID, taskID string) error {
	existing, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to find task: %w", err)
	}
	if existing == nil {
		return model.NewTaskNotFoundError(taskID)
	}
	if existing.UserID != callerID {
		return model.NewForbiddenError()
	}

	if err := s.taskRepo.DeleteByID(ctx, taskID); err != nil {
		return err
	}
	s.metrics.RecordTaskMutation("delete")

	if err := s.mirror.RemoveMatching(taskID); err != nil {
		return s.mirrorFailure("delete", taskID, err)
	}

	return nil
}

// RebuildMirror はタスクストアの現在のスナップショットからミラー全体を作り直し、
// 書き込んだ行数を返す。ミラーとリレーショナルストアが乖離した場合の復旧手段。
func (s *Service) RebuildMirror(ctx context.Context) (int, error) {
	tasks, err := s.taskRepo.ListAllWithOwner(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot tasks: %w", err)
	}

	rows := make([]mirror.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, mirror.RowFromTask(t))
	}

	if err := s.mirror.Rebuild(rows); err != nil {
		s.metrics.RecordMirrorWriteFailure("rebuild")
		return 0, model.NewMirrorWriteFailedError(err.Error())
	}

	slog.Info("mirror rebuilt", slog.Int("rows", len(rows)))
	return len(rows), nil
}

// mirrorFailure はミラー書き込み失敗を記録し、MIRROR_WRITE_FAILEDエラーを返す。
func (s *Service) mirrorFailure(op, taskID string, err error) error {
	s.metrics.RecordMirrorWriteFailure(op)
	slog.Error("mirror write failed",
		slog.String("op", op),
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
	)
	return model.NewMirrorWriteFailedError(err.Error())
}

// sanitizeFields は自由記述フィールドをサニタイズして返す。
func (s *Service) sanitizeFields(fields model.TaskFields) model.TaskFields {
	fields.Title = s.sanitizer.SanitizePlain(fields.Title)
	fields.Description = s.sanitizer.SanitizePlain(fields.Description)
	fields.Type = s.sanitizer.SanitizePlain(fields.Type)
	fields.Site = s.sanitizer.SanitizePlain(fields.Site)
	fields.Challenges = s.sanitizer.SanitizePlain(fields.Challenges)
	return fields
}

// validateFields は必須フィールドとステータスの妥当性を検証する。
func validateFields(fields model.TaskFields) error {
	if fields.Title == "" || fields.Description == "" || fields.Type == "" || fields.Site == "" {
		return model.NewInvalidRequestError("タイトル、説明、タイプ、サイトは必須です")
	}
	if fields.StartDate.IsZero() {
		return model.NewInvalidRequestError("開始日は必須です")
	}
	if !model.ValidStatus(fields.Status) {
		return model.NewInvalidStatusError(string(fields.Status))
	}
	return nil
}
