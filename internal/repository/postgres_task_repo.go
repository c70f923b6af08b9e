package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, start_date, end_date, status, type, site, challenges, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		task.ID, task.UserID, task.Title, task.Description,
		task.StartDate, nullableTime(task.EndDate), string(task.Status),
		task.Type, task.Site, task.Challenges, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, start_date, end_date, status, type, site, challenges, created_at
		 FROM tasks WHERE id = $1`,
		id,
	)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// ListByUserID は指定ユーザーのタスク一覧をcreated_at昇順で返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, start_date, end_date, status, type, site, challenges, created_at
		 FROM tasks WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// ListAllWithOwner は全ユーザーのタスクを所有者ユーザー名付きで返す。
// 集計エンジンとミラー再構築でのみ使用する。
func (r *PostgresTaskRepo) ListAllWithOwner(ctx context.Context) ([]model.TaskWithOwner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.title, t.description, t.start_date, t.end_date,
		        t.status, t.type, t.site, t.challenges, t.created_at, u.username
		 FROM tasks t
		 JOIN users u ON u.id = t.user_id
		 ORDER BY t.created_at, t.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.TaskWithOwner
	for rows.Next() {
		var t model.TaskWithOwner
		var status string
		var endDate sql.NullTime
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Title, &t.Description, &t.StartDate, &endDate,
			&status, &t.Type, &t.Site, &t.Challenges, &t.CreatedAt, &t.OwnerUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task with owner: %w", err)
		}
		t.Status = model.Status(status)
		if endDate.Valid {
			end := endDate.Time
			t.EndDate = &end
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Update はタスクの可変フィールドを上書き更新する。
// user_idとcreated_atは変更しない。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, start_date = $4, end_date = $5,
		     status = $6, type = $7, site = $8, challenges = $9
		 WHERE id = $1`,
		task.ID, task.Title, task.Description, task.StartDate, nullableTime(task.EndDate),
		string(task.Status), task.Type, task.Site, task.Challenges,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewTaskNotFoundError(task.ID)
	}
	return nil
}

// DeleteByID は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewTaskNotFoundError(id)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var status string
	var endDate sql.NullTime
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.StartDate, &endDate,
		&status, &task.Type, &task.Site, &task.Challenges, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = model.Status(status)
	if endDate.Valid {
		end := endDate.Time
		task.EndDate = &end
	}
	return task, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
