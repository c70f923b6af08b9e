// Package model はドメインモデルを定義する。
package model

import "time"

// Status はタスクの進行状態を表す。
// 集計は完全一致で行うため、値は閉じた集合として扱う。
type Status string

const (
	// StatusInProgress は進行中のタスク。
	StatusInProgress Status = "in progress"
	// StatusCompleted は完了したタスク。
	StatusCompleted Status = "completed"
	// StatusOverdue は期限超過のタスク。
	StatusOverdue Status = "overdue"
)

// ValidStatus はstatusが定義済みの値かどうかを判定する。
func ValidStatus(s Status) bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	default:
		return false
	}
}

// Task はユーザーが記録する作業項目を表す。
// UserIDは作成時に確定し、以後変更されない。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	StartDate   time.Time
	EndDate     *time.Time // 未設定の場合は進行中として扱う
	Status      Status
	Type        string
	Site        string
	Challenges  string
	CreatedAt   time.Time
}

// TaskWithOwner はタスクと所有者のユーザー名を結合したモデル。
// usersテーブルとJOINして取得され、ミラーと集計で使用する。
type TaskWithOwner struct {
	Task
	OwnerUsername string
}

// TaskFields はタスクの作成・更新で指定可能なフィールド群。
// 所有者と作成日時は含まない。
type TaskFields struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     *time.Time
	Status      Status
	Type        string
	Site        string
	Challenges  string
}
