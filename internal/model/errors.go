// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, export, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateUsername = "DUPLICATE_USERNAME"
	ErrCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeExportError       = "EXPORT_ERROR"
	ErrCodeInvalidStatus     = "INVALID_STATUS"
	ErrCodeInvalidRole       = "INVALID_ROLE"
	ErrCodeMirrorWriteFailed = "MIRROR_WRITE_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", username),
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "別のメールアドレスを指定するか、登録済みのアカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", username),
		Category: "auth",
		Action:   "ユーザー名を確認するか、アカウントを登録してください。",
	}
}

// NewInvalidCredentialError は認証情報不一致エラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "パスワードが一致しません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewForbiddenError は権限外操作エラーを生成する。
// 他ユーザーのタスク操作、および非管理者のダッシュボードアクセスで使用する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が作成したタスクのみ操作できます。管理者機能には管理者アカウントでログインしてください。",
	}
}

// NewExportError はエクスポート失敗エラーを生成する。
func NewExportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeExportError,
		Message:  fmt.Sprintf("エクスポートの生成に失敗しました: %s", reason),
		Category: "export",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには in progress、completed、overdue のいずれかを指定してください。",
	}
}

// NewInvalidRoleError は無効なロールエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには user または admin を指定してください。",
	}
}

// NewMirrorWriteFailedError はミラー書き込み失敗エラーを生成する。
// リレーショナルストアへの書き込みは成功しており、ロールバックは行わない。
func NewMirrorWriteFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMirrorWriteFailed,
		Message:  fmt.Sprintf("スプレッドシートミラーの更新に失敗しました: %s", reason),
		Category: "system",
		Action:   "タスク自体は保存されています。管理者によるミラー再構築で復旧できます。",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}
