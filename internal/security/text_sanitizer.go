// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザーが入力するタスクの自由記述フィールド
// （タイトル、説明、課題など）をサニタイズし、保存データがそのまま
// ダッシュボードやエクスポートに流れてもXSSを引き起こさないようにする。
// bluemondayのStrictPolicyを使用し、HTMLタグを一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はタスク自由記述フィールドのサニタイズ機能のインターフェースを定義する。
// タスクの保存前にサービス層から使用される。
type TextSanitizerService interface {
	// SanitizePlain は入力からHTMLタグを全て除去したプレーンテキストを返す。
	// 前後の空白はトリムされる。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizePlain(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグを除去するため、タスクのテキストフィールドには
// 常にプレーンテキストのみが保存される。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizePlain は入力からHTMLタグを全て除去したプレーンテキストを返す。
// bluemondayはタグ除去後のテキストをHTMLエスケープした形で返すため、
// プレーンテキストとして保存できるようエスケープを解除する。
func (s *textSanitizer) SanitizePlain(raw string) string {
	sanitized := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
