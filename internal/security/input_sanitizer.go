// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService は管理者が入力するProfile名・備考などの自由テキストを
// サニタイズし、管理UIに表示した際のXSSを防止する。
// bluemondayのStrictPolicyを使用し、HTMLタグをすべて除去したプレーンテキストのみを保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService は自由テキスト入力のサニタイズ機能のインターフェースを定義する。
// Profileの作成・更新時に使用される。
type InputSanitizerService interface {
	// Sanitize は入力文字列からHTMLタグをすべて除去し、前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。Profile名や備考はプレーンテキストであり、
// HTMLを保持する理由がないため最も厳格なポリシーを適用する。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力文字列からHTMLタグをすべて除去し、前後の空白を取り除いて返す。
// bluemondayはタグ除去後にエンティティ参照へエスケープするため、
// 保存値がプレーンテキストとなるようアンエスケープして返す。
func (s *inputSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
