// Package security はアプリケーションのセキュリティ機能を提供する。
//
// PostSanitizer は投稿のタイトルと本文から全てのHTMLを除去する。
// 結果はJSONのプレーンテキストとして返すため、エンティティは元の文字に戻す。
// IdPへの外向きリクエストには許可ホスト限定のHTTPクライアントを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PostSanitizer は投稿入力のサニタイズ機能のインターフェースを定義する。
type PostSanitizer interface {
	// SanitizeTitle はタイトルからHTMLを除去し、前後の空白を取り除く。
	SanitizeTitle(raw string) string
	// SanitizeContent は本文からHTMLを除去する。
	SanitizeContent(raw string) string
}

// postSanitizer はPostSanitizerの実装。
// bluemondayのポリシーはゴルーチン間で共有して安全に使用できる。
type postSanitizer struct {
	policy *bluemonday.Policy
}

// NewPostSanitizer はStrictPolicyを用いたPostSanitizerを生成する。
func NewPostSanitizer() *postSanitizer {
	return &postSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeTitle はタイトルをサニタイズする。
func (s *postSanitizer) SanitizeTitle(raw string) string {
	return strings.TrimSpace(s.stripTags(raw))
}

// SanitizeContent は本文をサニタイズする。
func (s *postSanitizer) SanitizeContent(raw string) string {
	return s.stripTags(raw)
}

// stripTags はタグを除去し、bluemondayが付与したエスケープを戻す。
func (s *postSanitizer) stripTags(raw string) string {
	return html.UnescapeString(s.policy.Sanitize(raw))
}
