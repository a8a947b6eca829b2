// Package model はドメインモデルを定義する。
package model

import "time"

// Principal は外部IdPから取得した認証済みユーザーのプロフィールを表す。
// アプリケーションは正規化や検証を行わず、そのままセッションに保持して返却する。
type Principal struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	DisplayName string         `json:"displayName"`
	Name        PrincipalName  `json:"name"`
	Emails      []ProfileEmail `json:"emails"`
	Photos      []ProfilePhoto `json:"photos,omitempty"`
}

// PrincipalName は姓名を表す。
type PrincipalName struct {
	FamilyName string `json:"familyName,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
}

// ProfileEmail はIdPが返すメールアドレスと検証状態。
type ProfileEmail struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
}

// ProfilePhoto はプロフィール画像のURL。
type ProfilePhoto struct {
	Value string `json:"value"`
}

// PrimaryEmail は先頭に列挙されたメールアドレスを返す。
// メールアドレスが存在しない場合は空文字列を返す。
func (p *Principal) PrimaryEmail() string {
	if p == nil || len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0].Value
}

// Session はブラウザが保持する不透明なIDとPrincipalの対応を表す。
type Session struct {
	ID        string
	Principal *Principal
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
