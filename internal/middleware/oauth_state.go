package middleware

import (
	"crypto/subtle"
	"net/http"
)

const (
	// OAuthStateCookieName はOAuthのstateを保持するCookieの名前。
	OAuthStateCookieName = "oauth_state"

	oauthStateMaxAge = 600 // 10分
	oauthStatePath   = "/auth/google"
)

// CookieConfig はアプリケーションが発行するCookieの共通属性。
type CookieConfig struct {
	Secure bool
	Domain string
}

// SetOAuthStateCookie はログイン開始時にstateをCookieへ保存する。
// コールバックでクエリのstateと照合し、ログインCSRFを防ぐ。
func SetOAuthStateCookie(w http.ResponseWriter, state string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    state,
		Path:     oauthStatePath,
		Domain:   config.Domain,
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ConsumeOAuthState はクエリのstateとCookieの値を照合し、Cookieを削除する。
// 一致した場合のみtrueを返す。
func ConsumeOAuthState(w http.ResponseWriter, r *http.Request, config CookieConfig) bool {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookieName,
		Value:    "",
		Path:     oauthStatePath,
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := r.Cookie(OAuthStateCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}
