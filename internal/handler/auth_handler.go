// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/metrics"
	"github.com/hitoshi/coursegate/internal/middleware"
	"github.com/hitoshi/coursegate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// SessionCookieEncoder はセッションIDを署名付きCookie値に変換する。
type SessionCookieEncoder interface {
	Encode(sessionID string, expiresAt time.Time) (string, error)
}

// AuthRecorder は認証イベントのメトリクスを記録する。
type AuthRecorder interface {
	RecordLogin(result, reason string)
	RecordLogout()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientURL     string // ログアウト後のリダイレクト先の基点
	PostLoginURL  string // ログイン成功後のリダイレクト先（?user= が付与される）
	EmbedProfile  bool   // trueの場合、リダイレクトURLにPrincipalのJSONを埋め込む
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	encoder  SessionCookieEncoder
	recorder AuthRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewAuthHandler(service AuthServiceInterface, encoder SessionCookieEncoder, recorder AuthRecorder, config AuthHandlerConfig) *AuthHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &AuthHandler{
		service:  service,
		encoder:  encoder,
		recorder: recorder,
		config:   config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.SetOAuthStateCookie(w, state, h.cookieConfig())
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
// 失敗時は理由を記録し、詳細を含めずに"/"へリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（ログインCSRF対策）
	if !middleware.ConsumeOAuthState(w, r, h.cookieConfig()) {
		h.failLogin(w, r, "state_mismatch", nil)
		return
	}

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.failLogin(w, r, "missing_code", nil)
		return
	}

	// 3. トークン交換とセッション発行
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.failLogin(w, r, "callback_failed", err)
		return
	}

	// 4. 署名付きセッションCookieを設定
	value, err := h.encoder.Encode(session.ID, session.ExpiresAt)
	if err != nil {
		h.failLogin(w, r, "cookie_encode_failed", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 5. フロントエンドにリダイレクト
	userParam, err := h.userParam(session.Principal)
	if err != nil {
		h.failLogin(w, r, "profile_encode_failed", err)
		return
	}
	h.recorder.RecordLogin(metrics.LoginResultSuccess, "")
	http.Redirect(w, r, h.config.PostLoginURL+"?user="+url.QueryEscape(userParam), http.StatusFound)
}

// Profile は現在のPrincipalを返す。
// GET /profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, principal)
}

// Logout はセッションを破棄してフロントエンドへリダイレクトする。
// セッションが無い場合も成功として扱う。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		slog.Error("failed to logout", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewLogoutFailedError())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.recorder.RecordLogout()
	http.Redirect(w, r, h.config.ClientURL+"/", http.StatusFound)
}

// userParam はリダイレクトURLのuserパラメータの値を返す。
func (h *AuthHandler) userParam(p *model.Principal) (string, error) {
	if !h.config.EmbedProfile {
		return p.ID, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, reason string, err error) {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.Warn("oauth login failed", attrs...)
	h.recorder.RecordLogin(metrics.LoginResultFailure, reason)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) cookieConfig() middleware.CookieConfig {
	return middleware.CookieConfig{
		Secure: h.config.CookieSecure,
		Domain: h.config.CookieDomain,
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(string, string) {}
func (noopRecorder) RecordLogout()              {}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
