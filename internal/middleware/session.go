// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/model"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	sessionIDContextKey = contextKey("session_id")
)

// SessionCookieDecoder は署名付きCookie値からセッションIDを取り出す。
type SessionCookieDecoder interface {
	Decode(value string) (string, error)
}

// PrincipalFinder はセッションIDからPrincipalを取得する。
// セッションが存在しないか期限切れの場合はエラーを返す。
type PrincipalFinder interface {
	GetCurrentPrincipal(ctx context.Context, sessionID string) (*model.Principal, error)
}

// NewSessionMiddleware はCookieからセッションを読み取り、
// 有効なセッションであればPrincipalとセッションIDをコンテキストに注入する。
// 未認証のリクエストもそのまま次のハンドラーへ渡す。
func NewSessionMiddleware(decoder SessionCookieDecoder, finder PrincipalFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID, err := decoder.Decode(cookie.Value)
			if err != nil {
				slog.Debug("invalid session cookie", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithSessionID(r.Context(), sessionID)

			principal, err := finder.GetCurrentPrincipal(ctx, sessionID)
			if err != nil {
				if !errors.Is(err, auth.ErrSessionNotFound) {
					slog.Error("failed to load session",
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = ContextWithPrincipal(ctx, principal)
			recordPrincipal(ctx, principal.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireSessionMiddleware は認証済みでないリクエストに401を返すミドルウェアを返す。
// NewSessionMiddlewareの後に配置する。
func NewRequireSessionMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストからPrincipalを取得する。
// セッションミドルウェアを通過した認証済みリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// ContextWithPrincipal はコンテキストにPrincipalを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// SessionIDFromContext はCookieから復元したセッションIDを取得する。
// セッションが既に失効していても、署名が正しければ値を返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
