package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/model"
)

// AuthorizationOption はNewAuthorizationMiddlewareのオプション。
type AuthorizationOption func(*authorizationOptions)

type authorizationOptions struct {
	onDeny func(r *http.Request)
}

// WithDenyHook は拒否時に呼び出される関数を設定する。
func WithDenyHook(fn func(r *http.Request)) AuthorizationOption {
	return func(o *authorizationOptions) {
		o.onDeny = fn
	}
}

// NewAuthorizationMiddleware はPrincipalがpolicyを満たす場合のみ次のハンドラーを呼ぶ。
// Principalが無い、またはpolicyが偽を返した場合は403を返して処理を終える。
// policyがnilの場合は全て拒否する。
func NewAuthorizationMiddleware(policy auth.Policy, opts ...AuthorizationOption) func(next http.Handler) http.Handler {
	var o authorizationOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || policy == nil || !policy(principal) {
				attrs := []any{
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if ok {
					attrs = append(attrs, slog.String("principal_id", principal.ID))
				}
				slog.Warn("authorization denied", attrs...)
				if o.onDeny != nil {
					o.onDeny(r)
				}
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
