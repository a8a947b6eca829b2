package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/metrics"
	"github.com/hitoshi/coursegate/internal/middleware"
	"github.com/hitoshi/coursegate/internal/security"
)

// SessionCookieCodec はセッションCookieのエンコードとデコードを行う。
type SessionCookieCodec interface {
	middleware.SessionCookieDecoder
	SessionCookieEncoder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// セッション
	CookieCodec     SessionCookieCodec
	PrincipalFinder middleware.PrincipalFinder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 投稿
	Policy        auth.Policy
	RateLimiter   *middleware.RateLimiter
	PostSanitizer security.PostSanitizer

	// 運用
	Pinger   Pinger
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → Metrics → SecurityHeaders → CORS → Session
//
// /profile はセッション必須、/posts はさらに認可ポリシーとレート制限を通過する必要がある。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(metrics.Middleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.CookieCodec, deps.PrincipalFinder))

	var recorder AuthRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.CookieCodec, recorder, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostSanitizer)

	// --- 認証不要のルート ---
	r.Get("/auth/google", authHandler.Login)
	r.Get("/auth/google/callback", authHandler.Callback)
	r.Get("/logout", authHandler.Logout)

	if deps.Pinger != nil {
		r.Get("/health", NewHealthHandler(deps.Pinger).Check)
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireSessionMiddleware())

		r.Get("/profile", authHandler.Profile)

		// 認可ポリシーを満たすPrincipalのみ
		r.Group(func(r chi.Router) {
			var opts []middleware.AuthorizationOption
			if deps.Metrics != nil {
				opts = append(opts, middleware.WithDenyHook(func(req *http.Request) {
					deps.Metrics.RecordAuthzDenied(metrics.RoutePattern(req))
				}))
			}
			r.Use(middleware.NewAuthorizationMiddleware(deps.Policy, opts...))
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}

			r.Post("/posts", postHandler.Create)
			r.Delete("/posts/{id}", postHandler.Delete)
		})
	})

	return r
}
