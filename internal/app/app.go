package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/coursegate/internal/auth"
	"github.com/hitoshi/coursegate/internal/config"
	"github.com/hitoshi/coursegate/internal/database"
	"github.com/hitoshi/coursegate/internal/handler"
	"github.com/hitoshi/coursegate/internal/logger"
	"github.com/hitoshi/coursegate/internal/metrics"
	"github.com/hitoshi/coursegate/internal/middleware"
	"github.com/hitoshi/coursegate/internal/repository"
	"github.com/hitoshi/coursegate/internal/security"
	"github.com/hitoshi/coursegate/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envを読み込み、環境変数からConfigを構築し、APP_ENVに応じたロガーを設定する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイル（存在する場合のみ）
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 環境に応じたロガーに差し替える
	logger.SetupForEnv(w, cfg.AppEnv)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// runWithConfig は設定を読み込んでからサブコマンド本体を実行する。
func runWithConfig(w io.Writer, command string, run func(*config.Config) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", command),
		slog.String("env", cfg.AppEnv),
		slog.String("session_store", cfg.SessionStore),
	)

	return run(cfg)
}

// openSessionStore はSESSION_STOREに応じたセッションリポジトリを開く。
// 戻り値のcloserは必ず呼び出すこと。
func openSessionStore(cfg *config.Config) (repository.SessionRepository, func() error, error) {
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return repository.NewPostgresSessionRepo(db), db.Close, nil

	case config.SessionStoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		// SQLiteは単一ノード構成のため起動時にスキーマを揃える
		if err := database.RunSQLiteMigrations(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite migration failed: %w", err)
		}
		slog.Info("sqlite session store opened", slog.String("path", cfg.SQLitePath))
		return repository.NewSQLiteSessionRepo(db), db.Close, nil

	default:
		slog.Warn("using in-memory session store; sessions are lost on restart")
		return repository.NewMemorySessionRepo(), func() error { return nil }, nil
	}
}

// newMetricsRegistry はランタイム情報とアプリケーションメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouterDeps はConfigとセッションストアから全依存関係をワイヤリングする。
func buildRouterDeps(ctx context.Context, cfg *config.Config, store repository.SessionRepository, collector *metrics.Collector, gatherer prometheus.Gatherer) *handler.RouterDeps {
	// 1. Google への外向き通信は許可ホストに限定する
	oauthClient := security.NewOutboundClient(cfg.OAuthHTTPTimeout, security.GoogleOAuthHosts...)

	// 2. OAuthプロバイダ
	var verifier auth.IDTokenVerifier
	if cfg.OIDCVerifyIDToken {
		verifier = auth.NewGoogleIDTokenVerifier(ctx, cfg.GoogleClientID, oauthClient)
	}
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   oauthClient,
		Verifier:     verifier,
	})

	// 3. 認証サービス
	authService := auth.NewService(oauthProvider, store, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})

	if cfg.PrivilegedEmail == "" {
		slog.Warn("PRIVILEGED_EMAIL is not set; all post requests will be denied")
	}

	return &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		CookieCodec:     auth.NewSessionCookieCodec(cfg.SessionSecret),
		PrincipalFinder: authService,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			ClientURL:     cfg.ClientURL,
			PostLoginURL:  cfg.PostLoginURL(),
			EmbedProfile:  cfg.RedirectEmbedProfile,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Policy:        auth.PrimaryEmailPolicy(cfg.PrivilegedEmail),
		RateLimiter:   middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitMutations)),
		PostSanitizer: security.NewPostSanitizer(),

		Pinger:   store,
		Metrics:  collector,
		Gatherer: gatherer,
	}
}

// runServe はAPIサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeStore()

	reg, collector := newMetricsRegistry()
	deps := buildRouterDeps(ctx, cfg, store, collector, reg)
	defer deps.RateLimiter.Stop()

	if cfg.RedirectEmbedProfile {
		slog.Warn("REDIRECT_EMBED_PROFILE is enabled; the profile is exposed in the post-login URL")
	}

	// 期限切れセッションの削除
	cleanupJob := cleanup.NewCleanupJob(store, collector, slog.Default())
	cleanupJob.Interval = cfg.SessionCleanupInterval
	go cleanupJob.Start(ctx)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("client_url", cfg.ClientURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は期限切れセッションの削除ジョブのみを起動する。
// 複数プロセスで共有できるストア（PostgreSQL/SQLite）が前提。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore == config.SessionStoreMemory {
		return errors.New("worker requires a shared session store (SESSION_STORE=postgres or sqlite)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeStore()

	cleanupJob := cleanup.NewCleanupJob(store, nil, slog.Default())
	cleanupJob.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting", slog.Duration("interval", cleanupJob.Interval))
	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はセッションストアのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.SessionStoreSQLite:
		slog.Info("running sqlite migrations", slog.String("path", cfg.SQLitePath))
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.RunSQLiteMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	default:
		slog.Info("in-memory session store has no schema; nothing to migrate")
		return nil
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(endpoint string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}

// Main はプロセスの終了コードを決めるラッパー。
func Main() int {
	if err := Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
