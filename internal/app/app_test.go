package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/coursegate/internal/config"
	"github.com/hitoshi/coursegate/internal/handler"
)

// setTestEnv はConfig.Loadが成功する最小限の環境変数を設定する。
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "production")
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:3000/auth/google/callback")
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("CLIENT_URL", "http://localhost:5173")
	t.Setenv("DATABASE_URL", "")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.SessionStore != config.SessionStoreMemory {
		t.Errorf("SessionStore = %q, want %q", cfg.SessionStore, config.SessionStoreMemory)
	}

	// 本番環境ではJSON形式のログになる
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_DevelopmentUsesTextLogger(t *testing.T) {
	setTestEnv(t)
	t.Setenv("APP_ENV", "development")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("dev test")
	if !strings.Contains(buf.String(), "msg=\"dev test\"") {
		t.Errorf("expected text log output, got: %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("SESSION_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestOpenSessionStore_Memory(t *testing.T) {
	cfg := &config.Config{SessionStore: config.SessionStoreMemory}

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer closeStore()

	if err := store.PingContext(context.Background()); err != nil {
		t.Errorf("PingContext returned error: %v", err)
	}
}

func TestOpenSessionStore_SQLiteRunsMigrations(t *testing.T) {
	cfg := &config.Config{
		SessionStore: config.SessionStoreSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "nested", "sessions.db"),
	}

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer closeStore()

	// テーブルが存在しなければ削除クエリが失敗する
	if _, err := store.DeleteExpired(context.Background()); err != nil {
		t.Errorf("DeleteExpired returned error: %v", err)
	}
}

func TestRunMigrate_MemoryIsNoop(t *testing.T) {
	cfg := &config.Config{SessionStore: config.SessionStoreMemory}
	if err := runMigrate(cfg); err != nil {
		t.Errorf("runMigrate(memory) returned error: %v", err)
	}
}

func TestRunMigrate_SQLite(t *testing.T) {
	cfg := &config.Config{
		SessionStore: config.SessionStoreSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "sessions.db"),
	}
	if err := runMigrate(cfg); err != nil {
		t.Fatalf("runMigrate(sqlite) returned error: %v", err)
	}
	// 2回目は適用済みのためエラーにならない
	if err := runMigrate(cfg); err != nil {
		t.Errorf("second runMigrate(sqlite) returned error: %v", err)
	}
}

func TestRunWorker_RejectsMemoryStore(t *testing.T) {
	cfg := &config.Config{SessionStore: config.SessionStoreMemory}
	if err := runWorker(cfg); err == nil {
		t.Fatal("expected error for worker with memory store, got nil")
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := checkHealth(srv.URL + "/health")
			if (err != nil) != tt.wantErr {
				t.Errorf("checkHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckHealth_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := checkHealth(url + "/health"); err == nil {
		t.Fatal("expected error when server is down, got nil")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://admin:s3cret@db:5432/coursegate?sslmode=disable")
	if strings.Contains(got, "admin") || strings.Contains(got, "s3cret") {
		t.Errorf("maskDatabaseURL leaked credentials: %q", got)
	}
	if !strings.Contains(got, "db:5432") {
		t.Errorf("maskDatabaseURL should keep host, got %q", got)
	}

	if got := maskDatabaseURL("not a url"); got != "***" {
		t.Errorf("maskDatabaseURL(invalid) = %q, want ***", got)
	}
}

func TestNewMetricsRegistry_IncludesRuntimeCollectors(t *testing.T) {
	reg, collector := newMetricsRegistry()
	if collector == nil {
		t.Fatal("expected non-nil collector")
	}
	collector.RecordLogout()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"go_goroutines", "coursegate_logouts_total"} {
		if !names[want] {
			t.Errorf("expected metric %q to be registered", want)
		}
	}
}

func TestBuildRouterDeps_WiresRouter(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		t.Fatalf("openSessionStore returned error: %v", err)
	}
	defer closeStore()

	reg, collector := newMetricsRegistry()
	deps := buildRouterDeps(context.Background(), cfg, store, collector, reg)
	defer deps.RateLimiter.Stop()

	srv := httptest.NewServer(handler.NewRouter(deps))
	defer srv.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/profile", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}
