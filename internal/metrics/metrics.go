// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginResultSuccess = "success"
	LoginResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(result, reason string)
	RecordLogout()
	RecordAuthzDenied(route string)
	RecordSessionsPurged(count int64)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	logouts        prometheus.Counter
	authzDenied    *prometheus.CounterVec
	sessionsPurged prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_logins_total",
			Help: "OAuthログインの結果別の合計数",
		}, []string{"result", "reason"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegate_logouts_total",
			Help: "ログアウトの合計数",
		}),
		authzDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_authz_denied_total",
			Help: "認可ポリシーで拒否されたリクエスト数",
		}, []string{"route"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegate_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_http_requests_total",
			Help: "ルートとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursegate_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.logins,
		c.logouts,
		c.authzDenied,
		c.sessionsPurged,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordLogin はログイン結果を記録する。成功時のreasonは空文字列とする。
func (c *Collector) RecordLogin(result, reason string) {
	c.logins.WithLabelValues(result, reason).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordAuthzDenied は認可拒否をルートパターン単位で記録する。
func (c *Collector) RecordAuthzDenied(route string) {
	c.authzDenied.WithLabelValues(route).Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// statusWriter はステータスコードを記録するResponseWriter。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Middleware はリクエストごとにHTTPメトリクスを記録するミドルウェアを返す。
// ルートラベルにはchiのルートパターンを使い、パスパラメータによるラベル増加を防ぐ。
func Middleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordHTTPRequest(r.Method, RoutePattern(r), status, time.Since(start))
		})
	}
}

// RoutePattern はマッチしたchiのルートパターンを返す。マッチしない場合は"unmatched"。
// 生のパスはIDを含むため、ラベルには必ずこちらを使う。
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
