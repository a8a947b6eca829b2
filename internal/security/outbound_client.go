package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// GoogleOAuthHosts はGoogle OAuthのトークン交換とユーザー情報取得で接続するホスト。
var GoogleOAuthHosts = []string{
	"accounts.google.com",
	"oauth2.googleapis.com",
	"www.googleapis.com",
	"openidconnect.googleapis.com",
}

// NewOutboundClient はIdPへのリクエスト用HTTPクライアントを生成する。
// safeurlのDialerによりプライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はDNS解決後に拒否される。
// さらにhttpsスキームかつ許可ホストへのリクエストのみを送信する。
func NewOutboundClient(timeout time.Duration, allowedHosts ...string) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	client := safeurl.Client(config).Client

	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}

	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client.Transport = &hostAllowlistTransport{hosts: hosts, next: next}
	return client
}

// hostAllowlistTransport はスキームとホストを検証してから下位のTransportに委譲する。
type hostAllowlistTransport struct {
	hosts map[string]struct{}
	next  http.RoundTripper
}

func (t *hostAllowlistTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.check(req); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	return t.next.RoundTrip(req)
}

func (t *hostAllowlistTransport) check(req *http.Request) error {
	if req.URL == nil {
		return fmt.Errorf("request URL is nil")
	}
	if !strings.EqualFold(req.URL.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %s", req.URL.Scheme)
	}
	host := strings.ToLower(req.URL.Hostname())
	if _, ok := t.hosts[host]; !ok {
		return fmt.Errorf("disallowed host: %s", host)
	}
	return nil
}
