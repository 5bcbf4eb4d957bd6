package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/timelinesync/internal/transport"
)

func TestNewSafeClient_Timeout(t *testing.T) {
	client := NewGuard().NewSafeClient(5*time.Second, 5*1024*1024)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 5*time.Second)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurlのTransportが設定されているべき")
	}
}

// TestNewSafeClient_BlocksLoopback はhttptestサーバー（127.0.0.1）への接続が拒否されることを検証する。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewGuard().NewSafeClient(5*time.Second, 5*1024*1024)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("ループバックへのリクエストはエラーになるべき")
	}
}

func TestValidateURL_Allowed(t *testing.T) {
	guard := NewGuard()
	urls := []string{
		"https://api.tumblr.com/v2/user/dashboard?npf=true",
		"https://nitter.example.com/alice,bob/rss",
		"http://nitter.example.com:80/rss",
	}
	for _, u := range urls {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURL_Rejected(t *testing.T) {
	guard := NewGuard()
	tests := []struct {
		name string
		url  string
	}{
		{"空文字列", ""},
		{"ftpスキーム", "ftp://example.com/feed"},
		{"fileスキーム", "file:///etc/passwd"},
		{"ホストなし", "http:///rss"},
		{"プライベートIP 10.x", "http://10.0.0.1/rss"},
		{"プライベートIP 172.16.x", "http://172.16.0.1/rss"},
		{"プライベートIP 192.168.x", "http://192.168.1.1/rss"},
		{"ループバック", "http://127.0.0.1/rss"},
		{"IPv6ループバック", "http://[::1]/rss"},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/"},
		{"ゼロアドレス", "http://0.0.0.0/rss"},
		{"localhost", "http://localhost/rss"},
		{"localhostサブドメイン", "http://nitter.localhost/rss"},
		{"許可されていないポート", "https://nitter.example.com:8443/rss"},
		{"不正なポート", "https://nitter.example.com:abc/rss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) はエラーを返すべき", tt.url)
			}
		})
	}
}

func TestValidateURL_CustomPorts(t *testing.T) {
	guard := NewGuard(443, 8443)

	if err := guard.ValidateURL("https://nitter.example.com:8443/rss"); err != nil {
		t.Errorf("追加したポートは許可されるべき: %v", err)
	}
	if err := guard.ValidateURL("http://nitter.example.com/rss"); err == nil {
		t.Error("指定していないポート80は拒否されるべき")
	}
}

func TestGuard_ImplementsSSRFValidator(t *testing.T) {
	var _ transport.SSRFValidator = NewGuard()
}
