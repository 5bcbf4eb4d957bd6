package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/timelinesync/internal/metrics"
)

// mockSSRFGuard はSSRFValidatorのテスト用モック。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

func newTestHTTPFetcher(guard SSRFValidator, maxBody int64) *HTTPFetcher {
	var buf bytes.Buffer
	return NewHTTPFetcher(guard, HTTPOptions{
		Timeout:     5 * time.Second,
		MaxBodySize: maxBody,
	}, newTestLogger(&buf), metrics.NopCollector{})
}

func TestHTTPFetcher_Fetch_ReturnsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer token")
		}
		w.Header().Set("Min-Id", "12345")
		fmt.Fprint(w, "hello")
	}))
	defer server.Close()

	f := newTestHTTPFetcher(&mockSSRFGuard{}, 1024)
	resp, err := f.Fetch(context.Background(), Request{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	if err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if resp.Text() != "hello" {
		t.Errorf("body = %q, want %q", resp.Text(), "hello")
	}
	if got := resp.Header.Get("Min-Id"); got != "12345" {
		t.Errorf("Min-Id = %q, want %q", got, "12345")
	}
}

func TestHTTPFetcher_Fetch_SendsMethodAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q, want %q", body, "payload")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	f := newTestHTTPFetcher(&mockSSRFGuard{}, 1024)
	resp, err := f.Fetch(context.Background(), Request{URL: server.URL, Method: http.MethodPost, Body: []byte("payload")})
	if err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want 204", resp.StatusCode)
	}
}

func TestHTTPFetcher_Fetch_Non2xxReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newTestHTTPFetcher(&mockSSRFGuard{}, 1024)
	_, err := f.Fetch(context.Background(), Request{URL: server.URL})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StatusError を返すべき, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
}

func TestHTTPFetcher_Fetch_LimitsBodySize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0123456789")
	}))
	defer server.Close()

	f := newTestHTTPFetcher(&mockSSRFGuard{}, 4)
	resp, err := f.Fetch(context.Background(), Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if resp.Text() != "0123" {
		t.Errorf("body = %q, want %q", resp.Text(), "0123")
	}
}

func TestHTTPFetcher_Fetch_SSRFRejected(t *testing.T) {
	f := newTestHTTPFetcher(&mockSSRFGuard{validateErr: errors.New("blocked host: localhost")}, 1024)

	_, err := f.Fetch(context.Background(), Request{URL: "http://localhost/"})
	if !errors.Is(err, ErrRequestRejected) {
		t.Errorf("ErrRequestRejected を返すべき, got %v", err)
	}
}
