// Package transport はリモートAPIへのHTTPアクセスとリトライを提供する。
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/timelinesync/internal/metrics"
)

// DefaultUserAgent はリクエストに付与するUser-Agent。
const DefaultUserAgent = "Timelinesync/1.0"

// ErrRequestRejected は送信前に拒否されたリクエストを表す。リトライ対象外。
var ErrRequestRejected = errors.New("request rejected")

// Request は1回のフェッチ要求。MethodとHeadersは省略可能。
type Request struct {
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string
}

// Response はフェッチ結果。ボディとレスポンスヘッダーを常に保持する。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text はボディを文字列として返す。
func (r *Response) Text() string {
	return string(r.Body)
}

// Fetcher はネットワーク境界のインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc は関数をFetcherとして扱うアダプタ。
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch はFetcherインターフェースを実装する。
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError は2xx以外のHTTPステータスを表す。
type StatusError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// HTTPOptions はHTTPFetcherの設定。
type HTTPOptions struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
	// RequestRate は1秒あたりのリクエスト数の上限。0以下は無制限。
	RequestRate float64
}

// HTTPFetcher はSSRF防止クライアントでリクエストを送信するFetcher。
type HTTPFetcher struct {
	guard       SSRFValidator
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
}

// NewHTTPFetcher はHTTPFetcherの新しいインスタンスを生成する。
func NewHTTPFetcher(guard SSRFValidator, opts HTTPOptions, logger *slog.Logger, m metrics.MetricsCollector) *HTTPFetcher {
	limit := rate.Inf
	if opts.RequestRate > 0 {
		limit = rate.Limit(opts.RequestRate)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &HTTPFetcher{
		guard:       guard,
		client:      guard.NewSafeClient(opts.Timeout, opts.MaxBodySize),
		limiter:     rate.NewLimiter(limit, 1),
		userAgent:   ua,
		maxBodySize: opts.MaxBodySize,
		logger:      logger,
		metrics:     m,
	}
}

// Fetch はリクエストを1回だけ送信する。リトライはRetryingFetcherが行う。
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := f.guard.ValidateURL(req.URL); err != nil {
		return nil, fmt.Errorf("%w: SSRF検証に失敗: %v", ErrRequestRejected, err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("リクエスト間隔の待機に失敗: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: リクエスト作成に失敗: %v", ErrRequestRejected, err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordFetchLatency(time.Since(start))
	f.metrics.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Debug("2xx以外のレスポンスを受信しました",
			slog.String("url", req.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if f.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodySize)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}
