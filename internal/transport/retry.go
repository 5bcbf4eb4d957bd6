package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（2xx）。
	FetchResultOK FetchResult = iota
	// FetchResultStop はリトライしても回復しないステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultRetry はリトライ対象のステータス（429/5xx）。
	FetchResultRetry
	// FetchResultUnknown は未知のステータスコード。リトライ対象として扱う。
	FetchResultUnknown
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode >= 200 && statusCode <= 299:
		return FetchResultOK
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultRetry
	case statusCode >= 500:
		return FetchResultRetry
	default:
		return FetchResultUnknown
	}
}

// RetryingFetcher は失敗したリクエストを固定間隔で再試行するFetcher。
type RetryingFetcher struct {
	next        Fetcher
	maxAttempts int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
}

// NewRetryingFetcher はRetryingFetcherの新しいインスタンスを生成する。
// maxAttemptsは初回を含む総試行回数で、1未満は1として扱う。
func NewRetryingFetcher(next Fetcher, maxAttempts int, delay time.Duration, logger *slog.Logger, m metrics.MetricsCollector) *RetryingFetcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingFetcher{
		next:        next,
		maxAttempts: maxAttempts,
		delay:       delay,
		sleep:       sleepContext,
		logger:      logger,
		metrics:     m,
	}
}

// Fetch はリクエストを最大maxAttempts回試行する。
// 全試行が失敗した場合は試行回数と最後のエラーを持つ*model.TransportErrorを返す。
func (f *RetryingFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	var (
		lastErr  error
		status   int
		attempts int
	)

	for attempts < f.maxAttempts {
		attempts++
		resp, err := f.next.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		status = 0
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}

		if !isRetryable(ctx, err) || attempts >= f.maxAttempts {
			break
		}

		f.logger.Warn("リクエストを再試行します",
			slog.String("url", req.URL),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", f.maxAttempts),
			slog.Duration("delay", f.delay),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordRetry()

		if err := f.sleep(ctx, f.delay); err != nil {
			lastErr = err
			break
		}
	}

	return nil, &model.TransportError{
		URL:        req.URL,
		Attempts:   attempts,
		StatusCode: status,
		Err:        lastErr,
	}
}

// isRetryable はエラーが再試行で回復し得るかを判定する。
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRequestRejected) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyHTTPStatus(statusErr.StatusCode) != FetchResultStop
	}
	return true
}

// sleepContext はコンテキストのキャンセルを考慮して待機する。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
