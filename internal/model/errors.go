// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// TransportError はネットワーク/HTTPの失敗を表す。
// リトライ上限に達した時点の試行回数と最後のエラーを保持する。
type TransportError struct {
	URL        string
	Attempts   int
	StatusCode int // HTTPステータス。ネットワークエラーの場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s failed after %d attempt(s) with status %d: %v", e.URL, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PaginationError はページ取得がリトライを使い切って失敗したことを表す。
// それ以前のページで蓄積された項目は呼び出し元に返される。
type PaginationError struct {
	Page int // 失敗したページ番号（1始まり）
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination: page %d: %v", e.Page, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// NormalizationError は1件の項目の正規化失敗を表す。
type NormalizationError struct {
	URI    string
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %s: %s: %v", e.URI, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize %s: %s", e.URI, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// ParseError はXML/JSONペイロードの解析失敗を表す。
type ParseError struct {
	Format string // "json" または "xml"
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SyncError は同期失敗の統一フォーマットを表す。
// 項目が1件も得られなかった場合にCLI/APIへ返す。
type SyncError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: transport, feed, validation, system
	Action   string // 利用者向け対処方法
	Err      error  `json:"-"`
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error { return e.Err }

// 定義済みエラーコード
const (
	ErrCodeTransportFailed     = "TRANSPORT_FAILED"
	ErrCodePaginationFailed    = "PAGINATION_FAILED"
	ErrCodeNormalizationFailed = "NORMALIZATION_FAILED"
	ErrCodeParseFailed         = "PARSE_FAILED"
	ErrCodeFeedNotFound        = "FEED_NOT_FOUND"
	ErrCodeSyncRateLimited     = "SYNC_RATE_LIMITED"
	ErrCodeSyncFailed          = "SYNC_FAILED"
)

// NewSyncError は失敗原因のエラー型からSyncErrorを生成する。
func NewSyncError(feedKey string, err error) *SyncError {
	var (
		normErr  *NormalizationError
		parseErr *ParseError
		transErr *TransportError
		pageErr  *PaginationError
	)
	switch {
	case errors.As(err, &normErr):
		return &SyncError{
			Code:     ErrCodeNormalizationFailed,
			Message:  fmt.Sprintf("%s: 投稿の正規化に失敗しました: %s", feedKey, normErr.URI),
			Category: "feed",
			Action:   "フィードの形式が変更されていないか確認してください。",
			Err:      err,
		}
	case errors.As(err, &parseErr):
		return &SyncError{
			Code:     ErrCodeParseFailed,
			Message:  fmt.Sprintf("%s: %sの解析に失敗しました。", feedKey, parseErr.Format),
			Category: "feed",
			Action:   "サイトURLが正しいフィードを返しているか確認してください。",
			Err:      err,
		}
	case errors.As(err, &pageErr):
		return &SyncError{
			Code:     ErrCodePaginationFailed,
			Message:  fmt.Sprintf("%s: %dページ目の取得に失敗しました。", feedKey, pageErr.Page),
			Category: "transport",
			Action:   "しばらく待ってから再度お試しください。",
			Err:      err,
		}
	case errors.As(err, &transErr):
		return &SyncError{
			Code:     ErrCodeTransportFailed,
			Message:  fmt.Sprintf("%s: %sの取得に%d回失敗しました。", feedKey, transErr.URL, transErr.Attempts),
			Category: "transport",
			Action:   "しばらく待ってから再度お試しください。",
			Err:      err,
		}
	default:
		return &SyncError{
			Code:     ErrCodeSyncFailed,
			Message:  fmt.Sprintf("%s: 同期に失敗しました。", feedKey),
			Category: "system",
			Action:   "ログを確認してください。",
			Err:      err,
		}
	}
}

// NewFeedNotFoundError はフィード未設定エラーを生成する。
func NewFeedNotFoundError(name string) *SyncError {
	return &SyncError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードは設定されていません: %s", name),
		Category: "validation",
		Action:   "フィード名を確認してください。",
	}
}

// NewSyncRateLimitedError は同期トリガーのレート制限エラーを生成する。
func NewSyncRateLimitedError(name string) *SyncError {
	return &SyncError{
		Code:     ErrCodeSyncRateLimited,
		Message:  fmt.Sprintf("同期リクエストが多すぎます: %s", name),
		Category: "validation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
