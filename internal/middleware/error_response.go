package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/timelinesync/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, syncErr *model.SyncError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     syncErr.Code,
		Message:  syncErr.Message,
		Category: syncErr.Category,
		Action:   syncErr.Action,
	})
}

// WriteSyncError はエラーコードに対応するステータスでSyncErrorを書き込む。
func WriteSyncError(w http.ResponseWriter, syncErr *model.SyncError) {
	WriteErrorResponse(w, StatusForSyncError(syncErr), syncErr)
}

// StatusForSyncError はSyncErrorのコードをHTTPステータスに変換する。
// 上流の取得・解析失敗は502とする。
func StatusForSyncError(syncErr *model.SyncError) int {
	switch syncErr.Code {
	case model.ErrCodeFeedNotFound:
		return http.StatusNotFound
	case model.ErrCodeSyncRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeTransportFailed, model.ErrCodePaginationFailed,
		model.ErrCodeParseFailed, model.ErrCodeNormalizationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.SyncError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
