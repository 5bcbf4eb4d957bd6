package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timelinesync/internal/middleware"
	"github.com/hitoshi/timelinesync/internal/model"
)

const (
	defaultPostsPerPage = 50
	maxPostsPerPage     = 200
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	ListPosts(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error)
}

// PostHandler は保存済み投稿のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
	feeds   map[string]model.Feed
	logger  *slog.Logger
}

// NewPostHandler はPostHandlerを生成する。serviceがnilの場合は一覧APIが503を返す。
func NewPostHandler(service PostServiceInterface, feeds []model.Feed, logger *slog.Logger) *PostHandler {
	byName := make(map[string]model.Feed, len(feeds))
	for _, f := range feeds {
		byName[f.Name] = f
	}
	return &PostHandler{service: service, feeds: byName, logger: logger}
}

// storedPostResponse は保存済み投稿のAPIレスポンス。
type storedPostResponse struct {
	ID       string     `json:"id"`
	SyncedAt time.Time  `json:"synced_at"`
	Post     model.Post `json:"post"`
}

// postListResponse は投稿一覧のAPIレスポンス。
type postListResponse struct {
	Posts      []storedPostResponse `json:"posts"`
	NextBefore *time.Time           `json:"next_before,omitempty"`
	HasMore    bool                 `json:"has_more"`
}

// ListPosts は保存済み投稿を新しい順に返す。
// GET /api/feeds/{name}/posts?limit=50&before=2025-01-01T00:00:00Z
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	feed, ok := h.feeds[name]
	if !ok {
		middleware.WriteSyncError(w, model.NewFeedNotFoundError(name))
		return
	}

	if h.service == nil {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.SyncError{
			Code:     "POST_STORE_DISABLED",
			Message:  "投稿の保存が無効になっています。",
			Category: "system",
			Action:   "DATABASE_URL を設定してください。",
		})
		return
	}

	limit := defaultPostsPerPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeInvalidQuery(w, "limitは正の整数で指定してください。")
			return
		}
		limit = min(n, maxPostsPerPage)
	}

	var before *time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeInvalidQuery(w, "beforeはRFC3339形式で指定してください。")
			return
		}
		before = &t
	}

	posts, err := h.service.ListPosts(r.Context(), feed.Key(), before, limit)
	if err != nil {
		h.logger.Error("投稿一覧の取得に失敗しました",
			slog.String("feed", feed.Key()),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	resp := postListResponse{Posts: make([]storedPostResponse, 0, len(posts))}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, storedPostResponse{ID: p.ID, SyncedAt: p.SyncedAt, Post: p.Post})
	}
	if n := len(posts); n > 0 && n >= limit {
		next := posts[n-1].Post.Timestamp
		resp.NextBefore = &next
		resp.HasMore = true
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeInvalidQuery(w http.ResponseWriter, msg string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.SyncError{
		Code:     "INVALID_REQUEST",
		Message:  msg,
		Category: "validation",
		Action:   "クエリパラメータを確認してください。",
	})
}
