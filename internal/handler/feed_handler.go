package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timelinesync/internal/middleware"
	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/syncer"
)

// FeedSyncer はフィード1件の同期ジョブ。*syncer.Jobが満たす。
type FeedSyncer interface {
	Feed() model.Feed
	Sync(ctx context.Context) (syncer.Result, error)
}

// FeedHandler はフィード一覧と同期トリガーのHTTPハンドラー。
type FeedHandler struct {
	jobs   map[string]FeedSyncer
	order  []string
	logger *slog.Logger
}

// NewFeedHandler はFeedHandlerを生成する。一覧は渡された順序で返す。
func NewFeedHandler(jobs []FeedSyncer, logger *slog.Logger) *FeedHandler {
	h := &FeedHandler{
		jobs:   make(map[string]FeedSyncer, len(jobs)),
		logger: logger,
	}
	for _, j := range jobs {
		name := j.Feed().Name
		h.jobs[name] = j
		h.order = append(h.order, name)
	}
	return h
}

// feedResponse はフィード設定のAPIレスポンス。認証トークンは含めない。
type feedResponse struct {
	Name           string   `json:"name"`
	Key            string   `json:"key"`
	Kind           string   `json:"kind"`
	SiteURL        string   `json:"site_url"`
	Accounts       []string `json:"accounts,omitempty"`
	IncludeReblogs bool     `json:"include_reblogs"`
	IncludeTags    bool     `json:"include_tags"`
	Lookback       string   `json:"lookback"`
	MaxItems       int      `json:"max_items"`
}

// syncResponse は同期実行結果のAPIレスポンス。
type syncResponse struct {
	Feed    string       `json:"feed"`
	Posts   []model.Post `json:"posts"`
	Cursor  *time.Time   `json:"cursor,omitempty"`
	Pages   int          `json:"pages"`
	Fetched int          `json:"fetched"`
	Dropped int          `json:"dropped"`
	Partial bool         `json:"partial"`
	Error   string       `json:"error,omitempty"`
}

// ListFeeds は設定済みフィードの一覧を返す。
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := make([]feedResponse, 0, len(h.order))
	for _, name := range h.order {
		feeds = append(feeds, toFeedResponse(h.jobs[name].Feed()))
	}
	writeJSON(w, http.StatusOK, feeds)
}

// GetFeed はフィード設定を返す。
// GET /api/feeds/{name}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(job.Feed()))
}

// SyncFeed はフィードの同期を実行し、新しく得た投稿を古い順に返す。
// POST /api/feeds/{name}/sync
func (h *FeedHandler) SyncFeed(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	res, err := job.Sync(r.Context())
	if err != nil {
		var syncErr *model.SyncError
		if !errors.As(err, &syncErr) {
			syncErr = model.NewSyncError(job.Feed().Key(), err)
		}
		h.logger.Warn("同期APIが失敗しました",
			slog.String("feed", job.Feed().Key()),
			slog.String("code", syncErr.Code),
			slog.String("error", err.Error()),
		)
		middleware.WriteSyncError(w, syncErr)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(job.Feed(), res))
}

func (h *FeedHandler) lookup(w http.ResponseWriter, r *http.Request) (FeedSyncer, bool) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		middleware.WriteSyncError(w, model.NewFeedNotFoundError(name))
		return nil, false
	}
	return job, true
}

func toFeedResponse(f model.Feed) feedResponse {
	return feedResponse{
		Name:           f.Name,
		Key:            f.Key(),
		Kind:           string(f.Kind),
		SiteURL:        f.SiteURL,
		Accounts:       f.Accounts,
		IncludeReblogs: f.IncludeReblogs,
		IncludeTags:    f.IncludeTags,
		Lookback:       f.Lookback.String(),
		MaxItems:       f.MaxItems,
	}
}

func toSyncResponse(f model.Feed, res syncer.Result) syncResponse {
	resp := syncResponse{
		Feed:    f.Key(),
		Posts:   res.Posts,
		Pages:   res.Pages,
		Fetched: res.Fetched,
		Dropped: res.Dropped,
		Partial: res.Err != nil,
	}
	if resp.Posts == nil {
		resp.Posts = []model.Post{}
	}
	if !res.State.Cursor.IsZero() {
		cursor := res.State.Cursor
		resp.Cursor = &cursor
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
