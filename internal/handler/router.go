package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/timelinesync/internal/middleware"
	"github.com/hitoshi/timelinesync/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// ヘルスチェック（nil可）
	HealthChecker HealthChecker
	// Prometheusスクレイプ用ハンドラー（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// フィード
	Jobs []FeedSyncer

	// 投稿（nilの場合は一覧APIが503を返す）
	PostService PostServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	feeds := make([]model.Feed, 0, len(deps.Jobs))
	for _, j := range deps.Jobs {
		feeds = append(feeds, j.Feed())
	}

	healthHandler := NewHealthHandler(deps.HealthChecker)
	feedHandler := NewFeedHandler(deps.Jobs, deps.Logger)
	postHandler := NewPostHandler(deps.PostService, feeds, deps.Logger)

	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/feeds", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", feedHandler.ListFeeds)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", feedHandler.GetFeed)
			r.Get("/posts", postHandler.ListPosts)

			// POST /api/feeds/{name}/sync - 同期トリガー（フィード単位のレート制限を追加）
			r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", feedHandler.SyncFeed)
		})
	})

	return r
}
