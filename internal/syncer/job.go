package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/timelinesync/internal/kvstore"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
)

// Runner は同期状態を受け取って1回の同期を実行する。
type Runner interface {
	Run(ctx context.Context, state State) Result
}

// PostSaver は正規化済みの投稿を保存する。
type PostSaver interface {
	SavePosts(ctx context.Context, feedKey string, posts []model.Post) (int, error)
}

// Job はフィード1件の同期ジョブ。状態の読み込み・保存と投稿の保存を行う。
// 同じフィードの同期が同時に走らないよう直列化する。
type Job struct {
	feed    model.Feed
	runner  Runner
	store   kvstore.Store
	posts   PostSaver
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu sync.Mutex
}

// NewJob はJobを生成する。postsがnilの場合は投稿を保存しない。
func NewJob(feed model.Feed, runner Runner, store kvstore.Store, posts PostSaver, logger *slog.Logger, m metrics.MetricsCollector) *Job {
	return &Job{
		feed:    feed,
		runner:  runner,
		store:   store,
		posts:   posts,
		logger:  logger,
		metrics: m,
	}
}

// Feed はジョブの対象フィードを返す。
func (j *Job) Feed() model.Feed {
	return j.feed
}

// Sync はカーソルを読み込んで同期を実行し、更新後のカーソルを保存する。
// 1件も得られずに失敗した場合は*model.SyncErrorを返す。
// 一部の項目を得た後の失敗はResult.Errに保持し、エラーは返さない。
func (j *Job) Sync(ctx context.Context) (Result, error) {
	return j.SyncWith(ctx, nil)
}

// SyncWith はSyncと同じ処理を行い、カーソルを保存する前に正規化済みの投稿をemitへ渡す。
// emitが失敗した場合はカーソルも投稿も保存せずにそのエラーを返す。次回の実行で同じ投稿を再取得する。
func (j *Job) SyncWith(ctx context.Context, emit func([]model.Post) error) (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	feedKey := j.feed.Key()
	start := time.Now()

	state, err := LoadState(ctx, j.store, feedKey)
	if err != nil {
		j.metrics.RecordSyncRun(feedKey, metrics.OutcomeFailure)
		return Result{}, model.NewSyncError(feedKey, err)
	}

	res := j.runner.Run(ctx, state)

	if emit != nil && len(res.Posts) > 0 {
		if err := emit(res.Posts); err != nil {
			j.metrics.RecordSyncRun(feedKey, metrics.OutcomeFailure)
			j.logger.Error("投稿の出力に失敗しました。カーソルは更新しません",
				slog.String("feed", feedKey),
				slog.String("error", err.Error()),
			)
			return res, fmt.Errorf("投稿の出力に失敗: %w", err)
		}
	}

	if err := SaveState(ctx, j.store, feedKey, res.State); err != nil {
		j.logger.Error("カーソルの保存に失敗しました",
			slog.String("feed", feedKey),
			slog.String("error", err.Error()),
		)
		res.Err = errors.Join(res.Err, err)
	}

	if j.posts != nil && len(res.Posts) > 0 {
		saved, err := j.posts.SavePosts(ctx, feedKey, res.Posts)
		if err != nil {
			j.logger.Error("投稿の保存に失敗しました",
				slog.String("feed", feedKey),
				slog.String("error", err.Error()),
			)
			res.Err = errors.Join(res.Err, fmt.Errorf("投稿の保存に失敗: %w", err))
		} else {
			j.logger.Debug("投稿を保存しました",
				slog.String("feed", feedKey),
				slog.Int("saved", saved),
			)
		}
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case res.Err != nil && len(res.Posts) == 0:
		outcome = metrics.OutcomeFailure
	case res.Err != nil:
		outcome = metrics.OutcomePartial
	}
	j.metrics.RecordSyncRun(feedKey, outcome)

	attrs := []any{
		slog.String("feed", feedKey),
		slog.String("outcome", outcome),
		slog.Int("pages", res.Pages),
		slog.Int("fetched", res.Fetched),
		slog.Int("posts", len(res.Posts)),
		slog.Int("dropped", res.Dropped),
		slog.Time("cursor", res.State.Cursor),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
		j.logger.Warn("同期が完了しませんでした", attrs...)
	} else {
		j.logger.Info("同期が完了しました", attrs...)
	}

	if outcome == metrics.OutcomeFailure {
		return res, model.NewSyncError(feedKey, res.Err)
	}
	return res, nil
}
