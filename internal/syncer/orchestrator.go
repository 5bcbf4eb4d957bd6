// Package syncer はカーソルの読み込みからページング、正規化、カーソル更新までの1回の同期を実行する。
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/paginate"
)

// Normalizer は生のフィード項目を正規化済みのPostに変換する。
// (nil, nil) は意図的に除外した項目を表す。
type Normalizer[T paginate.Item] interface {
	Normalize(ctx context.Context, item T) (*model.Post, error)
}

// State は実行をまたいで引き継ぐ同期状態。
type State struct {
	// Cursor は前回までに処理した最新項目の日時。ゼロ値は未同期。
	Cursor time.Time
}

// Result は1回の同期の結果。
type Result struct {
	// Posts は正規化済みの投稿（古い順）。
	Posts []model.Post
	// State は実行後の同期状態。
	State State
	// Fetched はカットオフより新しい取得済み項目数。
	Fetched int
	// Dropped は正規化で除外した項目数。
	Dropped int
	// Pages は取得したページ数。
	Pages int
	// Err は途中で発生したエラー。Postsが空でなければ部分的な成功。
	Err error
}

// Partial は一部の項目だけを返した実行かを返す。
func (r Result) Partial() bool {
	return r.Err != nil && len(r.Posts) > 0
}

// Options はOrchestratorの設定。
type Options struct {
	FeedKey  string
	Lookback time.Duration
	MaxItems int
	MaxPages int
}

// Orchestrator は1フィード分の同期を実行する。
// ページングと正規化は逐次に行い、同一インスタンスの並行実行は想定しない。
type Orchestrator[T paginate.Item] struct {
	source     paginate.PageSource[T]
	normalizer Normalizer[T]
	opts       Options
	now        func() time.Time
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator[T paginate.Item](
	source paginate.PageSource[T],
	normalizer Normalizer[T],
	opts Options,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *Orchestrator[T] {
	return &Orchestrator[T]{
		source:     source,
		normalizer: normalizer,
		opts:       opts,
		now:        time.Now,
		logger:     logger,
		metrics:    m,
	}
}

// Run は同期を1回実行する。
//
// 取得した項目を古い順に正規化し、失敗した時点で以降の項目の処理をやめる。
// カーソルは最後に処理した項目（正規化済みまたは除外済み）の日時まで進め、
// 前回より古くなることはない。
func (o *Orchestrator[T]) Run(ctx context.Context, state State) Result {
	cutoff := state.Cursor
	if cutoff.IsZero() {
		cutoff = o.now().Add(-o.opts.Lookback)
	}

	page, pageErr := paginate.Paginate[T](ctx, o.source, paginate.Options{
		Cutoff:   cutoff,
		MaxItems: o.opts.MaxItems,
		MaxPages: o.opts.MaxPages,
	})
	for i := 0; i < page.Pages; i++ {
		o.metrics.RecordPageFetched(o.opts.FeedKey)
	}
	if pageErr != nil {
		o.logger.Warn("ページ取得に失敗しました。取得済みの項目を処理します",
			slog.String("feed", o.opts.FeedKey),
			slog.Int("pages", page.Pages),
			slog.Int("items", len(page.Items)),
			slog.String("error", pageErr.Error()),
		)
	}

	items := oldestFirst(page.Items)
	res := Result{
		State:   state,
		Fetched: len(items),
		Pages:   page.Pages,
		Err:     pageErr,
	}

	// beforeSameTime は処理中の項目と同じ時刻の項目より前に処理した最新時刻。
	var lastProcessed, beforeSameTime time.Time
	for _, item := range items {
		ts := item.Timestamp()
		if ts.After(lastProcessed) {
			beforeSameTime = lastProcessed
		}

		post, err := o.normalizer.Normalize(ctx, item)
		if err == nil && post != nil && (post.URI == "" || post.Timestamp.IsZero()) {
			err = &model.NormalizationError{URI: post.URI, Reason: "uri または timestamp が空です"}
		}
		if err != nil {
			var normErr *model.NormalizationError
			if !errors.As(err, &normErr) {
				err = &model.NormalizationError{Reason: "正規化に失敗", Err: err}
			}
			o.metrics.RecordNormalizationFailure(o.opts.FeedKey)
			o.logger.Warn("項目の正規化に失敗しました。以降の項目の処理を中止します",
				slog.String("feed", o.opts.FeedKey),
				slog.Int("normalized", len(res.Posts)),
				slog.Int("remaining", len(items)-len(res.Posts)-res.Dropped),
				slog.String("error", err.Error()),
			)
			res.Err = errors.Join(res.Err, err)
			// 同時刻の処理済み項目までカーソルを進めると、失敗した項目が次回 ts > cursor で選ばれなくなる。
			if !ts.After(lastProcessed) {
				lastProcessed = beforeSameTime
			}
			break
		}

		if post == nil {
			res.Dropped++
		} else {
			res.Posts = append(res.Posts, *post)
		}
		lastProcessed = ts
	}

	if lastProcessed.After(state.Cursor) {
		res.State.Cursor = lastProcessed
	}
	o.metrics.RecordPostsNormalized(o.opts.FeedKey, len(res.Posts))

	return res
}

// oldestFirst は新しい順の項目を古い順に並べ替えた新しいスライスを返す。
func oldestFirst[T paginate.Item](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp().Before(out[j].Timestamp())
	})
	return out
}
