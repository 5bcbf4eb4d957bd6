// Package paginate は継続トークンによるページ取得をカットオフ日時まで繰り返す。
package paginate

import (
	"context"
	"time"

	"github.com/hitoshi/timelinesync/internal/model"
)

// DefaultMaxPages は1回の同期で取得する最大ページ数。
const DefaultMaxPages = 10

// Item はタイムスタンプを持つ生のフィード項目。
type Item interface {
	Timestamp() time.Time
}

// Page は1回の取得で得られた項目（新しい順）と次ページの継続トークン。
// Nextが空の場合は最後のページ。
type Page[T Item] struct {
	Items []T
	Next  string
}

// PageSource は継続トークンを受け取ってページを返す。最初のページは空トークンで要求する。
type PageSource[T Item] interface {
	FetchPage(ctx context.Context, token string) (Page[T], error)
}

// PageSourceFunc は関数をPageSourceとして扱うアダプタ。
type PageSourceFunc[T Item] func(ctx context.Context, token string) (Page[T], error)

// FetchPage はPageSourceインターフェースを実装する。
func (f PageSourceFunc[T]) FetchPage(ctx context.Context, token string) (Page[T], error) {
	return f(ctx, token)
}

// Options はページングの停止条件。
type Options struct {
	// Cutoff より新しい（厳密に後の）項目だけを収集する。
	Cutoff time.Time
	// MaxItems は収集件数の上限。0は無制限。
	MaxItems int
	// MaxPages は取得ページ数の上限。0はDefaultMaxPages。
	MaxPages int
}

// Result はページングの結果。
type Result[T Item] struct {
	// Items はカットオフより新しい項目（新しい順）。
	Items []T
	// NewestSeen は取得した全項目の中で最新のタイムスタンプ。
	NewestSeen time.Time
	// Pages は取得に成功したページ数。
	Pages int
}

// Paginate はページを順に取得し、カットオフより新しい項目を蓄積する。
//
// ページ内の全項目がカットオフ以前であれば次のページを要求せずに終了する。
// ページ取得に失敗した場合は、それまでに蓄積した結果と*model.PaginationErrorを返す。
func Paginate[T Item](ctx context.Context, src PageSource[T], opts Options) (Result[T], error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var res Result[T]
	token := ""
	requested := make(map[string]bool)

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return res, &model.PaginationError{Page: page, Err: err}
		}

		p, err := src.FetchPage(ctx, token)
		if err != nil {
			return res, &model.PaginationError{Page: page, Err: err}
		}
		res.Pages++

		hasNew := false
		for _, item := range p.Items {
			ts := item.Timestamp()
			if ts.After(res.NewestSeen) {
				res.NewestSeen = ts
			}
			if !ts.After(opts.Cutoff) {
				continue
			}
			hasNew = true
			res.Items = append(res.Items, item)
			if opts.MaxItems > 0 && len(res.Items) >= opts.MaxItems {
				return res, nil
			}
		}

		if !hasNew || p.Next == "" || requested[p.Next] {
			return res, nil
		}
		requested[p.Next] = true
		token = p.Next
	}

	return res, nil
}
