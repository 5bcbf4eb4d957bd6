package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/syncer"
)

// syncLine はsyncコマンドが1行ずつ出力するJSON。
type syncLine struct {
	Feed string     `json:"feed"`
	Post model.Post `json:"post"`
}

// runSync は指定フィード（省略時は全フィード）を1回ずつ順に同期する。
// 新しく得た投稿を古い順にJSON Linesでoutへ書き出してからカーソルを保存する。
// 書き出しに失敗したフィードのカーソルは進めず、その時点で中断する。
// 部分的な失敗はJobがログに記録する。失敗したフィードがあっても残りのフィードの同期は継続し、最後にまとめてエラーを返す。
func runSync(ctx context.Context, out io.Writer, c *components, names []string) error {
	jobs := c.jobs
	if len(names) > 0 {
		jobs = make([]*syncer.Job, 0, len(names))
		for _, name := range names {
			job, ok := c.job(name)
			if !ok {
				return model.NewFeedNotFoundError(name)
			}
			jobs = append(jobs, job)
		}
	}

	enc := json.NewEncoder(out)
	var errs []error
	for _, job := range jobs {
		feedKey := job.Feed().Key()
		var writeErr error
		_, err := job.SyncWith(ctx, func(posts []model.Post) error {
			for _, p := range posts {
				if writeErr = enc.Encode(syncLine{Feed: feedKey, Post: p}); writeErr != nil {
					return writeErr
				}
			}
			return nil
		})
		if writeErr != nil {
			return fmt.Errorf("failed to write output: %w", writeErr)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
