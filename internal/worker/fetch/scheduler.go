// Package fetch は設定済みフィードの定期同期を提供する。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/syncer"
)

// SyncJob はフィード1件の同期ジョブ。*syncer.Jobが満たす。
type SyncJob interface {
	Feed() model.Feed
	Sync(ctx context.Context) (syncer.Result, error)
}

// Scheduler は一定間隔で全フィードの同期を実行する。
// semaphoreパターンで同時に同期するフィード数を制限する。
type Scheduler struct {
	jobs           []SyncJob
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(jobs []SyncJob, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		jobs:           jobs,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はintervalごとに同期サイクルを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("feed_count", len(s.jobs)),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全フィードの同期を1回実行し、完了まで待つ。
// 個々のフィードの失敗はログに記録し、他のフィードの同期は継続する。
// 戻り値は失敗したフィード数。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if len(s.jobs) == 0 {
		s.logger.Info("同期対象のフィードはありません")
		return 0
	}

	start := time.Now()
	sem := make(chan struct{}, s.maxConcurrency)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(j SyncJob) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := j.Sync(ctx); err != nil {
				s.logger.Error("フィードの同期に失敗しました",
					slog.String("feed", j.Feed().Key()),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(job)
	}

	wg.Wait()

	s.logger.Info("同期サイクルが完了しました",
		slog.Int("feed_count", len(s.jobs)),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return failed
}
