// Package cleanup は保持期間を超過した同期済み投稿の削除ジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は投稿の保持日数のデフォルト値。
const DefaultRetentionDays = 30

// PostDeleter は投稿日時を基準に古い投稿を削除する。repository.PostRepositoryが満たす。
type PostDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した投稿の削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type CleanupJob struct {
	posts         PostDeleter
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。retentionDaysが0以下の場合はデフォルト値を使用する。
func NewCleanupJob(posts PostDeleter, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		posts:         posts,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Run は投稿日時がRetentionDays日前より古い投稿を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.posts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("投稿クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("投稿クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("投稿クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
