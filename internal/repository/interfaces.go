// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/timelinesync/internal/model"
)

// PostRepository は同期済み投稿の永続化インターフェース。
type PostRepository interface {
	// Upsert は(feed_key, uri)をキーに投稿を挿入または上書きする。
	// 新規挿入の場合はtrueを返す。既存行のIDは変更しない。
	Upsert(ctx context.Context, post *model.StoredPost) (bool, error)

	// ListByFeed はフィードの投稿を新しい順に取得する。
	// beforeが非nilの場合はそれより古い投稿のみを返す。
	ListByFeed(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error)

	// DeleteOlderThan は投稿日時がcutoffより古い投稿を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
