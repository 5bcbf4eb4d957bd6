// Package post は同期済み投稿の保存と取得を提供する。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/repository"
)

// DefaultListLimit は一覧取得の件数指定がない場合の件数。
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Sanitizer は本文マークアップのサニタイズを行う。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Service は正規化済み投稿をサニタイズしてリポジトリに保存する。
// syncer.PostSaverを満たす。
type Service struct {
	repo      repository.PostRepository
	sanitizer Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.PostRepository, sanitizer Sanitizer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// SavePosts は投稿を古い順に保存し、新規挿入された件数を返す。
// 同じ(feedKey, uri)の投稿は上書きする。途中で失敗した場合はそれまでの件数とエラーを返す。
func (s *Service) SavePosts(ctx context.Context, feedKey string, posts []model.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	syncedAt := s.now().UTC()
	inserted, updated := 0, 0
	for _, p := range posts {
		p.BodyMarkup = s.sanitizer.Sanitize(p.BodyMarkup)
		stored := &model.StoredPost{
			ID:       uuid.New().String(),
			FeedKey:  feedKey,
			Post:     p,
			SyncedAt: syncedAt,
		}

		isNew, err := s.repo.Upsert(ctx, stored)
		if err != nil {
			s.logger.Error("投稿の保存でエラー",
				slog.String("feed", feedKey),
				slog.String("uri", p.URI),
				slog.String("error", err.Error()),
			)
			return inserted, fmt.Errorf("投稿 %s の保存に失敗: %w", p.URI, err)
		}
		if isNew {
			inserted++
		} else {
			updated++
		}
	}

	s.logger.Info("投稿UPSERT完了",
		slog.String("feed", feedKey),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
	)
	return inserted, nil
}

// ListPosts はフィードの保存済み投稿を新しい順に返す。
// limitは1からMaxListLimitの範囲に丸める。
func (s *Service) ListPosts(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	posts, err := s.repo.ListByFeed(ctx, feedKey, before, limit)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗: %w", err)
	}
	return posts, nil
}
