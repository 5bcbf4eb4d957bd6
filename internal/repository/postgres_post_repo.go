package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/timelinesync/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
// 投稿者・添付・注記はJSONB列に保存する。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Upsert は投稿を挿入または上書きする。
// xmax = 0 の行はこの文で挿入された行。
func (r *PostgresPostRepo) Upsert(ctx context.Context, post *model.StoredPost) (bool, error) {
	author, attachments, annotations, err := encodePostColumns(post.Post)
	if err != nil {
		return false, err
	}

	var inserted bool
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO posts (id, feed_key, uri, posted_at, body, author, attachments, annotations, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (feed_key, uri) DO UPDATE SET
		     posted_at = EXCLUDED.posted_at,
		     body = EXCLUDED.body,
		     author = EXCLUDED.author,
		     attachments = EXCLUDED.attachments,
		     annotations = EXCLUDED.annotations,
		     synced_at = EXCLUDED.synced_at
		 RETURNING (xmax = 0)`,
		post.ID, post.FeedKey, post.Post.URI, post.Post.Timestamp, post.Post.BodyMarkup,
		author, string(attachments), string(annotations), post.SyncedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("投稿の保存に失敗しました: %w", err)
	}
	return inserted, nil
}

// ListByFeed はフィードの投稿を新しい順に取得する。
func (r *PostgresPostRepo) ListByFeed(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
	query := `SELECT id, feed_key, uri, posted_at, body, author, attachments, annotations, synced_at
	          FROM posts WHERE feed_key = $1`
	args := []any{feedKey}
	if before != nil {
		query += ` AND posted_at < $2`
		args = append(args, *before)
	}
	query += fmt.Sprintf(` ORDER BY posted_at DESC, uri DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.StoredPost
	for rows.Next() {
		p := &model.StoredPost{}
		var author sql.NullString
		var attachments, annotations []byte
		if err := rows.Scan(
			&p.ID, &p.FeedKey, &p.Post.URI, &p.Post.Timestamp, &p.Post.BodyMarkup,
			&author, &attachments, &annotations, &p.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
		}
		if err := decodePostColumns(&p.Post, author, attachments, annotations); err != nil {
			return nil, fmt.Errorf("投稿 %s: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// DeleteOlderThan は投稿日時がcutoffより古い投稿を削除する。
func (r *PostgresPostRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE posted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("古い投稿の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// encodePostColumns はJSONB列の値を生成する。投稿者なしはNULL。
// lib/pqは[]byteをbyteaとして送るため、呼び出し側で文字列に変換して渡す。
func encodePostColumns(p model.Post) (author any, attachments, annotations []byte, err error) {
	if p.Author != nil {
		b, err := json.Marshal(p.Author)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("投稿者のエンコードに失敗: %w", err)
		}
		author = string(b)
	}
	attachments, err = marshalList(p.Attachments)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("添付のエンコードに失敗: %w", err)
	}
	annotations, err = marshalList(p.Annotations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("注記のエンコードに失敗: %w", err)
	}
	return author, attachments, annotations, nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func decodePostColumns(p *model.Post, author sql.NullString, attachments, annotations []byte) error {
	if author.Valid {
		p.Author = &model.Identity{}
		if err := json.Unmarshal([]byte(author.String), p.Author); err != nil {
			return fmt.Errorf("投稿者のデコードに失敗: %w", err)
		}
	}
	if err := json.Unmarshal(attachments, &p.Attachments); err != nil {
		return fmt.Errorf("添付のデコードに失敗: %w", err)
	}
	if err := json.Unmarshal(annotations, &p.Annotations); err != nil {
		return fmt.Errorf("注記のデコードに失敗: %w", err)
	}
	if len(p.Attachments) == 0 {
		p.Attachments = nil
	}
	if len(p.Annotations) == 0 {
		p.Annotations = nil
	}
	return nil
}
