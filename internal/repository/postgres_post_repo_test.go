package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/timelinesync/internal/database"
	"github.com/hitoshi/timelinesync/internal/model"
)

func TestPostgresPostRepo_ImplementsInterface(t *testing.T) {
	var _ PostRepository = (*PostgresPostRepo)(nil)
}

func TestEncodeDecodePostColumns(t *testing.T) {
	post := model.Post{
		URI:       "https://nitter.example.com/alice/status/1",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Author:    &model.Identity{DisplayName: "Alice", Username: "@alice"},
		Attachments: []model.Attachment{
			model.NewMediaAttachment(model.MediaAttachment{URL: "https://example.com/a.png", MimeType: "image/png"}),
		},
	}

	author, attachments, annotations, err := encodePostColumns(post)
	if err != nil {
		t.Fatalf("encodePostColumns() がエラーを返した: %v", err)
	}
	if string(annotations) != "[]" {
		t.Errorf("注記なしは空配列として保存するべき: %s", annotations)
	}

	var got model.Post
	authorStr, _ := author.(string)
	if err := decodePostColumns(&got, sql.NullString{String: authorStr, Valid: true}, attachments, annotations); err != nil {
		t.Fatalf("decodePostColumns() がエラーを返した: %v", err)
	}
	if got.Author == nil || got.Author.DisplayName != "Alice" {
		t.Errorf("Author = %+v", got.Author)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Media == nil || got.Attachments[0].Media.MimeType != "image/png" {
		t.Errorf("Attachments = %+v", got.Attachments)
	}
	if got.Annotations != nil {
		t.Errorf("Annotations = %+v, want nil", got.Annotations)
	}
}

func TestEncodePostColumns_NilAuthor(t *testing.T) {
	author, _, _, err := encodePostColumns(model.Post{URI: "u"})
	if err != nil {
		t.Fatalf("encodePostColumns() がエラーを返した: %v", err)
	}
	if author != nil {
		t.Errorf("投稿者なしはNULL, got %v", author)
	}
}

func setupPostRepo(t *testing.T) *PostgresPostRepo {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM posts`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	return NewPostgresPostRepo(db)
}

func storedPost(feedKey, uri string, postedAt time.Time, body string) *model.StoredPost {
	return &model.StoredPost{
		ID:       uuid.New().String(),
		FeedKey:  feedKey,
		Post:     model.Post{URI: uri, Timestamp: postedAt, BodyMarkup: body},
		SyncedAt: time.Now().UTC(),
	}
}

func TestPostgresPostRepo_UpsertAndList(t *testing.T) {
	repo := setupPostRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	inserted, err := repo.Upsert(ctx, storedPost("nitter:home", "u1", base, "<p>v1</p>"))
	if err != nil || !inserted {
		t.Fatalf("初回はinserted=true, got %v err=%v", inserted, err)
	}
	inserted, err = repo.Upsert(ctx, storedPost("nitter:home", "u1", base, "<p>v2</p>"))
	if err != nil || inserted {
		t.Fatalf("2回目は更新, got inserted=%v err=%v", inserted, err)
	}
	if _, err := repo.Upsert(ctx, storedPost("nitter:home", "u2", base.Add(time.Hour), "<p>new</p>")); err != nil {
		t.Fatalf("Upsert() がエラーを返した: %v", err)
	}
	if _, err := repo.Upsert(ctx, storedPost("tumblr:dash", "u1", base, "<p>other</p>")); err != nil {
		t.Fatalf("Upsert() がエラーを返した: %v", err)
	}

	posts, err := repo.ListByFeed(ctx, "nitter:home", nil, 10)
	if err != nil {
		t.Fatalf("ListByFeed() がエラーを返した: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("投稿数 = %d, want 2", len(posts))
	}
	if posts[0].Post.URI != "u2" || posts[1].Post.BodyMarkup != "<p>v2</p>" {
		t.Errorf("新しい順で上書き済みの本文を返すべき: %+v %+v", posts[0].Post, posts[1].Post)
	}

	before := base.Add(time.Minute)
	older, err := repo.ListByFeed(ctx, "nitter:home", &before, 10)
	if err != nil {
		t.Fatalf("ListByFeed(before) がエラーを返した: %v", err)
	}
	if len(older) != 1 || older[0].Post.URI != "u1" {
		t.Errorf("before以前の投稿のみ返すべき: %+v", older)
	}
}

func TestPostgresPostRepo_DeleteOlderThan(t *testing.T) {
	repo := setupPostRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = repo.Upsert(ctx, storedPost("nitter:home", "old", base, ""))
	_, _ = repo.Upsert(ctx, storedPost("nitter:home", "new", base.Add(48*time.Hour), ""))

	n, err := repo.DeleteOlderThan(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() がエラーを返した: %v", err)
	}
	if n != 1 {
		t.Errorf("削除件数 = %d, want 1", n)
	}
}
