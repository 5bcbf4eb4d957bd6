package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/timelinesync/internal/middleware"
	"github.com/hitoshi/timelinesync/internal/model"
)

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	listPostsFn func(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error)
}

func (m *mockPostService) ListPosts(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx, feedKey, before, limit)
	}
	return nil, nil
}

func storedPosts(n int, newest time.Time) []*model.StoredPost {
	posts := make([]*model.StoredPost, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, &model.StoredPost{
			ID:      "id",
			FeedKey: "nitter:friends",
			Post:    model.Post{URI: "https://example.com", Timestamp: newest.Add(-time.Duration(i) * time.Minute)},
		})
	}
	return posts
}

func listPosts(h *PostHandler, name, query string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/feeds/"+name+"/posts"+query, nil)
	h.ListPosts(w, withURLParam(req, "name", name))
	return w
}

func TestPostHandler_ListPosts_DefaultLimitAndPaging(t *testing.T) {
	newest := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockPostService{
		listPostsFn: func(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
			if feedKey != "nitter:friends" {
				t.Errorf("feedKey = %q, want %q", feedKey, "nitter:friends")
			}
			if before != nil {
				t.Errorf("before = %v, want nil", before)
			}
			if limit != defaultPostsPerPage {
				t.Errorf("limit = %d, want %d", limit, defaultPostsPerPage)
			}
			return storedPosts(limit, newest), nil
		},
	}
	h := NewPostHandler(svc, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	w := listPosts(h, "friends", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp postListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Posts) != defaultPostsPerPage || !resp.HasMore {
		t.Errorf("len/has_more = %d/%v", len(resp.Posts), resp.HasMore)
	}
	want := newest.Add(-time.Duration(defaultPostsPerPage-1) * time.Minute)
	if resp.NextBefore == nil || !resp.NextBefore.Equal(want) {
		t.Errorf("next_before = %v, want %v", resp.NextBefore, want)
	}
}

func TestPostHandler_ListPosts_PassesQuery(t *testing.T) {
	var gotBefore *time.Time
	var gotLimit int
	svc := &mockPostService{
		listPostsFn: func(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
			gotBefore, gotLimit = before, limit
			return storedPosts(2, time.Now()), nil
		},
	}
	h := NewPostHandler(svc, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	w := listPosts(h, "friends", "?limit=10&before=2025-01-01T00:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	if gotBefore == nil || !gotBefore.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("before = %v", gotBefore)
	}

	var resp postListResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.HasMore || resp.NextBefore != nil {
		t.Errorf("limit未満の件数では続きはない: has_more = %v", resp.HasMore)
	}
}

func TestPostHandler_ListPosts_ClampsLimit(t *testing.T) {
	svc := &mockPostService{
		listPostsFn: func(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
			if limit != maxPostsPerPage {
				t.Errorf("limit = %d, want %d", limit, maxPostsPerPage)
			}
			return nil, nil
		},
	}
	h := NewPostHandler(svc, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	if w := listPosts(h, "friends", "?limit=1000"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestPostHandler_ListPosts_InvalidQuery(t *testing.T) {
	h := NewPostHandler(&mockPostService{}, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	for _, q := range []string{"?limit=abc", "?limit=0", "?before=yesterday"} {
		w := listPosts(h, "friends", q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestPostHandler_ListPosts_UnknownFeed(t *testing.T) {
	h := NewPostHandler(&mockPostService{}, nil, newTestLogger(io.Discard))

	if w := listPosts(h, "missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPostHandler_ListPosts_StoreDisabled(t *testing.T) {
	h := NewPostHandler(nil, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	w := listPosts(h, "friends", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body middleware.ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != "POST_STORE_DISABLED" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestPostHandler_ListPosts_ServiceError(t *testing.T) {
	svc := &mockPostService{
		listPostsFn: func(ctx context.Context, feedKey string, before *time.Time, limit int) ([]*model.StoredPost, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewPostHandler(svc, []model.Feed{testFeed("friends", model.FeedKindNitter)}, newTestLogger(io.Discard))

	w := listPosts(h, "friends", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
