package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/timelinesync/internal/config"
	"github.com/hitoshi/timelinesync/internal/kvstore"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/transport"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

func testConfig(backend string) *config.Config {
	return &config.Config{
		Feeds: []model.Feed{
			{Name: "friends", Kind: model.FeedKindNitter, SiteURL: "https://nitter.example", Accounts: []string{"jack"}, Lookback: 24 * time.Hour},
			{Name: "dash", Kind: model.FeedKindTumblr, SiteURL: "https://api.tumblr.example", Lookback: 24 * time.Hour},
		},
		KVBackend:        backend,
		RetryMaxAttempts: 1,
		MaxPages:         10,
	}
}

func failingFetcher() transport.Fetcher {
	return transport.FetcherFunc(func(context.Context, transport.Request) (*transport.Response, error) {
		return nil, errors.New("network unreachable")
	})
}

func TestBuildComponents_MemoryBackend(t *testing.T) {
	c, err := buildComponents(testConfig(config.KVBackendMemory), newTestLogger(io.Discard), componentOptions{fetcher: failingFetcher()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Close()

	if _, ok := c.store.(*kvstore.MemoryStore); !ok {
		t.Errorf("store = %T, want *kvstore.MemoryStore", c.store)
	}
	if len(c.jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(c.jobs))
	}
	if j, ok := c.job("dash"); !ok || j.Feed().Key() != "tumblr:dash" {
		t.Errorf("job(dash) = %v, %v", j, ok)
	}
	if _, ok := c.job("missing"); ok {
		t.Error("未設定のフィードは見つからないべき")
	}
	if c.posts != nil {
		t.Error("DATABASE_URL 未設定では投稿を保存しない")
	}
	if _, ok := c.metrics.(metrics.NopCollector); !ok {
		t.Errorf("registry未指定ではNopCollectorを使う: %T", c.metrics)
	}
}

func TestBuildComponents_SQLiteBackend(t *testing.T) {
	cfg := testConfig(config.KVBackendSQLite)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "state.db")

	c, err := buildComponents(cfg, newTestLogger(io.Discard), componentOptions{fetcher: failingFetcher()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Close()

	if _, ok := c.store.(*kvstore.SQLiteStore); !ok {
		t.Errorf("store = %T, want *kvstore.SQLiteStore", c.store)
	}
	if len(c.closers) != 1 {
		t.Errorf("len(closers) = %d, want 1", len(c.closers))
	}
}

func TestBuildComponents_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.KVBackendRedis)
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := buildComponents(cfg, newTestLogger(io.Discard), componentOptions{fetcher: failingFetcher()})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Close()

	if err := c.store.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := mr.Get(redisKeyPrefix + "k"); err != nil || got != "v" {
		t.Errorf("redis value = %q, %v", got, err)
	}
}

func TestBuildComponents_PostgresBackendWithoutDatabase(t *testing.T) {
	_, err := buildComponents(testConfig(config.KVBackendPostgres), newTestLogger(io.Discard), componentOptions{})
	if err == nil {
		t.Fatal("DATABASE_URL なしのpostgresバックエンドはエラーを返すべき")
	}
}

func TestBuildComponents_UnknownBackend(t *testing.T) {
	if _, err := buildComponents(testConfig("etcd"), newTestLogger(io.Discard), componentOptions{}); err == nil {
		t.Fatal("未知のバックエンドはエラーを返すべき")
	}
}

func TestBuildComponents_UnknownFeedKind(t *testing.T) {
	cfg := testConfig(config.KVBackendMemory)
	cfg.Feeds = append(cfg.Feeds, model.Feed{Name: "x", Kind: "mastodon", SiteURL: "https://x"})

	if _, err := buildComponents(cfg, newTestLogger(io.Discard), componentOptions{}); err == nil {
		t.Fatal("未対応の種別はエラーを返すべき")
	}
}

func TestBuildComponents_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := buildComponents(testConfig(config.KVBackendMemory), newTestLogger(io.Discard), componentOptions{
		fetcher:  failingFetcher(),
		registry: reg,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer c.Close()

	j, _ := c.job("friends")
	if _, err := j.Sync(context.Background()); err == nil {
		t.Fatal("取得失敗で同期はエラーを返すべき")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "timelinesync_sync_runs_total" {
			found = true
		}
	}
	if !found {
		t.Error("同期実行のメトリクスが登録されるべき")
	}
}
