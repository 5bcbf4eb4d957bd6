package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/timelinesync/internal/config"
	"github.com/hitoshi/timelinesync/internal/database"
	"github.com/hitoshi/timelinesync/internal/kvstore"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/post"
	"github.com/hitoshi/timelinesync/internal/repository"
	"github.com/hitoshi/timelinesync/internal/security"
	"github.com/hitoshi/timelinesync/internal/syncer"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// redisKeyPrefix はRedisバックエンドで全キーに付与するプレフィックス。
const redisKeyPrefix = "timelinesync:"

// componentOptions はコンポーネント構築時の差し替え可能な依存。
type componentOptions struct {
	// fetcher はリトライ層の下で使うFetcher。nilの場合はSSRF防止HTTPクライアントを使う。
	fetcher transport.Fetcher
	// registry はメトリクスの登録先。nilの場合はメトリクスを記録しない。
	registry *prometheus.Registry
}

// components は設定から組み立てた実行時の依存関係。
type components struct {
	jobs     []*syncer.Job
	store    kvstore.Store
	db       *sql.DB
	postRepo *repository.PostgresPostRepo
	posts    *post.Service
	metrics  metrics.MetricsCollector
	closers  []io.Closer
}

// buildComponents はKVストア、投稿ストア、トランスポート、フィードごとの同期ジョブを組み立てる。
// DATABASE_URLが設定されている場合のみ投稿を保存する。
func buildComponents(cfg *config.Config, logger *slog.Logger, opts componentOptions) (c *components, err error) {
	c = &components{metrics: metrics.NopCollector{}}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if opts.registry != nil {
		c.metrics = metrics.NewCollector(opts.registry)
	}

	// 1. DB接続（投稿ストアとpostgres KVバックエンド用）
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return c, err
		}
		c.db = db
		c.closers = append(c.closers, db)

		if err := db.Ping(); err != nil {
			return c, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("database connection established")

		c.postRepo = repository.NewPostgresPostRepo(db)
		c.posts = post.NewService(c.postRepo, security.NewSanitizer(), logger)
	}

	// 2. KVストア
	store, err := c.openStore(cfg)
	if err != nil {
		return c, err
	}
	c.store = store

	// 3. トランスポート
	fetcher := opts.fetcher
	if fetcher == nil {
		fetcher = transport.NewHTTPFetcher(security.NewGuard(), transport.HTTPOptions{
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			RequestRate: cfg.RequestRate,
		}, logger, c.metrics)
	}
	retrying := transport.NewRetryingFetcher(fetcher, cfg.RetryMaxAttempts, cfg.RetryDelay, logger, c.metrics)

	// 4. フィードごとの同期ジョブ
	var saver syncer.PostSaver
	if c.posts != nil {
		saver = c.posts
	}
	for _, feed := range cfg.Feeds {
		job, err := syncer.BuildJob(feed, syncer.Deps{
			Fetcher:  retrying,
			Store:    c.store,
			Posts:    saver,
			MaxPages: cfg.MaxPages,
			Logger:   logger,
			Metrics:  c.metrics,
		})
		if err != nil {
			return c, err
		}
		c.jobs = append(c.jobs, job)
	}

	logger.Info("components initialized",
		slog.String("kv_backend", cfg.KVBackend),
		slog.Int("feed_count", len(c.jobs)),
		slog.Bool("post_store", c.posts != nil),
	)
	return c, nil
}

func (c *components) openStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.KVBackend {
	case config.KVBackendMemory:
		return kvstore.NewMemoryStore(), nil
	case config.KVBackendPostgres:
		if c.db == nil {
			return nil, errors.New("KV_BACKEND=postgres requires DATABASE_URL")
		}
		return kvstore.NewPostgresStore(c.db), nil
	case config.KVBackendRedis:
		s, err := kvstore.NewRedisStoreWithURL(cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s)
		return s, nil
	case config.KVBackendSQLite:
		s, err := kvstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown KV_BACKEND: %q", cfg.KVBackend)
	}
}

// job は名前でフィードの同期ジョブを検索する。
func (c *components) job(name string) (*syncer.Job, bool) {
	for _, j := range c.jobs {
		if j.Feed().Name == name {
			return j, true
		}
	}
	return nil, false
}

// Close は開いた接続を逆順に閉じる。
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
	c.closers = nil
}
