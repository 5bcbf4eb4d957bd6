package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/timelinesync/internal/config"
	"github.com/hitoshi/timelinesync/internal/database"
	"github.com/hitoshi/timelinesync/internal/handler"
	"github.com/hitoshi/timelinesync/internal/logger"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/middleware"
	"github.com/hitoshi/timelinesync/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/timelinesync/internal/worker/fetch"
)

// cleanupInterval は投稿クリーンアップの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。syncコマンドの結果はoutへ、ログはlogOutへ出力する。
func Run(out, logOut io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Int("feed_count", len(cfg.Feeds)),
		slog.String("kv_backend", cfg.KVBackend),
	)

	switch cmd {
	case CommandSync:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		c, err := buildComponents(cfg, slog.Default(), componentOptions{})
		if err != nil {
			return err
		}
		defer c.Close()
		return runSync(ctx, out, c, args[1:])
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	c, err := buildComponents(cfg, slog.Default(), componentOptions{registry: registry})
	if err != nil {
		return err
	}
	defer c.Close()

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitSync), slog.Default())
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		RateLimiter:    rateLimiter,
		MetricsHandler: metrics.Handler(registry),
	}
	for _, j := range c.jobs {
		deps.Jobs = append(deps.Jobs, j)
	}
	// nilポインタをインターフェースに入れない
	if c.db != nil {
		deps.HealthChecker = c.db
	}
	if c.posts != nil {
		deps.PostService = c.posts
	}

	return serveHTTP(cfg.ServerPort, handler.NewRouter(deps), nil)
}

// runWorker はワーカーモードで起動する。
// 同期スケジューラと投稿クリーンアップを起動し、/health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	c, err := buildComponents(cfg, slog.Default(), componentOptions{registry: registry})
	if err != nil {
		return err
	}
	defer c.Close()

	jobs := make([]fetchpkg.SyncJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	scheduler := fetchpkg.NewScheduler(jobs, slog.Default(), cfg.FetchMaxConcurrent)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	return serveHTTP(cfg.ServerPort, r, func(ctx context.Context) {
		if c.postRepo != nil {
			cleanupJob := cleanup.NewCleanupJob(c.postRepo, slog.Default(), cfg.PostRetentionDays)
			go func() {
				// 起動直後に1回実行
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
				cleanupJob.Start(ctx, cleanupInterval)
			}()
		}
		go scheduler.Start(ctx, cfg.FetchInterval)
	})
}

// serveHTTP はHTTPサーバーを起動し、シグナル受信までブロックする。
// backgroundが指定された場合は、シャットダウン時にキャンセルされるコンテキストで起動する。
func serveHTTP(port string, h http.Handler, background func(ctx context.Context)) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // 同期APIは複数ページの取得を待つ
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	if background != nil {
		background(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("マイグレーションを開始します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("マイグレーションが完了しました",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
