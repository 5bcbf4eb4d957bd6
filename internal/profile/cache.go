// Package profile はアカウントの表示名とアバターを解決し、実行をまたいでキャッシュする。
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/timelinesync/internal/kvstore"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
)

// Loader はキャッシュミス時にアカウントのプロフィールをリモートから取得する。
type Loader interface {
	LoadProfile(ctx context.Context, accountID string) (model.ProfileEntry, error)
}

// LoaderFunc は関数をLoaderとして扱うアダプタ。
type LoaderFunc func(ctx context.Context, accountID string) (model.ProfileEntry, error)

// LoadProfile はLoaderインターフェースを実装する。
func (f LoaderFunc) LoadProfile(ctx context.Context, accountID string) (model.ProfileEntry, error) {
	return f(ctx, accountID)
}

// Cache はフィード単位のプロフィールキャッシュ。
// エントリは一度作成されると無効化されない。
// 同一アカウントへの同時解決はsingleflightで1回の取得にまとめる。
// 取得中に呼び出し元のctxがキャンセルされた場合、その呼び出しだけがctx.Err()で戻り、取得は続行する。
type Cache struct {
	store   kvstore.Store
	key     string
	loader  Loader
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	group     singleflight.Group
	persistMu sync.Mutex
	mu        sync.Mutex
	loaded    bool
	entries   map[string]model.ProfileEntry
}

// NewCache はCacheを生成する。永続化キーは "<feedKey>:profiles"。
func NewCache(store kvstore.Store, feedKey string, loader Loader, logger *slog.Logger, m metrics.MetricsCollector) *Cache {
	return &Cache{
		store:   store,
		key:     kvstore.Key(feedKey, "profiles"),
		loader:  loader,
		logger:  logger,
		metrics: m,
		entries: make(map[string]model.ProfileEntry),
	}
}

// Resolve はアカウントのプロフィールを返す。
// キャッシュにあればネットワークにアクセスせず、なければ1回だけ取得して保存する。
// 取得に失敗した場合はエラーを返し、何もキャッシュしない。
func (c *Cache) Resolve(ctx context.Context, accountID string) (model.ProfileEntry, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return model.ProfileEntry{}, err
	}

	if entry, ok := c.lookup(accountID); ok {
		c.metrics.RecordProfileLookup(true)
		return entry, nil
	}

	// 共有する取得は先に到着した呼び出し元のキャンセルで中断しない。
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(accountID, func() (interface{}, error) {
		// 先行する呼び出しが保存済みの場合
		if entry, ok := c.lookup(accountID); ok {
			return entry, nil
		}

		c.metrics.RecordProfileLookup(false)
		entry, err := c.loader.LoadProfile(shared, accountID)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの取得に失敗 (%s): %w", accountID, err)
		}
		entry.AccountID = accountID

		if err := c.persist(shared, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return model.ProfileEntry{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.ProfileEntry{}, r.Err
		}
		return r.Val.(model.ProfileEntry), nil
	}
}

// persist はエントリを追加してマップ全体を保存する。
// スナップショットの作成から保存までをpersistMuで直列化し、古いスナップショットが後から書き込まれないようにする。
func (c *Cache) persist(ctx context.Context, entry model.ProfileEntry) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.entries[entry.AccountID] = entry
	snapshot, err := json.Marshal(c.entries)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("プロフィールキャッシュのシリアライズに失敗: %w", err)
	}

	if err := c.store.Set(ctx, c.key, string(snapshot)); err != nil {
		c.logger.Warn("プロフィールキャッシュの保存に失敗しました",
			slog.String("key", c.key),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Len はキャッシュ済みのエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(accountID string) (model.ProfileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[accountID]
	return entry, ok
}

// ensureLoaded は永続化されたマップを初回アクセス時に一度だけ読み込む。
func (c *Cache) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	raw, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return fmt.Errorf("プロフィールキャッシュの読み込みに失敗: %w", err)
	}
	if ok && raw != "" {
		stored := make(map[string]model.ProfileEntry)
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			// 壊れたキャッシュは捨てて再取得する
			c.logger.Warn("プロフィールキャッシュを破棄します",
				slog.String("key", c.key),
				slog.String("error", err.Error()),
			)
		} else {
			for k, v := range stored {
				c.entries[k] = v
			}
		}
	}
	c.loaded = true
	return nil
}
