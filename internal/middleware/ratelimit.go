package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/hitoshi/timelinesync/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // クライアントIPごとのAPI全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	SyncRate        rate.Limit    // フィードごとの同期トリガーのレート（req/sec）
	SyncBurst       int           // 同期トリガーのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/IP、同期トリガー syncPerMinute req/min/フィード。
func DefaultRateLimiterConfig(syncPerMinute int) RateLimiterConfig {
	if syncPerMinute <= 0 {
		syncPerMinute = 6
	}
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		SyncRate:        rate.Limit(float64(syncPerMinute) / 60.0),
		SyncBurst:       syncPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキーごとのリミッターの集合。
type limiterSet struct {
	mu       sync.RWMutex
	limiters map[string]*keyedLimiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*keyedLimiter),
		limit:    limit,
		burst:    burst,
	}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	kl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		kl.lastAccess = time.Now()
		s.mu.Unlock()
		return kl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if kl, exists := s.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はAPI全般（クライアントIP単位）と同期トリガー（フィード単位）のレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	sync    *limiterSet
	logger  *slog.Logger
	stopCh  chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		sync:    newLimiterSet(config.SyncRate, config.SyncBurst),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はクライアントIPごとのレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if !rl.general.get(client).Allow() {
				rl.logger.Warn("rate limit exceeded",
					slog.String("client", client),
					slog.String("limit_type", "general"),
				)
				setRetryAfter(w, rl.config.GeneralRate)
				WriteErrorResponse(w, http.StatusTooManyRequests, &model.SyncError{
					Code:     "RATE_LIMIT_EXCEEDED",
					Message:  "リクエストが多すぎます。",
					Category: "system",
					Action:   "Retry-After の秒数だけ待ってから再度お試しください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SyncMiddleware はフィードごとの同期トリガーのレート制限ミドルウェアを返す。
// ルートパターンに {name} を含むルートに配置する。
func (rl *RateLimiter) SyncMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")
			if !rl.sync.get(name).Allow() {
				rl.logger.Warn("rate limit exceeded",
					slog.String("feed_name", name),
					slog.String("limit_type", "sync"),
				)
				setRetryAfter(w, rl.config.SyncRate)
				WriteSyncError(w, model.NewSyncRateLimitedError(name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// SyncLimiterCount は現在管理されている同期トリガーリミッターのエントリ数を返す。
func (rl *RateLimiter) SyncLimiterCount() int {
	return rl.sync.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ttl := rl.config.CleanupInterval * 2
			now := time.Now()
			rl.general.evict(now, ttl)
			rl.sync.evict(now, ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// setRetryAfter はトークンが1つ補充されるまでの推定秒数をRetry-Afterヘッダーに設定する。
func setRetryAfter(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
