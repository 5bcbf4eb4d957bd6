package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/timelinesync/internal/model"
)

// KVストアのバックエンド種別。
const (
	KVBackendMemory   = "memory"
	KVBackendPostgres = "postgres"
	KVBackendRedis    = "redis"
	KVBackendSQLite   = "sqlite"
)

const (
	DefaultFeedName = "default"
	DefaultLookback = 24 * time.Hour
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Feeds
	Feeds []model.Feed

	// KV Store
	KVBackend  string
	RedisURL   string
	SQLitePath string

	// Database
	DatabaseURL string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchInterval      time.Duration

	// Retry / Pagination
	RetryMaxAttempts int
	RetryDelay       time.Duration
	RequestRate      float64
	MaxPages         int

	// Rate Limit
	RateLimitSync int

	// Retention
	PostRetentionDays int

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Feed は名前でフィード設定を検索する。
func (c *Config) Feed(name string) (model.Feed, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return model.Feed{}, false
}

// Load は環境変数からConfigを読み込む。
// FEEDS_FILE が設定されている場合はYAMLファイルからフィードを読み込み、
// それ以外は FEED_KIND などの環境変数から単一フィードを構成する。
func Load() (*Config, error) {
	cfg := &Config{}

	feeds, err := loadFeeds()
	if err != nil {
		return nil, err
	}
	cfg.Feeds = feeds

	cfg.KVBackend = strings.ToLower(getEnvString("KV_BACKEND", KVBackendMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "timelinesync.db")

	switch cfg.KVBackend {
	case KVBackendMemory, KVBackendSQLite:
	case KVBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("KV_BACKEND=postgres requires DATABASE_URL")
		}
	case KVBackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("KV_BACKEND=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown KV_BACKEND: %q", cfg.KVBackend)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 4)
	cfg.FetchInterval = getEnvDuration("FETCH_INTERVAL", 5*time.Minute)
	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryDelay = getEnvDuration("RETRY_DELAY", 2*time.Second)
	cfg.RequestRate = getEnvFloat("REQUEST_RATE", 1)
	cfg.MaxPages = getEnvInt("MAX_PAGES", 10)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 6)
	cfg.PostRetentionDays = getEnvInt("POST_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func loadFeeds() ([]model.Feed, error) {
	if path := os.Getenv("FEEDS_FILE"); path != "" {
		return LoadFeedsFile(path)
	}

	var missing []string
	kind := os.Getenv("FEED_KIND")
	if kind == "" {
		missing = append(missing, "FEED_KIND")
	}
	siteURL := os.Getenv("SITE_URL")
	if siteURL == "" {
		missing = append(missing, "SITE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v (or set FEEDS_FILE)", missing)
	}

	feed := model.Feed{
		Name:           getEnvString("FEED_NAME", DefaultFeedName),
		Kind:           model.FeedKind(strings.ToLower(kind)),
		SiteURL:        siteURL,
		Accounts:       SplitAccounts(os.Getenv("ACCOUNTS")),
		IncludeReblogs: getEnvBool("INCLUDE_REBLOGS", true),
		IncludeTags:    getEnvBool("INCLUDE_TAGS", false),
		Lookback:       getEnvDuration("LOOKBACK", DefaultLookback),
		MaxItems:       getEnvInt("MAX_ITEMS", 0),
		AuthToken:      os.Getenv("AUTH_TOKEN"),
	}
	if err := validateFeed(feed); err != nil {
		return nil, err
	}
	return []model.Feed{feed}, nil
}

// Duration はYAMLの "24h" のような文字列から読み込むtime.Duration。
type Duration struct {
	time.Duration
}

// UnmarshalYAML はyaml.Unmarshalerを実装する。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type feedsFile struct {
	Feeds []feedEntry `yaml:"feeds"`
}

type feedEntry struct {
	Name           string   `yaml:"name"`
	Kind           string   `yaml:"kind"`
	SiteURL        string   `yaml:"site_url"`
	Accounts       []string `yaml:"accounts"`
	IncludeReblogs *bool    `yaml:"include_reblogs"`
	IncludeTags    bool     `yaml:"include_tags"`
	Lookback       Duration `yaml:"lookback"`
	MaxItems       int      `yaml:"max_items"`
	AuthTokenEnv   string   `yaml:"auth_token_env"`
}

// LoadFeedsFile はYAMLファイルからフィード設定を読み込む。
// 認証トークンはファイルに書かず、auth_token_env で指定した環境変数から解決する。
func LoadFeedsFile(path string) ([]model.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var file feedsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	if len(file.Feeds) == 0 {
		return nil, errors.New("feeds file: at least one feed must be configured")
	}

	seen := make(map[string]bool, len(file.Feeds))
	feeds := make([]model.Feed, 0, len(file.Feeds))
	for i, e := range file.Feeds {
		feed := model.Feed{
			Name:           strings.TrimSpace(e.Name),
			Kind:           model.FeedKind(strings.ToLower(e.Kind)),
			SiteURL:        e.SiteURL,
			Accounts:       SplitAccounts(strings.Join(e.Accounts, ",")),
			IncludeReblogs: e.IncludeReblogs == nil || *e.IncludeReblogs,
			IncludeTags:    e.IncludeTags,
			Lookback:       e.Lookback.Duration,
			MaxItems:       e.MaxItems,
		}
		if feed.Lookback == 0 {
			feed.Lookback = DefaultLookback
		}
		if e.AuthTokenEnv != "" {
			feed.AuthToken = os.Getenv(e.AuthTokenEnv)
		}
		if err := validateFeed(feed); err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if seen[feed.Name] {
			return nil, fmt.Errorf("feeds[%d]: duplicate feed name %q", i, feed.Name)
		}
		seen[feed.Name] = true
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

func validateFeed(f model.Feed) error {
	if f.Name == "" {
		return errors.New("feed name is required")
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("feed %s: unknown kind %q", f.Name, f.Kind)
	}
	if !strings.HasPrefix(f.SiteURL, "http://") && !strings.HasPrefix(f.SiteURL, "https://") {
		return fmt.Errorf("feed %s: site url must be http(s): %q", f.Name, f.SiteURL)
	}
	if f.Lookback < 0 || f.MaxItems < 0 {
		return fmt.Errorf("feed %s: lookback and max items must not be negative", f.Name)
	}
	return nil
}

// SplitAccounts はカンマ区切りのアカウント指定を分割し、空白と空要素を除去する。
func SplitAccounts(s string) []string {
	var accounts []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}
	return accounts
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
