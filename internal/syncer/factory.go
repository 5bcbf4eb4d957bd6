package syncer

import (
	"fmt"
	"log/slog"

	"github.com/hitoshi/timelinesync/internal/enrich"
	"github.com/hitoshi/timelinesync/internal/kvstore"
	"github.com/hitoshi/timelinesync/internal/metrics"
	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/profile"
	"github.com/hitoshi/timelinesync/internal/source/nitter"
	"github.com/hitoshi/timelinesync/internal/source/tumblr"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// Deps はジョブ生成に必要な共有コンポーネント。
type Deps struct {
	Fetcher  transport.Fetcher
	Store    kvstore.Store
	Posts    PostSaver
	MaxPages int
	Logger   *slog.Logger
	Metrics  metrics.MetricsCollector
}

// BuildJob はフィード種別に応じたページ取得・正規化を組み立ててJobを生成する。
func BuildJob(feed model.Feed, deps Deps) (*Job, error) {
	logger := deps.Logger
	opts := Options{
		FeedKey:  feed.Key(),
		Lookback: feed.Lookback,
		MaxItems: feed.MaxItems,
		MaxPages: deps.MaxPages,
	}

	var runner Runner
	switch feed.Kind {
	case model.FeedKindTumblr:
		source := tumblr.NewClient(deps.Fetcher, feed.SiteURL, feed.AuthToken)
		runner = NewOrchestrator[tumblr.Post](source, tumblr.NewNormalizer(feed), opts, logger, deps.Metrics)

	case model.FeedKindNitter:
		headers := authHeaders(feed.AuthToken)
		source := nitter.NewClient(deps.Fetcher, feed.SiteURL, feed.Accounts, headers)
		loader := profile.NewRSSLoader(deps.Fetcher, feed.SiteURL, headers)
		profiles := profile.NewCache(deps.Store, feed.Key(), loader, logger, deps.Metrics)
		quotes, err := enrich.NewResolver(deps.Fetcher, feed.SiteURL, headers)
		if err != nil {
			return nil, fmt.Errorf("フィード %s: %w", feed.Name, err)
		}
		normalizer := nitter.NewNormalizer(feed.SiteURL, profiles, quotes)
		runner = NewOrchestrator[nitter.Item](source, normalizer, opts, logger, deps.Metrics)

	default:
		return nil, fmt.Errorf("フィード %s: 未対応の種別です: %q", feed.Name, feed.Kind)
	}

	return NewJob(feed, runner, deps.Store, deps.Posts, deps.Logger, deps.Metrics), nil
}

func authHeaders(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
