package profile

import (
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// RSSLoader はアカウント自身のRSSフィードのチャンネル情報からプロフィールを取得する。
// Nitterのチャンネルタイトルは "表示名 / @アカウント" 形式。
type RSSLoader struct {
	fetcher transport.Fetcher
	siteURL string
	headers map[string]string
}

// NewRSSLoader はRSSLoaderを生成する。
func NewRSSLoader(fetcher transport.Fetcher, siteURL string, headers map[string]string) *RSSLoader {
	return &RSSLoader{
		fetcher: fetcher,
		siteURL: model.SiteBase(siteURL),
		headers: headers,
	}
}

// LoadProfile は "<site>/<account>/rss" を取得してチャンネルのタイトルと画像を返す。
func (l *RSSLoader) LoadProfile(ctx context.Context, accountID string) (model.ProfileEntry, error) {
	resp, err := l.fetcher.Fetch(ctx, transport.Request{
		URL:     l.siteURL + "/" + url.PathEscape(accountID) + "/rss",
		Headers: l.headers,
	})
	if err != nil {
		return model.ProfileEntry{}, err
	}

	feed, err := gofeed.NewParser().ParseString(resp.Text())
	if err != nil {
		return model.ProfileEntry{}, &model.ParseError{Format: "xml", Err: err}
	}

	entry := model.ProfileEntry{
		AccountID:   accountID,
		DisplayName: DisplayNameFromTitle(feed.Title),
	}
	if entry.DisplayName == "" {
		entry.DisplayName = accountID
	}
	if feed.Image != nil {
		entry.AvatarURL = feed.Image.URL
	}
	return entry, nil
}

// DisplayNameFromTitle は "表示名 / @アカウント" 形式のタイトルから表示名を取り出す。
func DisplayNameFromTitle(title string) string {
	name, _, _ := strings.Cut(title, " / ")
	return strings.TrimSpace(name)
}

var _ Loader = (*RSSLoader)(nil)
