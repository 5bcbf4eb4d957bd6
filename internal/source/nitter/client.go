// Package nitter はNitterのRSSフィードのページ取得と正規化を提供する。
package nitter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/paginate"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// CursorHeader は次ページのカーソルを返すレスポンスヘッダー。
const CursorHeader = "Min-Id"

// Item はRSSの<item>1件。読み取り専用の生データとして扱う。
type Item struct {
	*gofeed.Item
	published time.Time
}

// NewItem はgofeedの項目から投稿日時を決定してItemを生成する。
// pubDateがなければdc:dateを使う。
func NewItem(it *gofeed.Item) Item {
	item := Item{Item: it}
	switch {
	case it.PublishedParsed != nil:
		item.published = it.PublishedParsed.UTC()
	case it.DublinCoreExt != nil && len(it.DublinCoreExt.Date) > 0:
		if t, err := parseDate(it.DublinCoreExt.Date[0]); err == nil {
			item.published = t.UTC()
		}
	case it.UpdatedParsed != nil:
		item.published = it.UpdatedParsed.UTC()
	}
	return item
}

// Timestamp は投稿日時を返す。日時が取得できなかった項目はゼロ値。
func (i Item) Timestamp() time.Time {
	return i.published
}

// Creator はdc:creatorから先頭の "@" を除いたハンドルを返す。
func (i Item) Creator() string {
	var creator string
	if i.DublinCoreExt != nil && len(i.DublinCoreExt.Creator) > 0 {
		creator = i.DublinCoreExt.Creator[0]
	} else if i.Author != nil {
		creator = i.Author.Name
	}
	return strings.TrimPrefix(strings.TrimSpace(creator), "@")
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date: " + s)
}

// Client はアカウントのタイムラインRSSをページ単位で取得するPageSource。
// 継続トークンはレスポンスのMin-Idヘッダー。
type Client struct {
	fetcher  transport.Fetcher
	siteURL  string
	accounts []string
	headers  map[string]string
	parser   *gofeed.Parser
}

// NewClient はClientを生成する。accountsが空の場合はサイトのルートフィードを読む。
func NewClient(fetcher transport.Fetcher, siteURL string, accounts []string, headers map[string]string) *Client {
	return &Client{
		fetcher:  fetcher,
		siteURL:  model.SiteBase(siteURL),
		accounts: accounts,
		headers:  headers,
		parser:   gofeed.NewParser(),
	}
}

// FeedURL は最初のページのURLを返す。
func (c *Client) FeedURL() string {
	if len(c.accounts) == 0 {
		return c.siteURL + "/rss"
	}
	escaped := make([]string, 0, len(c.accounts))
	for _, a := range c.accounts {
		escaped = append(escaped, url.PathEscape(a))
	}
	return c.siteURL + "/" + strings.Join(escaped, ",") + "/rss"
}

// FetchPage は継続トークンが指すページを取得する。空トークンは最新ページ。
func (c *Client) FetchPage(ctx context.Context, token string) (paginate.Page[Item], error) {
	feedURL := c.FeedURL()
	if token != "" {
		feedURL += "?cursor=" + url.QueryEscape(token)
	}

	resp, err := c.fetcher.Fetch(ctx, transport.Request{URL: feedURL, Headers: c.headers})
	if err != nil {
		return paginate.Page[Item]{}, err
	}

	feed, err := c.parser.ParseString(resp.Text())
	if err != nil {
		return paginate.Page[Item]{}, &model.ParseError{Format: "xml", Err: err}
	}
	if err := checkWhitelisted(feed.Title); err != nil {
		return paginate.Page[Item]{}, &model.ParseError{Format: "xml", Err: err}
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, NewItem(it))
	}

	var next string
	if resp.Header != nil {
		next = resp.Header.Get(CursorHeader)
	}
	return paginate.Page[Item]{Items: items, Next: next}, nil
}

// checkWhitelisted はRSSリーダーが許可されていない旨のチャンネルタイトルを検出する。
func checkWhitelisted(title string) error {
	if strings.Contains(title, "RSS") && strings.Contains(title, "whitelist") {
		return errors.New(title)
	}
	return nil
}

var _ paginate.PageSource[Item] = (*Client)(nil)
