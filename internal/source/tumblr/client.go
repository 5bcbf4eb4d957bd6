package tumblr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/paginate"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// PageSize はダッシュボード1ページあたりの投稿数。
const PageSize = 20

const dashboardPath = "/v2/user/dashboard?npf=true&reblog_info=true&notes_info=true&limit=20"

// Client はダッシュボードをページ単位で取得するPageSource。
// 継続トークンはレスポンスの次ページリンク（サイトからの相対パス）。
type Client struct {
	fetcher transport.Fetcher
	siteURL string
	headers map[string]string
}

// NewClient はClientを生成する。authTokenが空でなければBearerトークンとして送信する。
func NewClient(fetcher transport.Fetcher, siteURL, authToken string) *Client {
	headers := map[string]string{"Accept": "application/json"}
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}
	return &Client{
		fetcher: fetcher,
		siteURL: model.SiteBase(siteURL),
		headers: headers,
	}
}

// FetchPage は継続トークンが指すページを取得する。空トークンは最新ページ。
func (c *Client) FetchPage(ctx context.Context, token string) (paginate.Page[Post], error) {
	path := token
	if path == "" {
		path = dashboardPath
	}

	resp, err := c.fetcher.Fetch(ctx, transport.Request{
		URL:     c.siteURL + path,
		Headers: c.headers,
	})
	if err != nil {
		return paginate.Page[Post]{}, err
	}

	var decoded DashboardResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return paginate.Page[Post]{}, &model.ParseError{Format: "json", Err: err}
	}

	posts := decoded.Response.Posts
	return paginate.Page[Post]{
		Items: posts,
		Next:  nextToken(decoded.Response.Links, path, len(posts)),
	}, nil
}

// nextToken は次ページのパスを返す。リンクがない場合は満杯のページに限りoffsetを進める。
func nextToken(links *Links, current string, count int) string {
	if links != nil && links.Next != nil && links.Next.Href != "" {
		return links.Next.Href
	}
	if count < PageSize {
		return ""
	}
	return fmt.Sprintf("%s&offset=%d", dashboardPath, currentOffset(current)+PageSize)
}

func currentOffset(path string) int {
	_, rawQuery, _ := strings.Cut(path, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(q.Get("offset"))
	return n
}

var _ paginate.PageSource[Post] = (*Client)(nil)
