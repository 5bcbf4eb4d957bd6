package enrich

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/transport"
)

// Resolver は本文中の引用リンクを検出し、引用先ページのメタデータをリンク添付として取得する。
type Resolver struct {
	fetcher transport.Fetcher
	pattern *regexp.Regexp
	headers map[string]string
}

// NewResolver はサイトのホストに限定した引用リンクのパターンでResolverを生成する。
func NewResolver(fetcher transport.Fetcher, siteURL string, headers map[string]string) (*Resolver, error) {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("サイトURLが不正です: %q", siteURL)
	}
	pattern := regexp.MustCompile(`https?://` + regexp.QuoteMeta(u.Host) + `/[A-Za-z0-9_]+/status/[0-9]+`)
	return &Resolver{
		fetcher: fetcher,
		pattern: pattern,
		headers: headers,
	}, nil
}

// FindQuote は本文中の最初の引用リンクを返す。
func (r *Resolver) FindQuote(body string) (string, bool) {
	m := r.pattern.FindString(body)
	return m, m != ""
}

// ResolveQuote は本文に引用リンクがあれば引用先を取得してリンク添付を返す。
// リンクがない場合はネットワークにアクセスせずnilを返す。
func (r *Resolver) ResolveQuote(ctx context.Context, body string) (*model.Attachment, error) {
	quoteURL, ok := r.FindQuote(body)
	if !ok {
		return nil, nil
	}

	resp, err := r.fetcher.Fetch(ctx, transport.Request{URL: quoteURL, Headers: r.headers})
	if err != nil {
		return nil, fmt.Errorf("引用先の取得に失敗 (%s): %w", quoteURL, err)
	}

	meta := ParsePageMetadata(resp.Body, quoteURL)
	link := model.LinkAttachment{
		URL:          quoteURL,
		Title:        strings.TrimSpace(meta.Title),
		Subtitle:     strings.TrimSpace(meta.Description),
		PreviewImage: meta.Image,
	}
	if meta.ImageWidth > 0 && meta.ImageHeight > 0 {
		link.AspectSize = &model.AspectSize{Width: meta.ImageWidth, Height: meta.ImageHeight}
	}
	attachment := model.NewLinkAttachment(link)
	return &attachment, nil
}
