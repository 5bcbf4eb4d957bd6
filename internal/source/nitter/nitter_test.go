package nitter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/timelinesync/internal/model"
	"github.com/hitoshi/timelinesync/internal/transport"
)

const timelineRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Jack Example / @jack</title>
    <link>https://nitter.example/jack</link>
    <image><url>https://nitter.example/pic/jack.jpg</url></image>
    <item>
      <title>RT by @jack: quoted thing</title>
      <dc:creator>@jill</dc:creator>
      <description><![CDATA[<p>see <a href="https://nitter.example/bob/status/777#m">this</a></p>]]></description>
      <pubDate>Thu, 02 Jan 2025 10:00:00 GMT</pubDate>
      <guid>https://nitter.example/jill/status/2#m</guid>
      <link>https://nitter.example/jill/status/2#m</link>
    </item>
    <item>
      <title>plain post</title>
      <dc:creator>@jack</dc:creator>
      <description><![CDATA[<p>hello <b>world</b></p>]]></description>
      <dc:date>2025-01-01T09:00:00Z</dc:date>
      <link>https://nitter.example/jack/status/1#m</link>
    </item>
  </channel>
</rss>`

func rssFetcher(body string, header http.Header, requested *[]string) transport.Fetcher {
	return transport.FetcherFunc(func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if requested != nil {
			*requested = append(*requested, req.URL)
		}
		return &transport.Response{StatusCode: 200, Header: header, Body: []byte(body)}, nil
	})
}

// --- ページ取得のテスト ---

func TestClient_FetchPage_ParsesItemsAndCursor(t *testing.T) {
	var requested []string
	header := http.Header{}
	header.Set(CursorHeader, "abc123")
	c := NewClient(rssFetcher(timelineRSS, header, &requested), "https://nitter.example/", []string{"jack", "jill"}, nil)

	page, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() がエラーを返した: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("項目数 = %d, want 2", len(page.Items))
	}
	if page.Next != "abc123" {
		t.Errorf("Next = %q, want %q", page.Next, "abc123")
	}
	if requested[0] != "https://nitter.example/jack,jill/rss" {
		t.Errorf("URL = %q", requested[0])
	}

	if _, err := c.FetchPage(context.Background(), "abc123"); err != nil {
		t.Fatalf("2ページ目の FetchPage() がエラーを返した: %v", err)
	}
	if requested[1] != "https://nitter.example/jack,jill/rss?cursor=abc123" {
		t.Errorf("2ページ目のURL = %q", requested[1])
	}
}

func TestClient_FeedURL_NoAccountsUsesSiteRoot(t *testing.T) {
	c := NewClient(nil, "https://nitter.example", nil, nil)
	if got := c.FeedURL(); got != "https://nitter.example/rss" {
		t.Errorf("FeedURL() = %q", got)
	}
}

func TestItem_TimestampFallsBackToDCDate(t *testing.T) {
	c := NewClient(rssFetcher(timelineRSS, nil, nil), "https://nitter.example", nil, nil)
	page, err := c.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() がエラーを返した: %v", err)
	}

	if want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC); !page.Items[0].Timestamp().Equal(want) {
		t.Errorf("pubDate の Timestamp() = %v, want %v", page.Items[0].Timestamp(), want)
	}
	if want := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC); !page.Items[1].Timestamp().Equal(want) {
		t.Errorf("dc:date の Timestamp() = %v, want %v", page.Items[1].Timestamp(), want)
	}
	if page.Items[0].Creator() != "jill" {
		t.Errorf("Creator() = %q, want jill", page.Items[0].Creator())
	}
	if page.Next != "" {
		t.Errorf("Min-Id がない場合は最後のページ, Next = %q", page.Next)
	}
}

func TestClient_FetchPage_WhitelistTitleIsParseError(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>RSS reader not yet whitelisted!</title></channel></rss>`
	c := NewClient(rssFetcher(body, nil, nil), "https://nitter.example", nil, nil)

	_, err := c.FetchPage(context.Background(), "")

	var parseErr *model.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ParseError を返すべき, got %v", err)
	}
	if !strings.Contains(err.Error(), "whitelist") {
		t.Errorf("チャンネルタイトルをエラーに含めるべき: %v", err)
	}
}

func TestClient_FetchPage_TransportErrorPassesThrough(t *testing.T) {
	transErr := &model.TransportError{URL: "https://nitter.example/rss", Attempts: 3, Err: errors.New("503")}
	fetcher := transport.FetcherFunc(func(_ context.Context, _ transport.Request) (*transport.Response, error) {
		return nil, transErr
	})

	_, err := NewClient(fetcher, "https://nitter.example", nil, nil).FetchPage(context.Background(), "")
	if !errors.Is(err, transErr) {
		t.Errorf("TransportError をそのまま返すべき, got %v", err)
	}
}

// --- 正規化のテスト ---

// fakeProfiles は呼び出しを記録するProfileResolver。
type fakeProfiles struct {
	calls []string
	err   error
}

func (f *fakeProfiles) Resolve(_ context.Context, accountID string) (model.ProfileEntry, error) {
	f.calls = append(f.calls, accountID)
	if f.err != nil {
		return model.ProfileEntry{}, f.err
	}
	return model.ProfileEntry{AccountID: accountID, DisplayName: strings.ToUpper(accountID), AvatarURL: "https://nitter.example/pic/" + accountID}, nil
}

// fakeQuotes は本文を記録し、設定された添付を返すQuoteResolver。
type fakeQuotes struct {
	bodies     []string
	attachment *model.Attachment
	err        error
}

func (f *fakeQuotes) ResolveQuote(_ context.Context, body string) (*model.Attachment, error) {
	f.bodies = append(f.bodies, body)
	return f.attachment, f.err
}

func fetchItems(t *testing.T) []Item {
	t.Helper()
	page, err := NewClient(rssFetcher(timelineRSS, nil, nil), "https://nitter.example", nil, nil).FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage() がエラーを返した: %v", err)
	}
	return page.Items
}

func TestNormalizer_RetweetAndQuote(t *testing.T) {
	items := fetchItems(t)
	link := model.NewLinkAttachment(model.LinkAttachment{URL: "https://nitter.example/bob/status/777", Title: "Bob"})
	profiles := &fakeProfiles{}
	quotes := &fakeQuotes{attachment: &link}
	n := NewNormalizer("https://nitter.example/", profiles, quotes)

	post, err := n.Normalize(context.Background(), items[0])
	if err != nil {
		t.Fatalf("Normalize() がエラーを返した: %v", err)
	}

	if post.URI != "https://nitter.example/jill/status/2#m" {
		t.Errorf("URI = %q", post.URI)
	}
	if post.BodyMarkup != `<p>see <a href="https://nitter.example/bob/status/777#m">this</a></p>` {
		t.Errorf("本文は再エスケープせずそのまま使うべき: %q", post.BodyMarkup)
	}
	if post.Author == nil || post.Author.DisplayName != "JILL" || post.Author.Username != "@jill" || post.Author.ProfileURI != "https://nitter.example/jill" {
		t.Errorf("Author = %+v", post.Author)
	}
	if len(profiles.calls) != 1 || profiles.calls[0] != "jill" {
		t.Errorf("先頭の@を除いたハンドルで解決するべき: %v", profiles.calls)
	}
	if len(post.Annotations) != 1 || post.Annotations[0].Text != "Retweeted by @jack" {
		t.Errorf("Annotations = %+v", post.Annotations)
	}
	if len(post.Attachments) != 1 || post.Attachments[0].Link.Title != "Bob" {
		t.Errorf("Attachments = %+v", post.Attachments)
	}
}

func TestNormalizer_PlainPost(t *testing.T) {
	items := fetchItems(t)
	n := NewNormalizer("https://nitter.example", &fakeProfiles{}, &fakeQuotes{})

	post, err := n.Normalize(context.Background(), items[1])
	if err != nil {
		t.Fatalf("Normalize() がエラーを返した: %v", err)
	}
	if len(post.Annotations) != 0 || len(post.Attachments) != 0 {
		t.Errorf("通常の投稿に注釈・添付はないべき: %+v %+v", post.Annotations, post.Attachments)
	}
}

func TestNormalizer_ProfileFailureIsNormalizationError(t *testing.T) {
	items := fetchItems(t)
	profileErr := errors.New("404")
	n := NewNormalizer("https://nitter.example", &fakeProfiles{err: profileErr}, &fakeQuotes{})

	_, err := n.Normalize(context.Background(), items[1])

	var normErr *model.NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("NormalizationError を返すべき, got %v", err)
	}
	if !errors.Is(err, profileErr) {
		t.Error("元のエラーを保持するべき")
	}
}

func TestNormalizer_QuoteFailureIsNormalizationError(t *testing.T) {
	items := fetchItems(t)
	n := NewNormalizer("https://nitter.example", &fakeProfiles{}, &fakeQuotes{err: errors.New("timeout")})

	_, err := n.Normalize(context.Background(), items[0])

	var normErr *model.NormalizationError
	if !errors.As(err, &normErr) {
		t.Errorf("NormalizationError を返すべき, got %v", err)
	}
}
