package nitter

import (
	"context"

	"github.com/hitoshi/timelinesync/internal/enrich"
	"github.com/hitoshi/timelinesync/internal/model"
)

// ProfileResolver はハンドルから表示名とアバターを解決する。
type ProfileResolver interface {
	Resolve(ctx context.Context, accountID string) (model.ProfileEntry, error)
}

// QuoteResolver は本文中の引用リンクをリンク添付に解決する。
type QuoteResolver interface {
	ResolveQuote(ctx context.Context, body string) (*model.Attachment, error)
}

// Normalizer はRSS項目を正規化済みのPostに変換する。
type Normalizer struct {
	siteURL  string
	profiles ProfileResolver
	quotes   QuoteResolver
}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer(siteURL string, profiles ProfileResolver, quotes QuoteResolver) *Normalizer {
	return &Normalizer{
		siteURL:  model.SiteBase(siteURL),
		profiles: profiles,
		quotes:   quotes,
	}
}

// Normalize は1件のRSS項目を変換する。
// プロフィール解決や引用先取得の失敗はこの項目のNormalizationErrorになる。
func (n *Normalizer) Normalize(ctx context.Context, it Item) (*model.Post, error) {
	uri := it.Link
	if uri == "" {
		uri = it.GUID
	}
	if uri == "" {
		return nil, &model.NormalizationError{URI: it.Title, Reason: "link がありません"}
	}
	if it.Timestamp().IsZero() {
		return nil, &model.NormalizationError{URI: uri, Reason: "pubDate がありません"}
	}

	post := &model.Post{
		URI:        uri,
		Timestamp:  it.Timestamp(),
		BodyMarkup: it.Description,
	}

	if handle := it.Creator(); handle != "" {
		profile, err := n.profiles.Resolve(ctx, handle)
		if err != nil {
			return nil, &model.NormalizationError{URI: uri, Reason: "プロフィールの解決に失敗", Err: err}
		}
		post.Author = &model.Identity{
			DisplayName: profile.DisplayName,
			ProfileURI:  n.siteURL + "/" + handle,
			Username:    "@" + handle,
			AvatarURI:   profile.AvatarURL,
		}
	}

	if handle, ok := enrich.DetectRetweet(it.Title); ok {
		post.Annotations = append(post.Annotations, enrich.RetweetAnnotation(n.siteURL, handle))
	}

	quote, err := n.quotes.ResolveQuote(ctx, it.Description)
	if err != nil {
		return nil, &model.NormalizationError{URI: uri, Reason: "引用先の取得に失敗", Err: err}
	}
	if quote != nil {
		post.Attachments = append(post.Attachments, *quote)
	}

	return post, nil
}
