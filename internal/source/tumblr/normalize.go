package tumblr

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/hitoshi/timelinesync/internal/enrich"
	"github.com/hitoshi/timelinesync/internal/markup"
	"github.com/hitoshi/timelinesync/internal/model"
)

// AvatarURL はブログのアバター画像URLを返す。
func AvatarURL(blogName string) string {
	return "https://api.tumblr.com/v2/blog/" + blogName + "/avatar/96"
}

// Normalizer はダッシュボードの投稿を正規化済みのPostに変換する。
type Normalizer struct {
	includeReblogs bool
	includeTags    bool
}

// NewNormalizer はフィード設定からNormalizerを生成する。
func NewNormalizer(feed model.Feed) *Normalizer {
	return &Normalizer{
		includeReblogs: feed.IncludeReblogs,
		includeTags:    feed.IncludeTags,
	}
}

// Normalize は1件の投稿を変換する。
// NPF以外の投稿と、除外設定時のリブログは (nil, nil) を返す。
func (n *Normalizer) Normalize(_ context.Context, p Post) (*model.Post, error) {
	if p.Type != PostTypeBlocks {
		return nil, nil
	}
	if p.IsReblog() && !n.includeReblogs {
		return nil, nil
	}
	if p.PostURL == "" {
		return nil, &model.NormalizationError{URI: p.ID, Reason: "post_url がありません"}
	}
	if p.TimestampSec <= 0 {
		return nil, &model.NormalizationError{URI: p.PostURL, Reason: "timestamp がありません"}
	}

	content := p.Content
	var annotations []model.Annotation
	if p.IsReblog() && len(p.Trail) > 0 {
		reblogger := blogName(p.Content)
		annotations = append(annotations, enrich.ReblogAnnotation(reblogger, AvatarURL(reblogger), p.PostURL))
		content = p.Trail[0].Content
	}

	body, attachments := renderBlocks(content.Blocks, content.Layout)
	if n.includeTags && len(content.Tags) > 0 {
		body += renderTags(content.Tags)
	}

	return &model.Post{
		URI:         p.PostURL,
		Timestamp:   p.Timestamp(),
		BodyMarkup:  body,
		Author:      identity(content),
		Attachments: attachments,
		Annotations: annotations,
	}, nil
}

func blogName(c Content) string {
	if c.Blog != nil && c.Blog.Name != "" {
		return c.Blog.Name
	}
	return c.BrokenBlogName
}

func identity(c Content) *model.Identity {
	if c.Blog != nil {
		return &model.Identity{
			DisplayName: c.Blog.Name,
			ProfileURI:  c.Blog.URL,
			Username:    c.Blog.Title,
			AvatarURI:   AvatarURL(c.Blog.Name),
		}
	}
	if c.BrokenBlogName != "" {
		return &model.Identity{DisplayName: c.BrokenBlogName}
	}
	return nil
}

// renderBlocks はブロック列を本文マークアップと添付に変換する。
// 必須データが欠けたメディアブロックは添付を生成しない。
func renderBlocks(blocks []Block, layouts []Layout) (string, []model.Attachment) {
	var ask *Layout
	for i := range layouts {
		if layouts[i].Type == LayoutTypeAsk {
			ask = &layouts[i]
			break
		}
	}

	var body strings.Builder
	var attachments []model.Attachment

	for i, block := range blocks {
		switch {
		case block.Text != nil:
			text := markup.InsertSpans(block.Text.Text, block.Text.Formatting)
			if ask != nil && ask.Contains(i) {
				asker := ask.Asker()
				if asker == "" {
					asker = "Anonymous"
				}
				fmt.Fprintf(&body, "<blockquote><p><strong>%s</strong> asked:</p><p>%s</p></blockquote>", asker, text)
			} else {
				fmt.Fprintf(&body, "<p>%s</p>", text)
			}

		case block.Image != nil:
			if att, ok := imageAttachment(block.Image); ok {
				attachments = append(attachments, att)
			}

		case block.Link != nil:
			if att, ok := linkAttachment(block.Link); ok {
				attachments = append(attachments, att)
			}

		case block.Audio != nil:
			if att, ok := mediaBlockAttachment(block.Audio); ok {
				attachments = append(attachments, att)
			}

		case block.Video != nil:
			if att, ok := mediaBlockAttachment(block.Video); ok {
				attachments = append(attachments, att)
			}

		default:
			fmt.Fprintf(&body, "<p>Cannot display %s content.</p>", html.EscapeString(block.Type))
		}
	}

	return body.String(), attachments
}

func aspectSize(width, height int) *model.AspectSize {
	if width <= 0 || height <= 0 {
		return nil
	}
	return &model.AspectSize{Width: width, Height: height}
}

func imageAttachment(b *ImageBlock) (model.Attachment, bool) {
	if len(b.Media) == 0 || b.Media[0].URL == "" {
		return model.Attachment{}, false
	}
	m := b.Media[0]
	media := model.MediaAttachment{
		URL:        m.URL,
		MimeType:   m.Type,
		AspectSize: aspectSize(m.Width, m.Height),
		AltText:    b.AltText,
	}
	if m.Poster != nil {
		media.Thumbnail = m.Poster.URL
	}
	return model.NewMediaAttachment(media), true
}

func linkAttachment(b *LinkBlock) (model.Attachment, bool) {
	if b.URL == "" {
		return model.Attachment{}, false
	}
	link := model.LinkAttachment{
		URL:        b.URL,
		Title:      b.Title,
		Subtitle:   b.Description,
		AuthorName: b.Author,
	}
	if len(b.Poster) > 0 {
		link.PreviewImage = b.Poster[0].URL
		link.AspectSize = aspectSize(b.Poster[0].Width, b.Poster[0].Height)
	}
	return model.NewLinkAttachment(link), true
}

func mediaBlockAttachment(b *MediaBlock) (model.Attachment, bool) {
	if b.Media != nil && b.Media.URL != "" {
		media := model.MediaAttachment{
			URL:        b.Media.URL,
			MimeType:   b.Media.Type,
			AspectSize: aspectSize(b.Media.Width, b.Media.Height),
		}
		if len(b.Poster) > 0 {
			media.Thumbnail = b.Poster[0].URL
		}
		return model.NewMediaAttachment(media), true
	}
	if b.URL != "" {
		return model.NewMediaAttachment(model.MediaAttachment{URL: b.URL}), true
	}
	return model.Attachment{}, false
}

func renderTags(tags []string) string {
	var b strings.Builder
	b.WriteString("<p>")
	for _, tag := range tags {
		fmt.Fprintf(&b, `<a href="https://www.tumblr.com/tagged/%s">#%s</a> `, url.PathEscape(tag), html.EscapeString(tag))
	}
	b.WriteString("</p>")
	return b.String()
}
